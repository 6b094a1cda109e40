// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package emitter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/velograph/internal/models"
)

// gatewayClient is the thin HTTP client for the ingestion gateway.
type gatewayClient struct {
	baseURL string
	http    *http.Client
}

// envelope mirrors the gateway's response wrapper, decoding only what
// the emitter needs.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// batchAck is the gateway's batch outcome.
type batchAck struct {
	AcceptedCount int `json:"accepted_count"`
	Rejected      []struct {
		Index  int    `json:"index"`
		Reason string `json:"reason"`
	} `json:"rejected"`
}

func newGatewayClient(baseURL string, timeout time.Duration) *gatewayClient {
	return &gatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// deliver posts a single event. Any non-2xx response is an error; a 400
// is returned as errPermanentRejection so the caller does not queue an
// event the gateway will never accept.
func (c *gatewayClient) deliver(ctx context.Context, event *models.EcosystemEvent) error {
	env, status, err := c.post(ctx, "/api/v1/events", event)
	if err != nil {
		return err
	}
	if status == http.StatusBadRequest {
		return errPermanentRejection
	}
	if status != http.StatusOK || !env.Success {
		return fmt.Errorf("gateway returned status %d", status)
	}
	return nil
}

// deliverBatch posts the whole queue snapshot to the batch endpoint and
// returns the per-batch acknowledgement.
func (c *gatewayClient) deliverBatch(ctx context.Context, events []*models.EcosystemEvent) (*batchAck, error) {
	env, status, err := c.post(ctx, "/api/v1/events/batch", events)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || !env.Success {
		return nil, fmt.Errorf("gateway returned status %d", status)
	}

	var ack batchAck
	if err := json.Unmarshal(env.Data, &ack); err != nil {
		return nil, fmt.Errorf("failed to decode batch acknowledgement: %w", err)
	}
	return &ack, nil
}

func (c *gatewayClient) post(ctx context.Context, path string, payload interface{}) (*envelope, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("delivery failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}

	return &env, resp.StatusCode, nil
}

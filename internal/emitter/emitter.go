// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

// Package emitter is the client-side tracking component embedded in the
// product CLIs and SDKs. Track never fails the host operation: delivery
// is attempted with a bounded timeout and on any failure the event
// degrades to a local durable queue, flushed opportunistically on the
// next successful delivery.
package emitter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/velograph/internal/config"
	"github.com/tomtom215/velograph/internal/identity"
	"github.com/tomtom215/velograph/internal/logging"
	"github.com/tomtom215/velograph/internal/metrics"
	"github.com/tomtom215/velograph/internal/models"
)

// errPermanentRejection marks a delivery the gateway rejected as
// malformed. Queuing it would poison the queue forever.
var errPermanentRejection = errors.New("event permanently rejected by gateway")

// Emitter constructs and delivers ecosystem events for one product.
//
// The circuit breaker skips the network attempt entirely while the
// gateway is known-down, keeping the host operation's added latency near
// zero instead of paying the full timeout on every call.
type Emitter struct {
	cfg             config.EmitterConfig
	participantHash string
	sessionID       string
	client          *gatewayClient
	queue           *Queue
	breaker         *gobreaker.CircuitBreaker[any]
	flushLimiter    *rate.Limiter
}

// New creates an emitter for the configured product. The durable queue
// is opened immediately; a queue that cannot be opened disables offline
// durability but never fails construction, because analytics must not
// block the host program from starting.
func New(cfg config.EmitterConfig) *Emitter {
	e := &Emitter{
		cfg:             cfg,
		participantHash: identity.ParticipantHash(),
		sessionID:       uuid.NewString(),
		client:          newGatewayClient(cfg.GatewayURL, cfg.DeliveryTimeout),
		breaker: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:    "gateway-delivery",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		flushLimiter: rate.NewLimiter(rate.Every(cfg.FlushMinInterval), 1),
	}

	if cfg.Disabled {
		return e
	}

	queuePath := cfg.QueuePath
	if queuePath == "" {
		queuePath = defaultQueuePath()
	}
	if queuePath != "" {
		queue, err := OpenQueue(queuePath, cfg.QueueMaxEntries)
		if err != nil {
			logging.Warn().Err(err).Str("path", queuePath).
				Msg("Durable queue unavailable, offline events will be lost")
		} else {
			e.queue = queue
		}
	}

	return e
}

// Track records one user action. It never returns an error and never
// blocks longer than the configured delivery timeout: on any delivery
// failure the event lands in the durable queue and control returns to
// the caller.
func (e *Emitter) Track(eventType models.EventType, metadata map[string]string) {
	if e.cfg.Disabled {
		return
	}

	event := &models.EcosystemEvent{
		EventID:         uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		Product:         e.cfg.Product,
		EventType:       eventType,
		ParticipantHash: e.participantHash,
		SessionID:       e.sessionID,
		Metadata:        metadata,
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.DeliveryTimeout)
	defer cancel()

	_, err := e.breaker.Execute(func() (any, error) {
		return nil, e.client.deliver(ctx, event)
	})
	if err == nil {
		metrics.EmitterDeliveries.WithLabelValues("ok").Inc()
		e.flushQueue()
		return
	}

	if errors.Is(err, errPermanentRejection) {
		metrics.EmitterDeliveries.WithLabelValues("dropped").Inc()
		logging.Warn().Str("event_type", string(eventType)).
			Msg("Event rejected by gateway, not queued")
		return
	}

	metrics.EmitterDeliveries.WithLabelValues("error").Inc()
	e.enqueue(event)
}

// enqueue appends an undelivered event to the durable queue.
func (e *Emitter) enqueue(event *models.EcosystemEvent) {
	if e.queue == nil {
		metrics.EmitterDeliveries.WithLabelValues("dropped").Inc()
		return
	}
	if err := e.queue.Append(event); err != nil {
		metrics.EmitterDeliveries.WithLabelValues("dropped").Inc()
		logging.Warn().Err(err).Msg("Failed to queue undelivered event")
		return
	}
	metrics.EmitterDeliveries.WithLabelValues("queued").Inc()
}

// flushQueue attempts to deliver the whole durable queue via the batch
// endpoint, throttled so bursts of successful deliveries do not hammer
// the gateway with identical flushes.
//
// The queue is cleared only when the entire snapshot is accounted for by
// the acknowledgement: accepted events plus permanently rejected poison
// events. Any transient per-event failure keeps the whole snapshot
// queued for the next opportunity.
func (e *Emitter) flushQueue() {
	if e.queue == nil || !e.flushLimiter.Allow() {
		return
	}

	events, keys, err := e.queue.Snapshot()
	if err != nil || len(events) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.DeliveryTimeout)
	defer cancel()

	ack, err := e.client.deliverBatch(ctx, events)
	if err != nil {
		logging.Debug().Err(err).Int("pending", len(events)).
			Msg("Queue flush failed, will retry later")
		return
	}

	resolved := ack.AcceptedCount
	for _, rejected := range ack.Rejected {
		// Validation rejections are poison: the gateway will never
		// accept them, so dropping them from the queue is the only
		// way the queue drains.
		if rejected.Reason != "internal_error" {
			resolved++
		}
	}

	if resolved < len(events) {
		logging.Debug().Int("resolved", resolved).Int("sent", len(events)).
			Msg("Partial flush acknowledgement, keeping queue")
		return
	}

	if err := e.queue.Remove(keys); err != nil {
		logging.Warn().Err(err).Msg("Failed to clear flushed queue entries")
		return
	}

	logging.Debug().Int("flushed", len(events)).Msg("Durable queue flushed")
}

// QueueDepth returns the number of undelivered events, 0 when the queue
// is unavailable.
func (e *Emitter) QueueDepth() int {
	if e.queue == nil {
		return 0
	}
	depth, err := e.queue.Len()
	if err != nil {
		return 0
	}
	return depth
}

// Close releases the durable queue.
func (e *Emitter) Close() error {
	if e.queue == nil {
		return nil
	}
	return e.queue.Close()
}

// defaultQueuePath places the queue under the user config directory.
func defaultQueuePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "velograph", "queue")
}

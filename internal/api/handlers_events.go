// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/velograph/internal/ingest"
	"github.com/tomtom215/velograph/internal/logging"
	"github.com/tomtom215/velograph/internal/models"
)

// maxBatchEvents caps a single batch request.
const maxBatchEvents = 1000

// handleIngestEvent handles POST /api/v1/events.
//
// Malformed events return 400 and are not persisted. Redelivery of a
// known event_id returns 200 with duplicate set: success, no state
// change. Persistence failures return 500 so the emitter retries via its
// durable queue.
func (router *Router) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var event models.EcosystemEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		rw.BadRequest("Invalid JSON payload: " + err.Error())
		return
	}

	result, err := router.gateway.Ingest(r.Context(), &event)
	if err != nil {
		var rej *ingest.RejectionError
		if errors.As(err, &rej) {
			rw.ValidationError("Event rejected", rej)
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("Event ingestion failed")
		rw.DatabaseError(err)
		return
	}

	rw.Success(result)
}

// handleIngestBatch handles POST /api/v1/events/batch.
//
// Events are processed independently; the response reports the accepted
// count plus per-event rejection details so emitters can drop poison
// events from their queues. The batch as a whole succeeds even when some
// events are rejected.
func (router *Router) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var events []*models.EcosystemEvent
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		rw.BadRequest("Invalid JSON payload: " + err.Error())
		return
	}
	if len(events) == 0 {
		rw.BadRequest("Batch must contain at least one event")
		return
	}
	if len(events) > maxBatchEvents {
		rw.BadRequest("Batch exceeds maximum of 1000 events")
		return
	}

	result := router.gateway.IngestBatch(r.Context(), events)
	rw.Success(result)
}

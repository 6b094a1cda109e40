// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

// Package ingest is the event ingestion gateway: it validates incoming
// ecosystem events, deduplicates on event_id, persists the raw event, and
// fans out synchronously to the journey, velocity, and discovery
// aggregators. The gateway holds no mutable state of its own, so any
// number of instances can ingest concurrently.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/velograph/internal/config"
	"github.com/tomtom215/velograph/internal/database"
	"github.com/tomtom215/velograph/internal/logging"
	"github.com/tomtom215/velograph/internal/metrics"
	"github.com/tomtom215/velograph/internal/models"
	"github.com/tomtom215/velograph/internal/validation"
)

// ErrMalformedEvent is the sentinel all validation rejections wrap.
var ErrMalformedEvent = errors.New("malformed event")

// Rejection reasons, used both in batch responses and metric labels.
const (
	ReasonMissingField     = "missing_field"
	ReasonUnknownProduct   = "unknown_product"
	ReasonUnknownEventType = "unknown_event_type"
	ReasonSelfReferral     = "self_referral"
	ReasonInternalError    = "internal_error"
)

// RejectionError describes why an event was rejected. Rejected events are
// never persisted.
type RejectionError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Unwrap lets errors.Is match ErrMalformedEvent.
func (e *RejectionError) Unwrap() error {
	return ErrMalformedEvent
}

// IngestResult reports the outcome of ingesting one event.
type IngestResult struct {
	// Accepted is true for both fresh inserts and duplicates: redelivery
	// of an already-persisted event_id is success, not an error.
	Accepted bool `json:"accepted"`

	// Duplicate is true when the event_id was already persisted and the
	// event was skipped.
	Duplicate bool `json:"duplicate"`
}

// RejectedEvent is one batch entry that failed, with enough detail for
// emitters to drop poison events from their durable queues.
type RejectedEvent struct {
	Index   int    `json:"index"`
	EventID string `json:"event_id,omitempty"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// BatchResult reports per-batch ingestion outcome. Events are processed
// independently; one rejection never aborts its siblings.
type BatchResult struct {
	AcceptedCount int             `json:"accepted_count"`
	Rejected      []RejectedEvent `json:"rejected,omitempty"`
}

// Gateway validates, deduplicates, persists, and fans out events.
type Gateway struct {
	db        *database.DB
	analytics *config.AnalyticsConfig
}

// New creates a gateway backed by the given database.
func New(db *database.DB, analytics *config.AnalyticsConfig) *Gateway {
	return &Gateway{db: db, analytics: analytics}
}

// Ingest processes a single event.
//
// Rejected events return a *RejectionError and are not persisted.
// Duplicates return success with Duplicate set and change no state.
// A raw-persist failure is a server error; the client retries via its
// durable queue. Aggregator failures after the raw event is persisted are
// logged and counted but do not fail the request: redelivery would be
// deduplicated anyway, so the outcome is a bounded undercount that a
// reconciliation pass over the raw event log can correct.
func (g *Gateway) Ingest(ctx context.Context, event *models.EcosystemEvent) (*IngestResult, error) {
	start := time.Now()

	if rej := g.validate(event); rej != nil {
		metrics.EventsRejected.WithLabelValues(rej.Reason).Inc()
		return nil, rej
	}

	inserted, err := g.db.InsertEvent(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to persist event: %w", err)
	}
	if !inserted {
		metrics.EventsDuplicate.Inc()
		logging.Ctx(ctx).Debug().
			Str("event_id", event.EventID).
			Msg("Duplicate event skipped")
		return &IngestResult{Accepted: true, Duplicate: true}, nil
	}

	g.fanOut(ctx, event)

	metrics.EventsIngested.WithLabelValues(event.Product, string(event.EventType)).Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	return &IngestResult{Accepted: true}, nil
}

// IngestBatch processes events independently and reports the aggregate
// outcome. Raw-persist failures for individual events are reported in the
// rejected list rather than aborting the batch.
func (g *Gateway) IngestBatch(ctx context.Context, events []*models.EcosystemEvent) *BatchResult {
	metrics.IngestBatchSize.Observe(float64(len(events)))

	result := &BatchResult{}
	for i, event := range events {
		_, err := g.Ingest(ctx, event)
		if err == nil {
			result.AcceptedCount++
			continue
		}

		rejected := RejectedEvent{Index: i, Reason: ReasonInternalError, Message: err.Error()}
		if event != nil {
			rejected.EventID = event.EventID
		}
		var rej *RejectionError
		if errors.As(err, &rej) {
			rejected.Reason = rej.Reason
			rejected.Message = rej.Message
		} else {
			logging.Ctx(ctx).Error().Err(err).
				Int("batch_index", i).
				Msg("Batch event persistence failed")
		}
		result.Rejected = append(result.Rejected, rejected)
	}

	return result
}

// validate applies structural validation, the product allowlist, and the
// referral-specific rules. Self-referrals are rejected loudly, not
// silently dropped, so caller bugs surface.
func (g *Gateway) validate(event *models.EcosystemEvent) *RejectionError {
	if event == nil {
		return &RejectionError{Reason: ReasonMissingField, Message: "event payload is required"}
	}

	if verr := validation.ValidateStruct(event); verr != nil {
		return &RejectionError{Reason: ReasonMissingField, Message: verr.Error()}
	}

	if !event.EventType.IsValid() {
		return &RejectionError{
			Reason:  ReasonUnknownEventType,
			Message: fmt.Sprintf("unknown event_type %q", event.EventType),
		}
	}

	if !g.analytics.ProductAllowed(event.Product) {
		return &RejectionError{
			Reason:  ReasonUnknownProduct,
			Message: fmt.Sprintf("unknown product %q", event.Product),
		}
	}

	if event.EventType == models.EventReferral {
		destination := event.ReferralDestination()
		if destination == "" {
			return &RejectionError{
				Reason:  ReasonMissingField,
				Message: "referral events require metadata." + models.MetadataReferralDestination,
			}
		}
		if destination == event.Product {
			return &RejectionError{
				Reason:  ReasonSelfReferral,
				Message: fmt.Sprintf("referral source and destination are both %q", event.Product),
			}
		}
		if !g.analytics.ProductAllowed(destination) {
			return &RejectionError{
				Reason:  ReasonUnknownProduct,
				Message: fmt.Sprintf("unknown referral destination %q", destination),
			}
		}
	}

	return nil
}

// fanOut applies the event to every aggregator it concerns. Each update
// is individually atomic; failures are counted and logged, never
// propagated, because the raw event is already durable.
func (g *Gateway) fanOut(ctx context.Context, event *models.EcosystemEvent) {
	g.updateAggregator(ctx, "journey", func() error {
		return g.db.RecordTouchpoint(ctx, event.ParticipantHash, event.Product, event.Timestamp)
	})

	if event.CountsTowardVelocity() {
		g.updateAggregator(ctx, "velocity", func() error {
			return g.db.IncrementVelocity(ctx, event.Product, event.ParticipantHash, event.Timestamp)
		})
	}

	if event.EventType == models.EventReferral {
		g.updateAggregator(ctx, "discovery", func() error {
			return g.db.RecordReferral(ctx,
				event.Product, event.ReferralDestination(), event.ParticipantHash, event.Timestamp)
		})
	}

	if event.IsConvertible() {
		g.updateAggregator(ctx, "discovery", func() error {
			result, err := g.db.RecordConversion(ctx,
				event.Product, event.ParticipantHash, event.Timestamp, g.analytics.AttributionWindow)
			if err != nil {
				return err
			}
			if result.Attributed {
				metrics.AttributionHits.Inc()
				logging.Ctx(ctx).Debug().
					Str("source", result.SourceProduct).
					Str("destination", event.Product).
					Msg("Conversion attributed")
			} else {
				metrics.AttributionMisses.Inc()
			}
			return nil
		})
	}
}

// updateAggregator times one aggregator update and records its outcome.
func (g *Gateway) updateAggregator(ctx context.Context, name string, update func() error) {
	start := time.Now()
	err := update()
	metrics.AggregatorUpdateDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AggregatorUpdateErrors.WithLabelValues(name).Inc()
		logging.Ctx(ctx).Error().Err(err).
			Str("aggregator", name).
			Msg("Aggregator update failed after raw event persisted")
	}
}

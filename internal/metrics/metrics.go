// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

// Package metrics provides Prometheus instrumentation for the ingestion
// gateway, the aggregators, and the client emitter:
//   - ingest throughput, duplicates, and rejections
//   - aggregator update latency
//   - attribution hit/miss accounting
//   - emitter queue depth and delivery outcomes
//   - API endpoint latency and throughput
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velograph_events_ingested_total",
			Help: "Total events accepted and fanned out to the aggregators",
		},
		[]string{"product", "event_type"},
	)

	EventsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "velograph_events_duplicate_total",
			Help: "Total events skipped because the event_id was already persisted",
		},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velograph_events_rejected_total",
			Help: "Total events rejected by validation",
		},
		[]string{"reason"}, // "missing_field", "unknown_product", "unknown_event_type", "self_referral"
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "velograph_ingest_duration_seconds",
			Help:    "End-to-end duration of single-event ingestion including aggregator fan-out",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngestBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "velograph_ingest_batch_size",
			Help:    "Number of events per batch ingest request",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// Aggregator metrics
	AggregatorUpdateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velograph_aggregator_update_duration_seconds",
			Help:    "Duration of a single aggregator upsert",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"aggregator"}, // "journey", "velocity", "discovery"
	)

	AggregatorUpdateErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velograph_aggregator_update_errors_total",
			Help: "Total aggregator upserts that failed after the raw event was persisted",
		},
		[]string{"aggregator"},
	)

	// Attribution metrics
	AttributionHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "velograph_attribution_hits_total",
			Help: "Conversions attributed to a prior referral inside the attribution window",
		},
	)

	AttributionMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "velograph_attribution_misses_total",
			Help: "Conversions recorded without a matching prior referral (valid outcome, not an error)",
		},
	)

	ReferralsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "velograph_referrals_swept_total",
			Help: "Expired pending referrals removed by the sweeper",
		},
	)

	// Emitter metrics (exported by clients that run with metrics enabled)
	EmitterQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "velograph_emitter_queue_depth",
			Help: "Current number of undelivered events in the local durable queue",
		},
	)

	EmitterDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velograph_emitter_deliveries_total",
			Help: "Delivery attempts by outcome",
		},
		[]string{"outcome"}, // "ok", "error", "queued", "dropped"
	)

	EmitterQueueEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "velograph_emitter_queue_evictions_total",
			Help: "Events dropped from the durable queue because the cap was reached (lossy degradation)",
		},
	)

	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "velograph_api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "velograph_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

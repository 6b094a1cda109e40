// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/velograph/internal/config"
	"github.com/tomtom215/velograph/internal/database"
	"github.com/tomtom215/velograph/internal/ingest"
)

// Router wires the gateway and the reporting queries to HTTP routes.
type Router struct {
	gateway    *ingest.Gateway
	db         *database.DB
	analytics  *config.AnalyticsConfig
	api        *config.APIConfig
	middleware *Middleware
	timeout    time.Duration
}

// NewRouter creates the API router.
func NewRouter(gateway *ingest.Gateway, db *database.DB, cfg *config.Config) *Router {
	return &Router{
		gateway:   gateway,
		db:        db,
		analytics: &cfg.Analytics,
		api:       &cfg.API,
		middleware: NewMiddleware(&MiddlewareConfig{
			CORSAllowedOrigins: cfg.Server.CORSOrigins,
			RateLimitRequests:  cfg.Server.RateLimitReqs,
			RateLimitWindow:    cfg.Server.RateLimitWindow,
			RateLimitDisabled:  cfg.Server.RateLimitDisabled,
		}),
		timeout: cfg.Server.Timeout,
	}
}

// Handler builds the full route tree.
func (router *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(router.timeout))
	r.Use(router.middleware.CORS())

	// Health and metrics sit outside rate limiting so probes and
	// scrapers are never throttled.
	r.Get("/health/live", router.handleHealthLive)
	r.Get("/health/ready", router.handleHealthReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(PrometheusMetrics)
		r.Use(router.middleware.RateLimit())

		r.Post("/events", router.handleIngestEvent)
		r.Post("/events/batch", router.handleIngestBatch)

		r.Get("/velocity/realtime", router.handleRealtimeVelocity)
		r.Get("/funnel/cross-product", router.handleCrossProductFunnel)
		r.Get("/journeys/patterns", router.handleJourneyPatterns)
	})

	return r
}

// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/velograph/internal/logging"
	"github.com/tomtom215/velograph/internal/metrics"
)

// MiddlewareConfig holds configuration for the Chi middleware factories.
type MiddlewareConfig struct {
	CORSAllowedOrigins []string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
}

// Middleware provides Chi-compatible middleware built from production
// implementations in the Chi ecosystem.
type Middleware struct {
	config *MiddlewareConfig
	cors   func(http.Handler) http.Handler
}

// NewMiddleware creates the middleware factory.
func NewMiddleware(config *MiddlewareConfig) *Middleware {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: config.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	})

	return &Middleware{
		config: config,
		cors:   corsHandler,
	}
}

// CORS returns the CORS middleware.
func (m *Middleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns a per-IP rate limiting middleware using
// go-chi/httprate, or a no-op when disabled (CI only).
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		m.config.RateLimitRequests,
		m.config.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			NewResponseWriter(w, r).Error(http.StatusTooManyRequests,
				ErrCodeTooManyRequests, "Rate limit exceeded")
		}),
	)
}

// RequestIDWithLogging adds a request ID to the context and the logging
// context so every log line inside a request carries it.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		chiRequestID := chimiddleware.RequestID(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
				r.Header.Set("X-Request-ID", requestID)
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			chiRequestID.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrometheusMetrics records request counts and latencies per route
// pattern. Route patterns rather than raw paths keep cardinality bounded.
func PrometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}

		metrics.APIRequestsTotal.WithLabelValues(
			r.Method, endpoint, strconv.Itoa(ww.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(
			r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

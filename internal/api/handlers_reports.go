// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// handleRealtimeVelocity handles GET /api/v1/velocity/realtime.
//
// Query parameters: product (required), hours (optional, defaults from
// configuration, capped at the configured maximum).
func (router *Router) handleRealtimeVelocity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	product := r.URL.Query().Get("product")
	if product == "" {
		rw.BadRequest("Query parameter 'product' is required")
		return
	}
	if !router.analytics.ProductAllowed(product) {
		rw.BadRequest(fmt.Sprintf("Unknown product %q", product))
		return
	}

	hours, err := queryInt(r, "hours", router.api.DefaultWindowHours, 1, router.api.MaxWindowHours)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	report, err := router.db.GetRealtimeVelocity(r.Context(), product, hours, time.Now().UTC())
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.Success(report)
}

// handleCrossProductFunnel handles GET /api/v1/funnel/cross-product:
// every discovery edge with its conversion rate, sorted by discovery
// count descending.
func (router *Router) handleCrossProductFunnel(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	edges, err := router.db.GetCrossProductFunnel(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.Success(map[string]interface{}{
		"edges": edges,
	})
}

// handleJourneyPatterns handles GET /api/v1/journeys/patterns.
//
// Query parameters: min_path_length (optional, default 2) and limit
// (optional, defaults from configuration, capped at the configured
// maximum).
func (router *Router) handleJourneyPatterns(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	minPathLength, err := queryInt(r, "min_path_length", 2, 1, 64)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	limit, err := queryInt(r, "limit", router.api.DefaultPatternLimit, 1, router.api.MaxPatternLimit)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	patterns, err := router.db.GetJourneyPatterns(r.Context(), minPathLength, limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	rw.Success(map[string]interface{}{
		"patterns": patterns,
	})
}

// queryInt parses an optional integer query parameter with bounds.
func queryInt(r *http.Request, name string, def, minVal, maxVal int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("query parameter '%s' must be an integer", name)
	}
	if value < minVal || value > maxVal {
		return 0, fmt.Errorf("query parameter '%s' must be between %d and %d", name, minVal, maxVal)
	}
	return value, nil
}

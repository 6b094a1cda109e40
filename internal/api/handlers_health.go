// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package api

import (
	"net/http"
)

// handleHealthLive reports process liveness. Always 200 while the
// process is serving.
func (router *Router) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "alive"})
}

// handleHealthReady reports readiness: the database must answer a ping.
func (router *Router) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := router.db.Ping(r.Context()); err != nil {
		rw.ServiceUnavailable("Database not reachable")
		return
	}

	rw.Success(map[string]string{"status": "ready"})
}

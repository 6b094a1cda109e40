// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package emitter

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/velograph/internal/config"
	"github.com/tomtom215/velograph/internal/models"
)

func testEmitterConfig(t *testing.T, gatewayURL string) config.EmitterConfig {
	t.Helper()
	return config.EmitterConfig{
		GatewayURL:      gatewayURL,
		Product:         "sports",
		DeliveryTimeout: 2 * time.Second,
		QueuePath:       t.TempDir(),
		QueueMaxEntries: 100,
		// Zero interval disables flush throttling in tests.
		FlushMinInterval: 0,
	}
}

// gatewayResponse writes the gateway's standard envelope.
func gatewayResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": status == http.StatusOK,
		"data":    data,
	})
}

func TestTrackDeliversEvent(t *testing.T) {
	var received atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var event models.EcosystemEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Errorf("failed to decode delivered event: %v", err)
		}
		if event.EventID == "" || event.Product != "sports" {
			t.Errorf("delivered event incomplete: %+v", event)
		}
		if event.ParticipantHash == "" {
			t.Error("participant_hash missing from delivered event")
		}

		received.Add(1)
		gatewayResponse(w, http.StatusOK, map[string]interface{}{"accepted": true})
	}))
	defer server.Close()

	e := New(testEmitterConfig(t, server.URL))
	defer func() { _ = e.Close() }()

	e.Track(models.EventInstall, map[string]string{models.MetadataCatalogItemID: "pkg-1"})

	if received.Load() != 1 {
		t.Errorf("delivered events = %d, want 1", received.Load())
	}
	if depth := e.QueueDepth(); depth != 0 {
		t.Errorf("queue depth = %d, want 0 after successful delivery", depth)
	}
}

func TestTrackQueuesOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gatewayResponse(w, http.StatusInternalServerError, nil)
	}))
	defer server.Close()

	e := New(testEmitterConfig(t, server.URL))
	defer func() { _ = e.Close() }()

	e.Track(models.EventUsage, nil)
	e.Track(models.EventUsage, nil)

	if depth := e.QueueDepth(); depth != 2 {
		t.Errorf("queue depth = %d, want 2 after failed deliveries", depth)
	}
}

func TestTrackNeverBlocksOnUnreachableGateway(t *testing.T) {
	cfg := testEmitterConfig(t, "http://127.0.0.1:1")
	cfg.DeliveryTimeout = 500 * time.Millisecond

	e := New(cfg)
	defer func() { _ = e.Close() }()

	start := time.Now()
	e.Track(models.EventInstall, nil)
	elapsed := time.Since(start)

	// The host operation pays at most the bounded timeout plus local
	// queue I/O, never an indefinite wait.
	if elapsed > 2*time.Second {
		t.Errorf("Track took %s with unreachable gateway", elapsed)
	}
	if depth := e.QueueDepth(); depth != 1 {
		t.Errorf("queue depth = %d, want 1", depth)
	}
}

func TestTrackDisabled(t *testing.T) {
	cfg := testEmitterConfig(t, "http://127.0.0.1:1")
	cfg.Disabled = true

	e := New(cfg)
	defer func() { _ = e.Close() }()

	e.Track(models.EventInstall, nil)

	if depth := e.QueueDepth(); depth != 0 {
		t.Errorf("disabled emitter queued an event, depth = %d", depth)
	}
}

func TestPermanentRejectionNotQueued(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gatewayResponse(w, http.StatusBadRequest, nil)
	}))
	defer server.Close()

	e := New(testEmitterConfig(t, server.URL))
	defer func() { _ = e.Close() }()

	e.Track(models.EventInstall, nil)

	if depth := e.QueueDepth(); depth != 0 {
		t.Errorf("queue depth = %d, want 0 for permanently rejected event", depth)
	}
}

func TestSuccessfulDeliveryFlushesQueue(t *testing.T) {
	var batchSize atomic.Int64
	var failing atomic.Bool
	failing.Store(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/events":
			if failing.Load() {
				gatewayResponse(w, http.StatusInternalServerError, nil)
				return
			}
			gatewayResponse(w, http.StatusOK, map[string]interface{}{"accepted": true})
		case "/api/v1/events/batch":
			var events []models.EcosystemEvent
			if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
				t.Errorf("failed to decode batch: %v", err)
			}
			batchSize.Store(int64(len(events)))
			gatewayResponse(w, http.StatusOK, map[string]interface{}{
				"accepted_count": len(events),
			})
		}
	}))
	defer server.Close()

	e := New(testEmitterConfig(t, server.URL))
	defer func() { _ = e.Close() }()

	// Two failures land in the queue.
	e.Track(models.EventUsage, nil)
	e.Track(models.EventUsage, nil)
	if depth := e.QueueDepth(); depth != 2 {
		t.Fatalf("queue depth = %d, want 2", depth)
	}

	// Connectivity returns: the next success flushes the backlog.
	failing.Store(false)
	e.Track(models.EventUsage, nil)

	if batchSize.Load() != 2 {
		t.Errorf("flush batch size = %d, want 2", batchSize.Load())
	}
	if depth := e.QueueDepth(); depth != 0 {
		t.Errorf("queue depth = %d, want 0 after full flush", depth)
	}
}

func TestPartialFlushKeepsQueue(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/events":
			if failing.Load() {
				gatewayResponse(w, http.StatusInternalServerError, nil)
				return
			}
			gatewayResponse(w, http.StatusOK, map[string]interface{}{"accepted": true})
		case "/api/v1/events/batch":
			// One event hit a transient server-side failure: the whole
			// snapshot must stay queued.
			gatewayResponse(w, http.StatusOK, map[string]interface{}{
				"accepted_count": 1,
				"rejected": []map[string]interface{}{
					{"index": 1, "reason": "internal_error"},
				},
			})
		}
	}))
	defer server.Close()

	e := New(testEmitterConfig(t, server.URL))
	defer func() { _ = e.Close() }()

	e.Track(models.EventUsage, nil)
	e.Track(models.EventUsage, nil)

	failing.Store(false)
	e.Track(models.EventUsage, nil)

	if depth := e.QueueDepth(); depth != 2 {
		t.Errorf("queue depth = %d, want 2 after partial acknowledgement", depth)
	}
}

func TestPoisonEventsClearedByFlush(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/events":
			if failing.Load() {
				gatewayResponse(w, http.StatusInternalServerError, nil)
				return
			}
			gatewayResponse(w, http.StatusOK, map[string]interface{}{"accepted": true})
		case "/api/v1/events/batch":
			// One accepted, one permanently rejected: both are resolved,
			// so the queue may clear.
			gatewayResponse(w, http.StatusOK, map[string]interface{}{
				"accepted_count": 1,
				"rejected": []map[string]interface{}{
					{"index": 1, "reason": "missing_field"},
				},
			})
		}
	}))
	defer server.Close()

	e := New(testEmitterConfig(t, server.URL))
	defer func() { _ = e.Close() }()

	e.Track(models.EventUsage, nil)
	e.Track(models.EventUsage, nil)

	failing.Store(false)
	e.Track(models.EventUsage, nil)

	if depth := e.QueueDepth(); depth != 0 {
		t.Errorf("queue depth = %d, want 0 when every event is accepted or poison", depth)
	}
}

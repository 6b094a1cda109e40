// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/velograph/internal/config"
	"github.com/tomtom215/velograph/internal/models"
)

// testDBSemaphore limits concurrent database creation to prevent resource
// exhaustion in CI. Many parallel DuckDB CGO calls can hang under resource
// pressure, so database access is fully serialized across tests.
var testDBSemaphore = make(chan struct{}, 1)

// testDBMutex serializes the New() call itself.
var testDBMutex sync.Mutex

// setupTestDB creates a new in-memory test database with timeout
// protection. The semaphore is held for the entire test lifecycle, not
// just creation, so only one test has an active DuckDB connection at a
// time; it is released via t.Cleanup.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	cfg := &config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "1GB",
	}

	type result struct {
		db  *DB
		err error
	}

	resultCh := make(chan result, 1)
	go func() {
		testDBMutex.Lock()
		db, err := New(cfg)
		testDBMutex.Unlock()
		resultCh <- result{db: db, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("Failed to create test database: %v", res.err)
		}
		t.Cleanup(func() {
			if err := res.db.Close(); err != nil {
				t.Logf("Failed to close test database: %v", err)
			}
		})
		return res.db
	case <-time.After(120 * time.Second):
		t.Fatalf("Timeout: database creation took longer than 120s")
		return nil
	}
}

// testEvent builds a valid event with a fresh event_id.
func testEvent(product string, eventType models.EventType, participantHash string) *models.EcosystemEvent {
	return &models.EcosystemEvent{
		EventID:         uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		Product:         product,
		EventType:       eventType,
		ParticipantHash: participantHash,
		SessionID:       uuid.NewString(),
	}
}

func TestNewDatabase(t *testing.T) {
	db := setupTestDB(t)

	ctx := context.Background()
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if db.Conn() == nil {
		t.Fatal("Conn returned nil")
	}
}

func TestInsertEventIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	event := testEvent("registry", models.EventInstall, "participant-a")
	event.Metadata = map[string]string{models.MetadataCatalogItemID: "pkg-123"}

	inserted, err := db.InsertEvent(ctx, event)
	if err != nil {
		t.Fatalf("InsertEvent failed: %v", err)
	}
	if !inserted {
		t.Error("first insert should report inserted=true")
	}

	// Redelivery of the same event_id must be a no-op.
	inserted, err = db.InsertEvent(ctx, event)
	if err != nil {
		t.Fatalf("duplicate InsertEvent failed: %v", err)
	}
	if inserted {
		t.Error("duplicate insert should report inserted=false")
	}

	count, err := db.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 persisted event, got %d", count)
	}
}

func TestInsertEventWithoutOptionalFields(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	event := testEvent("sports", models.EventUsage, "participant-b")
	event.SessionID = ""
	event.Metadata = nil

	inserted, err := db.InsertEvent(ctx, event)
	if err != nil {
		t.Fatalf("InsertEvent failed: %v", err)
	}
	if !inserted {
		t.Error("expected inserted=true")
	}
}

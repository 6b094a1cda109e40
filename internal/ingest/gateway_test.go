// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/velograph/internal/config"
	"github.com/tomtom215/velograph/internal/database"
	"github.com/tomtom215/velograph/internal/models"
)

// testDBSemaphore serializes DuckDB access across tests in this package;
// concurrent CGO database use can hang under CI resource pressure.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestGateway(t *testing.T) *Gateway {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := database.New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "1GB",
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})

	analytics := &config.AnalyticsConfig{
		AttributionWindow: 48 * time.Hour,
		Products:          models.DefaultProducts(),
	}
	return New(db, analytics)
}

func validEvent(product string, eventType models.EventType) *models.EcosystemEvent {
	return &models.EcosystemEvent{
		EventID:         uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		Product:         product,
		EventType:       eventType,
		ParticipantHash: "abcdef0123456789",
	}
}

func TestIngestAcceptsValidEvent(t *testing.T) {
	g := setupTestGateway(t)
	ctx := context.Background()

	result, err := g.Ingest(ctx, validEvent("registry", models.EventInstall))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if !result.Accepted || result.Duplicate {
		t.Errorf("result = %+v, want accepted non-duplicate", result)
	}
}

func TestIngestIdempotentOnEventID(t *testing.T) {
	g := setupTestGateway(t)
	ctx := context.Background()

	event := validEvent("registry", models.EventInstall)

	if _, err := g.Ingest(ctx, event); err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}
	result, err := g.Ingest(ctx, event)
	if err != nil {
		t.Fatalf("redelivered Ingest failed: %v", err)
	}
	if !result.Accepted || !result.Duplicate {
		t.Errorf("result = %+v, want accepted duplicate", result)
	}

	// The duplicate must not have touched any aggregate.
	journey, err := g.db.GetJourney(ctx, event.ParticipantHash)
	if err != nil {
		t.Fatalf("GetJourney failed: %v", err)
	}
	if journey.TotalInteractions != 1 {
		t.Errorf("total_interactions = %d, want 1 after redelivery", journey.TotalInteractions)
	}
}

func TestIngestRejectsMalformedEvents(t *testing.T) {
	g := setupTestGateway(t)
	ctx := context.Background()

	missingID := validEvent("registry", models.EventInstall)
	missingID.EventID = ""

	badProduct := validEvent("minesweeper", models.EventInstall)

	badType := validEvent("registry", models.EventType("telemetry"))

	shortHash := validEvent("registry", models.EventInstall)
	shortHash.ParticipantHash = "abc"

	tests := []struct {
		name       string
		event      *models.EcosystemEvent
		wantReason string
	}{
		{"nil event", nil, ReasonMissingField},
		{"missing event_id", missingID, ReasonMissingField},
		{"unknown product", badProduct, ReasonUnknownProduct},
		{"unknown event_type", badType, ReasonUnknownEventType},
		{"participant hash too short", shortHash, ReasonMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Ingest(ctx, tt.event)
			if !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("expected ErrMalformedEvent, got %v", err)
			}
			var rej *RejectionError
			if !errors.As(err, &rej) {
				t.Fatalf("expected *RejectionError, got %T", err)
			}
			if rej.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", rej.Reason, tt.wantReason)
			}
		})
	}

	// Nothing was persisted.
	count, err := g.db.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if count != 0 {
		t.Errorf("persisted events = %d, want 0", count)
	}
}

func TestIngestRejectsSelfReferral(t *testing.T) {
	g := setupTestGateway(t)

	event := validEvent("registry", models.EventReferral)
	event.Metadata = map[string]string{models.MetadataReferralDestination: "registry"}

	_, err := g.Ingest(context.Background(), event)
	var rej *RejectionError
	if !errors.As(err, &rej) || rej.Reason != ReasonSelfReferral {
		t.Fatalf("expected self-referral rejection, got %v", err)
	}

	count, err := g.db.CountEvents(context.Background())
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if count != 0 {
		t.Errorf("self-referral must not be persisted, got %d events", count)
	}
}

func TestIngestReferralRequiresDestination(t *testing.T) {
	g := setupTestGateway(t)

	event := validEvent("registry", models.EventReferral)

	_, err := g.Ingest(context.Background(), event)
	var rej *RejectionError
	if !errors.As(err, &rej) || rej.Reason != ReasonMissingField {
		t.Fatalf("expected missing-destination rejection, got %v", err)
	}
}

func TestIngestFansOutToAggregators(t *testing.T) {
	g := setupTestGateway(t)
	ctx := context.Background()

	participant := "abcdef0123456789"
	now := time.Now().UTC()

	// Referral from registry to sports, then an install on sports:
	// journey, velocity, discovery edge, and attribution all move.
	referral := validEvent("registry", models.EventReferral)
	referral.Timestamp = now.Add(-time.Hour)
	referral.Metadata = map[string]string{models.MetadataReferralDestination: "sports"}
	if _, err := g.Ingest(ctx, referral); err != nil {
		t.Fatalf("referral Ingest failed: %v", err)
	}

	install := validEvent("sports", models.EventInstall)
	install.Timestamp = now
	if _, err := g.Ingest(ctx, install); err != nil {
		t.Fatalf("install Ingest failed: %v", err)
	}

	journey, err := g.db.GetJourney(ctx, participant)
	if err != nil {
		t.Fatalf("GetJourney failed: %v", err)
	}
	if journey.TotalInteractions != 2 {
		t.Errorf("total_interactions = %d, want 2", journey.TotalInteractions)
	}
	if len(journey.ConversionPath) != 2 {
		t.Errorf("conversion_path = %v, want [registry sports]", journey.ConversionPath)
	}

	velocity, err := g.db.GetRealtimeVelocity(ctx, "sports", 24, now)
	if err != nil {
		t.Fatalf("GetRealtimeVelocity failed: %v", err)
	}
	if len(velocity.Buckets) != 1 || velocity.Buckets[0].InstallCount != 1 {
		t.Errorf("velocity buckets = %+v, want one bucket with 1 install", velocity.Buckets)
	}

	edges, err := g.db.GetCrossProductFunnel(ctx)
	if err != nil {
		t.Fatalf("GetCrossProductFunnel failed: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	if edges[0].DiscoveryCount != 1 || edges[0].ConversionCount != 1 {
		t.Errorf("edge = %+v, want discovery 1 conversion 1", edges[0])
	}
}

func TestIngestDiscoveryEventSkipsVelocity(t *testing.T) {
	g := setupTestGateway(t)
	ctx := context.Background()

	event := validEvent("registry", models.EventDiscovery)
	event.Metadata = map[string]string{
		models.MetadataSearchQuery: "chess",
		models.MetadataResultCount: "14",
	}
	if _, err := g.Ingest(ctx, event); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	velocity, err := g.db.GetRealtimeVelocity(ctx, "registry", 24, time.Now().UTC())
	if err != nil {
		t.Fatalf("GetRealtimeVelocity failed: %v", err)
	}
	if len(velocity.Buckets) != 0 {
		t.Errorf("discovery events must not touch velocity buckets, got %+v", velocity.Buckets)
	}

	// The journey still advances.
	if _, err := g.db.GetJourney(ctx, event.ParticipantHash); err != nil {
		t.Errorf("GetJourney failed: %v", err)
	}
}

func TestIngestBatchPartialFailure(t *testing.T) {
	g := setupTestGateway(t)

	bad := validEvent("registry", models.EventInstall)
	bad.EventID = ""

	events := []*models.EcosystemEvent{
		validEvent("registry", models.EventInstall),
		bad,
		validEvent("sports", models.EventUsage),
	}

	result := g.IngestBatch(context.Background(), events)

	if result.AcceptedCount != 2 {
		t.Errorf("accepted_count = %d, want 2", result.AcceptedCount)
	}
	if len(result.Rejected) != 1 {
		t.Fatalf("rejected = %+v, want exactly 1 entry", result.Rejected)
	}
	if result.Rejected[0].Index != 1 {
		t.Errorf("rejected index = %d, want 1", result.Rejected[0].Index)
	}
	if result.Rejected[0].Reason != ReasonMissingField {
		t.Errorf("rejected reason = %q, want %q", result.Rejected[0].Reason, ReasonMissingField)
	}
}

func TestIngestBatchDuplicatesCountAccepted(t *testing.T) {
	g := setupTestGateway(t)

	event := validEvent("registry", models.EventInstall)
	result := g.IngestBatch(context.Background(), []*models.EcosystemEvent{event, event})

	if result.AcceptedCount != 2 {
		t.Errorf("accepted_count = %d, want 2 (duplicate is success)", result.AcceptedCount)
	}
	if len(result.Rejected) != 0 {
		t.Errorf("rejected = %+v, want none", result.Rejected)
	}
}

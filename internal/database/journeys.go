// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/velograph/internal/models"
)

// ErrJourneyNotFound is returned when no journey exists for a participant.
var ErrJourneyNotFound = errors.New("journey not found")

// RecordTouchpoint applies one event to the participant's journey as a
// single atomic upsert. On first contact it creates the journey; on every
// later event it advances last_touchpoint, bumps total_interactions, and
// appends the product to conversion_path only when not already present.
//
// Because the whole update is one statement, two events for the same
// participant arriving concurrently cannot race to a lost update; DuckDB
// aborts one of them with a transaction conflict, which is retried.
func (db *DB) RecordTouchpoint(ctx context.Context, participantHash, product string, timestamp time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	ts := timestamp.UTC()

	query := `INSERT INTO user_journeys (
		participant_hash, first_touchpoint, last_touchpoint, conversion_path,
		total_interactions, first_seen_at, last_seen_at
	) VALUES (?, ?, ?, [?], 1, ?, ?)
	ON CONFLICT (participant_hash) DO UPDATE SET
		last_touchpoint = EXCLUDED.last_touchpoint,
		conversion_path = CASE
			WHEN list_contains(conversion_path, EXCLUDED.last_touchpoint) THEN conversion_path
			ELSE list_append(conversion_path, EXCLUDED.last_touchpoint)
		END,
		total_interactions = total_interactions + 1,
		first_seen_at = LEAST(first_seen_at, EXCLUDED.first_seen_at),
		last_seen_at = GREATEST(last_seen_at, EXCLUDED.last_seen_at)`

	err := db.withConflictRetry(ctx, func(ctx context.Context) error {
		_, err := db.conn.ExecContext(ctx, query,
			participantHash, product, product, product, ts, ts)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record touchpoint for participant: %w", err)
	}

	return nil
}

// GetJourney returns the journey for one participant hash, or
// ErrJourneyNotFound.
func (db *DB) GetJourney(ctx context.Context, participantHash string) (*models.UserJourney, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT participant_hash, first_touchpoint, last_touchpoint,
		conversion_path, total_interactions, first_seen_at, last_seen_at
	FROM user_journeys
	WHERE participant_hash = ?`

	var (
		journey models.UserJourney
		rawPath any
	)
	err := db.conn.QueryRowContext(ctx, query, participantHash).Scan(
		&journey.ParticipantHash, &journey.FirstTouchpoint, &journey.LastTouchpoint,
		&rawPath, &journey.TotalInteractions, &journey.FirstSeenAt, &journey.LastSeenAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJourneyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query journey: %w", err)
	}

	journey.ConversionPath, err = listToStrings(rawPath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode conversion path: %w", err)
	}

	return &journey, nil
}

// listToStrings converts a DuckDB LIST column value to []string. The
// driver surfaces list columns as []interface{}, one element per entry.
func listToStrings(value any) ([]string, error) {
	items, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected list column type %T", value)
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected list element type %T", item)
		}
		out[i] = s
	}
	return out, nil
}

// CountJourneys returns the number of distinct participant journeys.
func (db *DB) CountJourneys(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_journeys`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count journeys: %w", err)
	}
	return count, nil
}

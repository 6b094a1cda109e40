// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package database

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/velograph/internal/models"
)

// InsertEvent persists a raw ecosystem event. Returns (true, nil) when the
// event was inserted and (false, nil) when an event with the same event_id
// already existed, which makes redelivery a no-op at the storage level.
func (db *DB) InsertEvent(ctx context.Context, event *models.EcosystemEvent) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var metadataJSON any
	if len(event.Metadata) > 0 {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return false, fmt.Errorf("failed to marshal event metadata: %w", err)
		}
		metadataJSON = string(data)
	}

	query := `INSERT INTO ecosystem_events (
		event_id, event_time, product, event_type, participant_hash, session_id, metadata
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (event_id) DO NOTHING`

	var inserted bool
	err := db.withConflictRetry(ctx, func(ctx context.Context) error {
		res, err := db.conn.ExecContext(ctx, query,
			event.EventID, event.Timestamp.UTC(), event.Product, string(event.EventType),
			event.ParticipantHash, nullableString(event.SessionID), metadataJSON,
		)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = rows > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to insert event %s: %w", event.EventID, err)
	}

	return inserted, nil
}

// CountEvents returns the total number of persisted raw events.
func (db *DB) CountEvents(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM ecosystem_events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// nullableString maps "" to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

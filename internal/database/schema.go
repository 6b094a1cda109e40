// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package database

import (
	"context"
	"fmt"
	"time"
)

// createTables creates all tables and indexes if they do not exist.
//
// ecosystem_events is the immutable raw event log; its primary key on
// event_id is what makes ingestion idempotent. The remaining tables are
// the aggregates, each keyed so that one upsert statement per event is
// sufficient and atomic.
func (db *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS ecosystem_events (
			event_id UUID PRIMARY KEY,
			event_time TIMESTAMP NOT NULL,
			product VARCHAR NOT NULL,
			event_type VARCHAR NOT NULL,
			participant_hash VARCHAR NOT NULL,
			session_id VARCHAR,
			metadata VARCHAR,
			ingested_at TIMESTAMP NOT NULL DEFAULT current_timestamp
		)`,

		`CREATE TABLE IF NOT EXISTS user_journeys (
			participant_hash VARCHAR PRIMARY KEY,
			first_touchpoint VARCHAR NOT NULL,
			last_touchpoint VARCHAR NOT NULL,
			conversion_path VARCHAR[] NOT NULL,
			total_interactions BIGINT NOT NULL,
			first_seen_at TIMESTAMP NOT NULL,
			last_seen_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS velocity_buckets (
			product VARCHAR NOT NULL,
			bucket_date DATE NOT NULL,
			bucket_hour INTEGER NOT NULL,
			install_count BIGINT NOT NULL DEFAULT 0,
			unique_participant_count BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (product, bucket_date, bucket_hour)
		)`,

		// Exact unique-participant membership per bucket. The primary key
		// makes the set-add idempotent; the bucket counter above is bumped
		// only when the membership insert actually inserted.
		`CREATE TABLE IF NOT EXISTS velocity_participants (
			product VARCHAR NOT NULL,
			bucket_date DATE NOT NULL,
			bucket_hour INTEGER NOT NULL,
			participant_hash VARCHAR NOT NULL,
			PRIMARY KEY (product, bucket_date, bucket_hour, participant_hash)
		)`,

		`CREATE TABLE IF NOT EXISTS discovery_edges (
			source_product VARCHAR NOT NULL,
			destination_product VARCHAR NOT NULL,
			discovery_count BIGINT NOT NULL DEFAULT 0,
			conversion_count BIGINT NOT NULL DEFAULT 0,
			last_updated TIMESTAMP NOT NULL,
			PRIMARY KEY (source_product, destination_product)
		)`,

		// One row per referral awaiting attribution. A conversion consumes
		// the most recent unconverted row inside the attribution window by
		// flipping converted, which is what enforces exactly-once counting
		// per referral.
		`CREATE TABLE IF NOT EXISTS pending_referrals (
			id UUID PRIMARY KEY,
			participant_hash VARCHAR NOT NULL,
			source_product VARCHAR NOT NULL,
			destination_product VARCHAR NOT NULL,
			referred_at TIMESTAMP NOT NULL,
			converted BOOLEAN NOT NULL DEFAULT FALSE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_events_participant
			ON ecosystem_events(participant_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_events_product_time
			ON ecosystem_events(product, event_time)`,
		`CREATE INDEX IF NOT EXISTS idx_referrals_attribution
			ON pending_referrals(participant_hash, destination_product, converted, referred_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

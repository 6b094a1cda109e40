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

	"github.com/google/uuid"

	"github.com/tomtom215/velograph/internal/models"
)

// ErrSelfReferral is returned when source and destination product are the
// same. Self-loops are rejected rather than silently dropped so caller
// bugs surface.
var ErrSelfReferral = errors.New("self-referral: source and destination product are the same")

// RecordReferral increments the directed discovery edge from source to
// destination, creating it with count 1 when absent, and registers a
// pending referral for later conversion attribution.
func (db *DB) RecordReferral(ctx context.Context, sourceProduct, destinationProduct, participantHash string, referredAt time.Time) error {
	if sourceProduct == destinationProduct {
		return ErrSelfReferral
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	edgeQuery := `INSERT INTO discovery_edges (
		source_product, destination_product, discovery_count, conversion_count, last_updated
	) VALUES (?, ?, 1, 0, ?)
	ON CONFLICT (source_product, destination_product) DO UPDATE SET
		discovery_count = discovery_count + 1,
		last_updated = EXCLUDED.last_updated`

	referredAt = referredAt.UTC()

	err := db.withConflictRetry(ctx, func(ctx context.Context) error {
		_, err := db.conn.ExecContext(ctx, edgeQuery,
			sourceProduct, destinationProduct, referredAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to increment discovery edge: %w", err)
	}

	pendingQuery := `INSERT INTO pending_referrals (
		id, participant_hash, source_product, destination_product, referred_at
	) VALUES (?, ?, ?, ?, ?)`

	err = db.withConflictRetry(ctx, func(ctx context.Context) error {
		_, err := db.conn.ExecContext(ctx, pendingQuery,
			uuid.New(), participantHash, sourceProduct, destinationProduct, referredAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to register pending referral: %w", err)
	}

	return nil
}

// RecordConversion attributes a conversion-class event for the destination
// product to the participant's most recent unconverted referral inside the
// attribution window, if one exists.
//
// The referral row is consumed by flipping its converted flag in the same
// transaction that bumps the edge's conversion_count, so each referral is
// counted at most once no matter how many subsequent usage events arrive.
// A conversion with no matching referral is a valid outcome: the event
// stays recorded but no edge changes.
func (db *DB) RecordConversion(ctx context.Context, destinationProduct, participantHash string, at time.Time, window time.Duration) (*models.AttributionResult, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	at = at.UTC()
	windowStart := at.Add(-window)

	consumeQuery := `UPDATE pending_referrals SET converted = TRUE
	WHERE id = (
		SELECT id FROM pending_referrals
		WHERE participant_hash = ?
		  AND destination_product = ?
		  AND converted = FALSE
		  AND referred_at >= ?
		  AND referred_at <= ?
		ORDER BY referred_at DESC
		LIMIT 1
	)
	RETURNING source_product`

	result := &models.AttributionResult{}

	err := db.withConflictRetry(ctx, func(ctx context.Context) error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var sourceProduct string
		err = tx.QueryRowContext(ctx, consumeQuery,
			participantHash, destinationProduct, windowStart, at).Scan(&sourceProduct)
		if errors.Is(err, sql.ErrNoRows) {
			result.Attributed = false
			result.SourceProduct = ""
			return tx.Commit()
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE discovery_edges SET conversion_count = conversion_count + 1, last_updated = ?
			WHERE source_product = ? AND destination_product = ?`,
			at, sourceProduct, destinationProduct)
		if err != nil {
			return err
		}

		result.Attributed = true
		result.SourceProduct = sourceProduct
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record conversion: %w", err)
	}

	return result, nil
}

// SweepReferrals removes pending referrals that can no longer affect
// attribution: consumed rows and rows older than the attribution window.
// Returns the number of rows removed.
func (db *DB) SweepReferrals(ctx context.Context, window time.Duration, now time.Time) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	cutoff := now.UTC().Add(-window)

	var swept int64
	err := db.withConflictRetry(ctx, func(ctx context.Context) error {
		res, err := db.conn.ExecContext(ctx,
			`DELETE FROM pending_referrals WHERE converted = TRUE OR referred_at < ?`, cutoff)
		if err != nil {
			return err
		}
		swept, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to sweep referrals: %w", err)
	}

	return swept, nil
}

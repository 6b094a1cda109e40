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

// bucketKey computes the (date, hour) bucket coordinates for a timestamp.
// Buckets are keyed on UTC calendar date and hour-of-day.
func bucketKey(timestamp time.Time) (string, int) {
	ts := timestamp.UTC()
	return ts.Format("2006-01-02"), ts.Hour()
}

// IncrementVelocity counts one install/usage event into the hourly bucket
// for the product, tracking unique participants exactly.
//
// The membership insert is idempotent on its primary key; the bucket
// counter is bumped by 1 install and by 1 unique participant only when
// the membership row was actually new. A crash between the two statements
// leaves the unique count one short, which the next event for the same
// participant cannot fix but a reconciliation pass over
// velocity_participants can (bounded, self-healing undercount).
func (db *DB) IncrementVelocity(ctx context.Context, product, participantHash string, timestamp time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	bucketDate, bucketHour := bucketKey(timestamp)

	memberQuery := `INSERT INTO velocity_participants (
		product, bucket_date, bucket_hour, participant_hash
	) VALUES (?, ?, ?, ?)
	ON CONFLICT (product, bucket_date, bucket_hour, participant_hash) DO NOTHING`

	var newParticipant int64
	err := db.withConflictRetry(ctx, func(ctx context.Context) error {
		res, err := db.conn.ExecContext(ctx, memberQuery,
			product, bucketDate, bucketHour, participantHash)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows > 0 {
			newParticipant = 1
		} else {
			newParticipant = 0
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record bucket participant: %w", err)
	}

	bucketQuery := `INSERT INTO velocity_buckets (
		product, bucket_date, bucket_hour, install_count, unique_participant_count
	) VALUES (?, ?, ?, 1, ?)
	ON CONFLICT (product, bucket_date, bucket_hour) DO UPDATE SET
		install_count = install_count + 1,
		unique_participant_count = unique_participant_count + EXCLUDED.unique_participant_count`

	err = db.withConflictRetry(ctx, func(ctx context.Context) error {
		_, err := db.conn.ExecContext(ctx, bucketQuery,
			product, bucketDate, bucketHour, newParticipant)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to increment velocity bucket: %w", err)
	}

	return nil
}

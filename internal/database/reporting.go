// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/velograph/internal/models"
)

// GetRealtimeVelocity returns the trailing bucket series for a product
// plus the most recent growth rate and trend flag.
//
// Growth rate compares the most recent bucket with the bucket exactly one
// hour earlier: (current - previous) / previous. A zero or absent previous
// bucket yields a nil rate (JSON null), never a divide-by-zero fault.
// Trend is up for a positive rate, down for a negative one, and flat when
// the rate is nil or zero.
func (db *DB) GetRealtimeVelocity(ctx context.Context, product string, windowHours int, now time.Time) (*models.RealtimeVelocity, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	now = now.UTC()
	windowStart := now.Add(-time.Duration(windowHours) * time.Hour).Truncate(time.Hour)

	query := `SELECT strftime(bucket_date, '%Y-%m-%d'), bucket_hour, install_count, unique_participant_count
	FROM velocity_buckets
	WHERE product = ?
	  AND CAST(bucket_date AS TIMESTAMP) + bucket_hour * INTERVAL 1 HOUR >= ?
	  AND CAST(bucket_date AS TIMESTAMP) + bucket_hour * INTERVAL 1 HOUR <= ?
	ORDER BY bucket_date, bucket_hour`

	rows, err := db.conn.QueryContext(ctx, query, product, windowStart, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query velocity buckets: %w", err)
	}
	defer closeQuietly(rows)

	buckets := make([]models.VelocityBucket, 0)
	for rows.Next() {
		b := models.VelocityBucket{Product: product}
		if err := rows.Scan(&b.BucketDate, &b.BucketHour, &b.InstallCount, &b.UniqueParticipantCount); err != nil {
			return nil, fmt.Errorf("failed to scan velocity bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate velocity buckets: %w", err)
	}

	report := &models.RealtimeVelocity{
		Product:     product,
		WindowHours: windowHours,
		Buckets:     buckets,
		GrowthRate:  growthRate(buckets),
		GeneratedAt: now,
	}
	report.Trending = trendFlag(report.GrowthRate)

	return report, nil
}

// growthRate computes the most recent growth rate from an ascending
// bucket series: latest bucket against the bucket one hour before it.
func growthRate(buckets []models.VelocityBucket) *float64 {
	if len(buckets) < 2 {
		return nil
	}

	current := buckets[len(buckets)-1]
	currentTime, err := bucketTime(current)
	if err != nil {
		return nil
	}
	wantPrevious := currentTime.Add(-time.Hour)

	for i := len(buckets) - 2; i >= 0; i-- {
		prevTime, err := bucketTime(buckets[i])
		if err != nil {
			return nil
		}
		if !prevTime.Equal(wantPrevious) {
			continue
		}
		if buckets[i].InstallCount == 0 {
			return nil
		}
		rate := float64(current.InstallCount-buckets[i].InstallCount) / float64(buckets[i].InstallCount)
		return &rate
	}

	return nil
}

// bucketTime converts a bucket's (date, hour) key to its UTC start time.
func bucketTime(b models.VelocityBucket) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", b.BucketDate, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(b.BucketHour) * time.Hour), nil
}

// trendFlag maps a growth rate to its trend flag.
func trendFlag(rate *float64) models.TrendFlag {
	switch {
	case rate == nil || *rate == 0:
		return models.TrendFlat
	case *rate > 0:
		return models.TrendUp
	default:
		return models.TrendDown
	}
}

// GetCrossProductFunnel returns every discovery edge with its computed
// conversion rate, sorted by discovery count descending. ConversionRate
// is nil when the edge has zero discoveries.
func (db *DB) GetCrossProductFunnel(ctx context.Context) ([]models.FunnelEdge, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT source_product, destination_product, discovery_count, conversion_count, last_updated
	FROM discovery_edges
	ORDER BY discovery_count DESC, source_product, destination_product`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query discovery edges: %w", err)
	}
	defer closeQuietly(rows)

	edges := make([]models.FunnelEdge, 0)
	for rows.Next() {
		var edge models.FunnelEdge
		if err := rows.Scan(&edge.SourceProduct, &edge.DestinationProduct,
			&edge.DiscoveryCount, &edge.ConversionCount, &edge.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan discovery edge: %w", err)
		}
		if edge.DiscoveryCount > 0 {
			rate := float64(edge.ConversionCount) / float64(edge.DiscoveryCount)
			edge.ConversionRate = &rate
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate discovery edges: %w", err)
	}

	return edges, nil
}

// GetJourneyPatterns groups journeys by identical conversion path and
// returns the most frequent paths with their average interaction count
// and average elapsed time between first and last contact.
func (db *DB) GetJourneyPatterns(ctx context.Context, minPathLength, limit int) ([]models.JourneyPattern, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT conversion_path,
		COUNT(*) AS journey_count,
		AVG(total_interactions),
		AVG(date_diff('second', first_seen_at, last_seen_at))
	FROM user_journeys
	WHERE len(conversion_path) >= ?
	GROUP BY conversion_path
	ORDER BY journey_count DESC, CAST(conversion_path AS VARCHAR)
	LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, minPathLength, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journey patterns: %w", err)
	}
	defer closeQuietly(rows)

	patterns := make([]models.JourneyPattern, 0)
	for rows.Next() {
		var (
			pattern models.JourneyPattern
			rawPath any
		)
		if err := rows.Scan(&rawPath, &pattern.JourneyCount,
			&pattern.AvgInteractions, &pattern.AvgElapsedSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan journey pattern: %w", err)
		}
		pattern.ConversionPath, err = listToStrings(rawPath)
		if err != nil {
			return nil, fmt.Errorf("failed to decode conversion path: %w", err)
		}
		patterns = append(patterns, pattern)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journey patterns: %w", err)
	}

	return patterns, nil
}

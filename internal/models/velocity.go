// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package models

import "time"

// VelocityBucket is one hourly activity counter for one product:
// key (product, calendar date, hour-of-day 0-23). Buckets are created
// lazily on the first matching event and their counts only ever grow.
type VelocityBucket struct {
	Product    string `json:"product"`
	BucketDate string `json:"bucket_date"` // YYYY-MM-DD
	BucketHour int    `json:"bucket_hour"` // 0-23

	// InstallCount counts install/usage events in this hour.
	InstallCount int64 `json:"install_count"`

	// UniqueParticipantCount counts distinct participant hashes seen in
	// this hour.
	UniqueParticipantCount int64 `json:"unique_participant_count"`
}

// TrendFlag summarizes the sign of the most recent growth rate.
type TrendFlag string

const (
	TrendUp   TrendFlag = "up"
	TrendDown TrendFlag = "down"
	TrendFlat TrendFlag = "flat"
)

// RealtimeVelocity is the read-side report for one product: the trailing
// bucket series plus the most recent growth rate and its trend flag.
//
// GrowthRate is (current - previous) / previous over the two most recent
// hour buckets. A zero or absent previous bucket yields a nil growth rate
// (reported as JSON null), never an error or a zero.
type RealtimeVelocity struct {
	Product     string           `json:"product"`
	WindowHours int              `json:"window_hours"`
	Buckets     []VelocityBucket `json:"buckets"`
	GrowthRate  *float64         `json:"growth_rate"`
	Trending    TrendFlag        `json:"trending"`
	GeneratedAt time.Time        `json:"generated_at"`
}

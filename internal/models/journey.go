// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package models

import "time"

// UserJourney is the growing record of one anonymous participant's path
// through the ecosystem. One record per participant hash.
//
// ConversionPath is append-only and duplicate-free: a product is appended
// the first time it is touched and never removed or reordered. Ordering
// reflects the order the gateway processed events, which may differ from
// client generation order under concurrent multi-process use on the same
// machine (accepted eventual-consistency tradeoff).
type UserJourney struct {
	ParticipantHash string `json:"participant_hash"`

	// FirstTouchpoint is the product of the participant's first event.
	FirstTouchpoint string `json:"first_touchpoint"`

	// LastTouchpoint is the product of the most recently processed event.
	LastTouchpoint string `json:"last_touchpoint"`

	// ConversionPath is the ordered sequence of distinct products, first
	// occurrence only.
	ConversionPath []string `json:"conversion_path"`

	// TotalInteractions is a monotonic event counter.
	TotalInteractions int64 `json:"total_interactions"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// ProductsTouched returns the set of products in the journey. Set
// membership is exactly the conversion path's elements; the path is the
// canonical duplicate-free record.
func (j *UserJourney) ProductsTouched() []string {
	out := make([]string, len(j.ConversionPath))
	copy(out, j.ConversionPath)
	return out
}

// JourneyPattern is one group in the journey-patterns report: all journeys
// sharing an identical conversion path.
type JourneyPattern struct {
	// ConversionPath is the shared path.
	ConversionPath []string `json:"conversion_path"`

	// JourneyCount is how many participants share this path.
	JourneyCount int64 `json:"journey_count"`

	// AvgInteractions is the mean TotalInteractions across the group.
	AvgInteractions float64 `json:"avg_interactions"`

	// AvgElapsedSeconds is the mean elapsed time between first_seen_at
	// and last_seen_at across the group, in seconds.
	AvgElapsedSeconds float64 `json:"avg_elapsed_seconds"`
}

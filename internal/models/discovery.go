// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package models

import "time"

// DiscoveryMatrixEdge is one directed edge in the cross-product discovery
// graph: how often referrals flowed from source to destination, and how
// many of those referrals converted within the attribution window.
//
// Self-loops are rejected at the API boundary and never stored.
// conversion_count <= discovery_count holds in practice but is not
// enforced as a constraint; attribution is heuristic.
type DiscoveryMatrixEdge struct {
	SourceProduct      string    `json:"source_product"`
	DestinationProduct string    `json:"destination_product"`
	DiscoveryCount     int64     `json:"discovery_count"`
	ConversionCount    int64     `json:"conversion_count"`
	LastUpdated        time.Time `json:"last_updated"`
}

// FunnelEdge is a DiscoveryMatrixEdge enriched with its computed
// conversion rate for the cross-product funnel report. ConversionRate is
// nil (JSON null) when DiscoveryCount is zero.
type FunnelEdge struct {
	DiscoveryMatrixEdge
	ConversionRate *float64 `json:"conversion_rate"`
}

// AttributionResult describes the outcome of attempting to attribute a
// conversion event to a prior referral.
type AttributionResult struct {
	// Attributed is true when an unconverted referral to the destination
	// was found inside the attribution window.
	Attributed bool

	// SourceProduct is the referral's source when Attributed is true.
	SourceProduct string
}

// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

// Package models defines the core data model for the analytics engine:
// ecosystem events, user journeys, velocity buckets, and discovery edges.
package models

import (
	"time"
)

// Product identifies one product in the ecosystem.
type Product string

// Known ecosystem products. The registry is the hub; the rest are
// downstream products reachable through cross-product referrals.
// The gateway's product allowlist is configurable, so deployments can
// extend this set without a code change.
const (
	ProductRegistry Product = "registry"
	ProductSports   Product = "sports"
	ProductArcade   Product = "arcade"
	ProductStudio   Product = "studio"
	ProductAcademy  Product = "academy"
)

// DefaultProducts is the built-in product allowlist used when the
// configuration does not override it.
func DefaultProducts() []string {
	return []string{
		string(ProductRegistry),
		string(ProductSports),
		string(ProductArcade),
		string(ProductStudio),
		string(ProductAcademy),
	}
}

// EventType classifies an ecosystem event.
type EventType string

const (
	// EventInstall records a catalog item install.
	EventInstall EventType = "install"

	// EventDiscovery records a discovery/search interaction.
	EventDiscovery EventType = "discovery"

	// EventUsage records general product usage.
	EventUsage EventType = "usage"

	// EventConversion records an explicit conversion outcome.
	EventConversion EventType = "conversion"

	// EventReferral records a cross-product referral; metadata carries
	// the referral destination.
	EventReferral EventType = "referral"
)

// IsValid reports whether the event type is one of the known values.
func (t EventType) IsValid() bool {
	switch t {
	case EventInstall, EventDiscovery, EventUsage, EventConversion, EventReferral:
		return true
	default:
		return false
	}
}

// Well-known metadata keys. The metadata map is open; these are the keys
// the engine itself reads or that clients commonly attach.
const (
	MetadataCatalogItemID       = "catalog_item_id"
	MetadataReferralDestination = "referral_destination"
	MetadataSearchQuery         = "search_query"
	MetadataResultCount         = "result_count"
)

// EcosystemEvent is an immutable usage fact emitted by a product client.
//
// EventID is client-generated and globally unique; the gateway uses it for
// deduplication, so redelivery of the same event is a no-op. Events are
// never mutated after creation.
type EcosystemEvent struct {
	// EventID is the globally unique, client-generated identifier.
	EventID string `json:"event_id" validate:"required,uuid4"`

	// Timestamp is when the user action occurred (client clock, UTC).
	Timestamp time.Time `json:"timestamp" validate:"required"`

	// Product is the ecosystem product the event originates from.
	Product string `json:"product" validate:"required"`

	// EventType classifies the event.
	EventType EventType `json:"event_type" validate:"required"`

	// ParticipantHash is the anonymous, stable, non-reversible machine
	// identifier. Never mapped back to PII.
	ParticipantHash string `json:"participant_hash" validate:"required,min=8,max=128"`

	// SessionID is an opaque identifier, one per process invocation.
	SessionID string `json:"session_id,omitempty"`

	// Metadata is an open key/value map (catalog_item_id,
	// referral_destination, search_query, result_count, ...).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ReferralDestination returns the referral destination product from
// metadata, or the empty string when not set.
func (e *EcosystemEvent) ReferralDestination() string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[MetadataReferralDestination]
}

// IsConvertible reports whether this event type may be attributed to a
// prior referral. Only explicit install, usage, and conversion events
// qualify; discovery and referral events never do.
func (e *EcosystemEvent) IsConvertible() bool {
	switch e.EventType {
	case EventInstall, EventUsage, EventConversion:
		return true
	default:
		return false
	}
}

// CountsTowardVelocity reports whether this event increments the hourly
// velocity bucket for its product (install/usage activity).
func (e *EcosystemEvent) CountsTowardVelocity() bool {
	return e.EventType == EventInstall || e.EventType == EventUsage
}

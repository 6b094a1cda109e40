// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package identity

import (
	"strings"
	"testing"
)

func TestHashCharacteristicsDeterministic(t *testing.T) {
	a := HashCharacteristics("host-1", "linux/amd64", "Intel Xeon")
	b := HashCharacteristics("host-1", "linux/amd64", "Intel Xeon")
	if a != b {
		t.Errorf("same inputs produced different hashes: %s vs %s", a, b)
	}
}

func TestHashCharacteristicsDistinct(t *testing.T) {
	tests := []struct {
		name  string
		left  []string
		right []string
	}{
		{
			name:  "different hostname",
			left:  []string{"host-1", "linux/amd64"},
			right: []string{"host-2", "linux/amd64"},
		},
		{
			name:  "different platform",
			left:  []string{"host-1", "linux/amd64"},
			right: []string{"host-1", "darwin/arm64"},
		},
		{
			name:  "attribute boundary is not ambiguous",
			left:  []string{"ab", "c"},
			right: []string{"a", "bc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if HashCharacteristics(tt.left...) == HashCharacteristics(tt.right...) {
				t.Errorf("inputs %v and %v collided", tt.left, tt.right)
			}
		})
	}
}

func TestHashCharacteristicsFormat(t *testing.T) {
	h := HashCharacteristics("host-1", "linux/amd64")

	if len(h) != 64 {
		t.Errorf("expected 64-char hex digest, got %d chars", len(h))
	}
	if strings.ToLower(h) != h {
		t.Errorf("digest should be lowercase hex: %s", h)
	}
	for _, c := range h {
		isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
		if !isHex {
			t.Errorf("non-hex character %q in digest", c)
		}
	}
}

func TestParticipantHashStable(t *testing.T) {
	a := ParticipantHash()
	b := ParticipantHash()

	if a == "" {
		t.Fatal("participant hash is empty")
	}
	if a != b {
		t.Errorf("participant hash not stable across invocations: %s vs %s", a, b)
	}
}

func TestPersistedFallbackIDStable(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("HOME", tmp)

	a := persistedFallbackID()
	b := persistedFallbackID()

	if a == "" {
		t.Fatal("fallback id is empty")
	}
	if a != b {
		t.Errorf("fallback id not stable: %s vs %s", a, b)
	}
}

// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

// Package identity derives the anonymous participant hash from stable
// local machine characteristics. The hash is deterministic per machine,
// one-way, and never reversible to the underlying attributes. No network
// access is performed.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/tomtom215/velograph/internal/logging"
)

// fallbackFileName holds the persisted random identifier used when no
// machine characteristic can be read.
const fallbackFileName = "participant_id"

// HashCharacteristics is the pure hashing core: it digests a composite of
// machine attributes into a fixed-length hex string. Deterministic for
// identical input, collision-resistant, no inverse mapping.
func HashCharacteristics(attrs ...string) string {
	composite := strings.Join(attrs, "|")
	sum := sha256.Sum256([]byte(composite))
	return hex.EncodeToString(sum[:])
}

// ParticipantHash returns the stable anonymous identifier for this machine.
//
// It hashes hostname, platform, and CPU model. When none of those can be
// read it falls back to a random identifier persisted under the user
// config directory, so repeated invocations still agree.
func ParticipantHash() string {
	attrs := machineAttributes()
	if len(attrs) > 0 {
		return HashCharacteristics(attrs...)
	}
	return persistedFallbackID()
}

// machineAttributes collects the stable local attributes that are
// available. Missing attributes are skipped rather than erroring.
func machineAttributes() []string {
	var attrs []string

	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		attrs = append(attrs, hostname)
	}

	attrs = append(attrs, runtime.GOOS+"/"+runtime.GOARCH)

	if model := cpuModel(); model != "" {
		attrs = append(attrs, model)
	}

	return attrs
}

// cpuModel returns the CPU model string on Linux, best effort. Other
// platforms return "" and the hash is computed from the remaining
// attributes.
func cpuModel() string {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "model name") {
			continue
		}
		if _, value, found := strings.Cut(line, ":"); found {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// persistedFallbackID returns a random identifier written once on first
// run. If even persistence fails, a process-lifetime random identifier is
// returned; stability across invocations is then lost, which is the only
// remaining option.
func persistedFallbackID() string {
	path, err := fallbackPath()
	if err == nil {
		if data, readErr := os.ReadFile(path); readErr == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return id
			}
		}
	}

	id := HashCharacteristics(uuid.NewString())

	if err == nil {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o700); mkErr == nil {
			if writeErr := os.WriteFile(path, []byte(id+"\n"), 0o600); writeErr != nil {
				logging.Warn().Err(writeErr).Msg("Failed to persist fallback participant id")
			}
		}
	}

	return id
}

// fallbackPath returns the location of the persisted fallback identifier.
func fallbackPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "velograph", fallbackFileName), nil
}

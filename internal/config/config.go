// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

// Package config loads and validates application configuration using
// Koanf v2 with layered sources: struct defaults, an optional YAML file,
// and environment variables (highest priority).
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/tomtom215/velograph/internal/models"
)

// Config is the root configuration for the Velograph server and the
// embedded emitter defaults used by product CLIs/SDKs.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	API       APIConfig       `koanf:"api"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Emitter   EmitterConfig   `koanf:"emitter"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// RateLimitReqs / RateLimitWindow bound per-IP request rates on the
	// ingest surface. RateLimitDisabled is for CI only.
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the DuckDB file path, or ":memory:" for tests.
	Path string `koanf:"path"`

	// MaxMemory is passed through to DuckDB (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads limits DuckDB worker threads; 0 uses runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// APIConfig holds read-side defaults.
type APIConfig struct {
	// DefaultWindowHours is the velocity window when ?hours= is omitted.
	DefaultWindowHours int `koanf:"default_window_hours"`

	// MaxWindowHours caps the velocity window.
	MaxWindowHours int `koanf:"max_window_hours"`

	// DefaultPatternLimit / MaxPatternLimit bound journey-pattern pages.
	DefaultPatternLimit int `koanf:"default_pattern_limit"`
	MaxPatternLimit     int `koanf:"max_pattern_limit"`
}

// AnalyticsConfig holds aggregation policy knobs.
type AnalyticsConfig struct {
	// AttributionWindow bounds how far back a conversion may look for an
	// unconverted referral. Heuristic policy, not a hard invariant.
	AttributionWindow time.Duration `koanf:"attribution_window"`

	// Products is the allowlist of valid product identifiers.
	Products []string `koanf:"products"`

	// SweepInterval is how often expired pending referrals are removed.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// EmitterConfig holds client-side emitter settings. These are read by the
// product CLIs/SDKs embedding the emitter, not by the server.
type EmitterConfig struct {
	// GatewayURL is the base URL of the ingestion gateway.
	GatewayURL string `koanf:"gateway_url"`

	// Product is the identifier the embedding product reports as.
	Product string `koanf:"product"`

	// DeliveryTimeout caps the synchronous delivery attempt. The host
	// operation never waits longer than this.
	DeliveryTimeout time.Duration `koanf:"delivery_timeout"`

	// QueuePath is the BadgerDB directory for the offline durable queue.
	QueuePath string `koanf:"queue_path"`

	// QueueMaxEntries caps the durable queue. Beyond the cap the oldest
	// entries are dropped (documented lossy degradation while offline).
	QueueMaxEntries int `koanf:"queue_max_entries"`

	// FlushMinInterval throttles opportunistic queue flushes triggered by
	// successful deliveries.
	FlushMinInterval time.Duration `koanf:"flush_min_interval"`

	// Disabled turns tracking off entirely (telemetry opt-out).
	Disabled bool `koanf:"disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// layered first, then overridden by config file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            4270,
			Timeout:         30 * time.Second,
			RateLimitReqs:   300,
			RateLimitWindow: 1 * time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Path:      "/data/velograph.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		API: APIConfig{
			DefaultWindowHours:  24,
			MaxWindowHours:      24 * 30,
			DefaultPatternLimit: 20,
			MaxPatternLimit:     100,
		},
		Analytics: AnalyticsConfig{
			AttributionWindow: 48 * time.Hour,
			Products:          models.DefaultProducts(),
			SweepInterval:     1 * time.Hour,
		},
		Emitter: EmitterConfig{
			GatewayURL:       "http://127.0.0.1:4270",
			Product:          string(models.ProductRegistry),
			DeliveryTimeout:  2 * time.Second,
			QueuePath:        "", // resolved under the user config dir when empty
			QueueMaxEntries:  1000,
			FlushMinInterval: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Analytics.AttributionWindow <= 0 {
		return fmt.Errorf("analytics.attribution_window must be positive, got %s", c.Analytics.AttributionWindow)
	}
	if len(c.Analytics.Products) == 0 {
		return fmt.Errorf("analytics.products must not be empty")
	}
	if c.API.DefaultWindowHours < 1 || c.API.DefaultWindowHours > c.API.MaxWindowHours {
		return fmt.Errorf("api.default_window_hours must be 1-%d, got %d", c.API.MaxWindowHours, c.API.DefaultWindowHours)
	}
	if c.Emitter.GatewayURL != "" {
		if _, err := url.Parse(c.Emitter.GatewayURL); err != nil {
			return fmt.Errorf("emitter.gateway_url is not a valid URL: %w", err)
		}
	}
	if c.Emitter.DeliveryTimeout <= 0 {
		return fmt.Errorf("emitter.delivery_timeout must be positive, got %s", c.Emitter.DeliveryTimeout)
	}
	if c.Emitter.QueueMaxEntries < 1 {
		return fmt.Errorf("emitter.queue_max_entries must be at least 1, got %d", c.Emitter.QueueMaxEntries)
	}
	return nil
}

// ProductAllowed reports whether the given product identifier is in the
// configured allowlist.
func (c *AnalyticsConfig) ProductAllowed(product string) bool {
	for _, p := range c.Products {
		if p == product {
			return true
		}
	}
	return false
}

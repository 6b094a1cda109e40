// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with defaults failed: %v", err)
	}

	if cfg.Server.Port != 4270 {
		t.Errorf("Server.Port = %d, want 4270", cfg.Server.Port)
	}
	if cfg.Analytics.AttributionWindow != 48*time.Hour {
		t.Errorf("Analytics.AttributionWindow = %s, want 48h", cfg.Analytics.AttributionWindow)
	}
	if len(cfg.Analytics.Products) == 0 {
		t.Error("Analytics.Products is empty, want built-in allowlist")
	}
	if cfg.Emitter.DeliveryTimeout != 2*time.Second {
		t.Errorf("Emitter.DeliveryTimeout = %s, want 2s", cfg.Emitter.DeliveryTimeout)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("VELOGRAPH_HTTP_PORT", "9999")
	t.Setenv("VELOGRAPH_DUCKDB_PATH", ":memory:")
	t.Setenv("VELOGRAPH_ANALYTICS_PRODUCTS", "registry, sports ,arcade")
	t.Setenv("VELOGRAPH_EMITTER_DISABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Database.Path != ":memory:" {
		t.Errorf("Database.Path = %s, want :memory:", cfg.Database.Path)
	}
	if !cfg.Emitter.Disabled {
		t.Error("Emitter.Disabled = false, want true")
	}

	// Comma-separated env values become slices with whitespace trimmed.
	want := []string{"registry", "sports", "arcade"}
	if len(cfg.Analytics.Products) != len(want) {
		t.Fatalf("Analytics.Products = %v, want %v", cfg.Analytics.Products, want)
	}
	for i, p := range want {
		if cfg.Analytics.Products[i] != p {
			t.Errorf("Analytics.Products[%d] = %s, want %s", i, cfg.Analytics.Products[i], p)
		}
	}
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		errMsg  string
	}{
		{
			name:    "port out of range",
			envVars: map[string]string{"VELOGRAPH_HTTP_PORT": "70000"},
			errMsg:  "server.port",
		},
		{
			name:    "empty database path",
			envVars: map[string]string{"VELOGRAPH_DUCKDB_PATH": ""},
			errMsg:  "database.path",
		},
		{
			name:    "negative attribution window",
			envVars: map[string]string{"VELOGRAPH_ATTRIBUTION_WINDOW": "-1h"},
			errMsg:  "analytics.attribution_window",
		},
		{
			name:    "zero queue cap",
			envVars: map[string]string{"VELOGRAPH_EMITTER_QUEUE_MAX_ENTRIES": "0"},
			errMsg:  "emitter.queue_max_entries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("Load succeeded, want validation error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %q, want it to mention %q", err, tt.errMsg)
			}
		})
	}
}

func TestEnvTransformDropsUnknownVariables(t *testing.T) {
	if got := envTransformFunc("VELOGRAPH_SOMETHING_ELSE"); got != "" {
		t.Errorf("envTransformFunc(VELOGRAPH_SOMETHING_ELSE) = %q, want empty (unmapped vars are dropped)", got)
	}
	if got := envTransformFunc("VELOGRAPH_HTTP_PORT"); got != "server.port" {
		t.Errorf("envTransformFunc(VELOGRAPH_HTTP_PORT) = %q, want server.port", got)
	}
	if got := envTransformFunc("VELOGRAPH_GATEWAY_URL"); got != "emitter.gateway_url" {
		t.Errorf("envTransformFunc(VELOGRAPH_GATEWAY_URL) = %q, want emitter.gateway_url", got)
	}
}

func TestUnprefixedEnvIgnored(t *testing.T) {
	// A host product's own GATEWAY_URL must never leak into the
	// configuration; only the VELOGRAPH_ namespace is read.
	t.Setenv("GATEWAY_URL", "http://imposter:1")
	t.Setenv("HTTP_PORT", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Emitter.GatewayURL == "http://imposter:1" {
		t.Error("unprefixed GATEWAY_URL leaked into emitter.gateway_url")
	}
	if cfg.Server.Port == 1 {
		t.Error("unprefixed HTTP_PORT leaked into server.port")
	}
}

func TestProductAllowed(t *testing.T) {
	analytics := &AnalyticsConfig{Products: []string{"registry", "sports"}}

	if !analytics.ProductAllowed("registry") {
		t.Error("ProductAllowed(registry) = false, want true")
	}
	if analytics.ProductAllowed("unknown") {
		t.Error("ProductAllowed(unknown) = true, want false")
	}
}

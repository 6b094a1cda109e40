// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in priority
// order. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/velograph/config.yaml",
	"/etc/velograph/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "VELOGRAPH_CONFIG_PATH"

// envPrefix namespaces every configuration environment variable so host
// environment noise (PATH, HOME, a product's own GATEWAY_URL) can never
// leak into the configuration.
const envPrefix = "VELOGRAPH_"

// Load loads configuration with layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// VELOGRAPH_GATEWAY_URL -> emitter.gateway_url,
	// VELOGRAPH_HTTP_PORT -> server.port, ...
	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when they arrive as env var strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"analytics.products",
}

// processSliceFields converts comma-separated env values to slices for the
// known slice fields. YAML-sourced slices pass through untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps VELOGRAPH_-prefixed environment variable names to
// koanf config paths. Unmapped variables are dropped.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	envMappings := map[string]string{
		// Server
		"http_host":          "server.host",
		"http_port":          "server.port",
		"http_timeout":       "server.timeout",
		"rate_limit_reqs":    "server.rate_limit_reqs",
		"rate_limit_window":  "server.rate_limit_window",
		"disable_rate_limit": "server.rate_limit_disabled",
		"cors_origins":       "server.cors_origins",

		// Database
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// API
		"api_default_window_hours":  "api.default_window_hours",
		"api_max_window_hours":      "api.max_window_hours",
		"api_default_pattern_limit": "api.default_pattern_limit",
		"api_max_pattern_limit":     "api.max_pattern_limit",

		// Analytics
		"attribution_window":       "analytics.attribution_window",
		"analytics_products":       "analytics.products",
		"analytics_sweep_interval": "analytics.sweep_interval",

		// Emitter (client side)
		"gateway_url":                "emitter.gateway_url",
		"emitter_product":            "emitter.product",
		"emitter_delivery_timeout":   "emitter.delivery_timeout",
		"emitter_queue_path":         "emitter.queue_path",
		"emitter_queue_max_entries":  "emitter.queue_max_entries",
		"emitter_flush_min_interval": "emitter.flush_min_interval",
		"emitter_disabled":           "emitter.disabled",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

// Package main is the entry point for the Velograph server application.
//
// Velograph is the central analytics gateway for a suite of developer
// tools. It ingests anonymized usage events from the product CLIs and
// SDKs, maintains per-participant journey state, hourly adoption-velocity
// buckets, and a cross-product discovery graph, and serves read-side
// reports over a REST API.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Database: Initialize DuckDB with the event log and aggregate tables
//  3. Gateway: Validate, persist, and fan out incoming events
//  4. HTTP Server: REST API for ingestion, reporting, and health checks
//  5. Supervisor: Suture tree running the HTTP server and the referral sweeper
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (VELOGRAPH_HTTP_PORT, VELOGRAPH_DUCKDB_PATH, ...)
//   - Config file (config.yaml, or VELOGRAPH_CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Closes the database connection
//
// # Example Usage
//
//	export VELOGRAPH_DUCKDB_PATH=/data/velograph.duckdb
//	export VELOGRAPH_HTTP_PORT=4270
//	./velograph
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/velograph/internal/api"
	"github.com/tomtom215/velograph/internal/config"
	"github.com/tomtom215/velograph/internal/database"
	"github.com/tomtom215/velograph/internal/ingest"
	"github.com/tomtom215/velograph/internal/logging"
	"github.com/tomtom215/velograph/internal/supervisor"
	"github.com/tomtom215/velograph/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Velograph with supervisor tree")
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Int("port", cfg.Server.Port).
		Strs("products", cfg.Analytics.Products).
		Dur("attribution_window", cfg.Analytics.AttributionWindow).
		Msg("Configuration loaded")

	// Initialize database
	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	// Create the ingestion gateway and HTTP router
	gateway := ingest.New(db, &cfg.Analytics)
	router := api.NewRouter(gateway, db, cfg)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       120 * time.Second,
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog compatibility
	slogLogger := logging.NewSlogLogger()

	treeCfg := supervisor.DefaultTreeConfig()
	tree := supervisor.NewTree(slogLogger, treeCfg)

	tree.AddDataService(services.NewSweeperService(db, cfg.Analytics.AttributionWindow, cfg.Analytics.SweepInterval))
	tree.AddAPIService(services.NewHTTPService(server, treeCfg.ShutdownTimeout))

	errCh := tree.ServeBackground(ctx)
	logging.Info().Str("addr", server.Addr).Msg("Velograph server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
		if err := <-errCh; err != nil && err != context.Canceled {
			logging.Error().Err(err).Msg("Supervisor tree exited with error")
		}
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logging.Fatal().Err(err).Msg("Supervisor tree exited unexpectedly")
		}
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within shutdown timeout")
		}
	}

	logging.Info().Msg("Velograph server stopped")
}

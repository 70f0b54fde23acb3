// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

// Package main is the entry point for the Embywatch server.
//
// Embywatch is a self-hosted analytics service for Emby media servers.
// It periodically syncs play history from one or more configured
// servers into an embedded DuckDB store and serves aggregated watch
// statistics (rollups, leaderboards, marathons, abandonment, viewing
// predictions) over a JSON API.
//
// # Startup sequence
//
//  1. Configuration: koanf layers (defaults, config.yaml, EW_ env vars)
//  2. Logging: zerolog, configured from the log section
//  3. Database: embedded DuckDB with schema migration
//  4. Sync engine: rate-limited, breaker-wrapped Emby clients
//  5. Supervision tree: scheduled sync loop + HTTP server under suture
//
// # Signal handling
//
// SIGINT and SIGTERM cancel the root context; the tree drains the HTTP
// server within http.shutdown_timeout and stops the sync loop.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/dpoulsen/embywatch/internal/api"
	"github.com/dpoulsen/embywatch/internal/config"
	"github.com/dpoulsen/embywatch/internal/database"
	"github.com/dpoulsen/embywatch/internal/logging"
	"github.com/dpoulsen/embywatch/internal/supervisor"
	"github.com/dpoulsen/embywatch/internal/supervisor/services"
	embysync "github.com/dpoulsen/embywatch/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
	})
	logging.Info().Str("addr", cfg.HTTP.Addr).Msg("Starting Embywatch")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("Failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close database")
		}
	}()

	engine := embysync.NewEngine(db, &cfg.Sync)
	handler := api.NewHandler(db, engine, cfg)
	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: api.NewRouter(handler, &cfg.HTTP),
	}

	tree := supervisor.NewTree(supervisor.TreeConfig{
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})
	tree.AddAPIService(services.NewHTTPService(server, cfg.HTTP.ShutdownTimeout))
	if cfg.Sync.Enabled {
		tree.AddSyncService(services.NewSyncService(engine, cfg.Sync.Interval))
	} else {
		logging.Warn().Msg("Scheduled sync disabled, history only updates on manual triggers")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Fatal().Err(err).Msg("Supervision tree failed")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service missed shutdown timeout")
		}
	}
	logging.Info().Msg("Embywatch stopped")
}

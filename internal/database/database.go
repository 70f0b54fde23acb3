// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

// Package database provides the DuckDB-backed history store.
//
// It owns the relational schema (servers, users, play history, session
// logs, sync logs, sync leases) and exposes typed, context-aware data
// access methods. Aggregation logic lives in internal/stats; this
// package only stores and retrieves rows.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/dpoulsen/embywatch/internal/config"
	"github.com/dpoulsen/embywatch/internal/logging"
)

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New creates a new database connection and initializes the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure the parent directory exists for file-backed databases.
	// An in-memory store (empty path or ":memory:") skips this.
	if cfg.Path != "" && cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	connStr := cfg.Path
	if connStr != "" && connStr != ":memory:" {
		connStr = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
			cfg.Path, numThreads, cfg.MaxMemory)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// DuckDB is an embedded single-writer engine; a small pool avoids
	// write contention while still allowing concurrent readers.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{conn: conn, cfg: cfg}

	if err := db.createSchema(); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logging.Warn().Err(closeErr).Msg("failed to close database after schema error")
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Int("threads", numThreads).Msg("database ready")
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the store is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// ensureContext attaches the configured query timeout when the caller's
// context has no deadline of its own.
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	timeout := db.cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

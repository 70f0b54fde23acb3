// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

/*
schema.go - Database Schema Management

Tables:
  - servers: configured remote Emby servers
  - global_users: optional cross-server identities
  - server_users: one Emby account per server, UNIQUE (server_id, emby_user_id)
  - play_history: one watch record per (server_user, item); the
    (server_user_id, item_id) dedup rule is enforced at write time
    (most-recent-row-wins), not by a unique constraint, because
    re-watches on different dates legitimately coexist as rows
  - session_logs: one row per playback session
  - sync_logs: append-only sync audit trail
  - sync_leases: store-backed overlap guard for sync invocations

All ids come from sequences so inserts can use RETURNING id.
*/

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createSchema creates sequences, tables, and indexes.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	statements := append(sequenceStatements(), tableStatements()...)
	statements = append(statements, indexStatements()...)

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %s: %w", stmt, err)
		}
	}

	return nil
}

func sequenceStatements() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_servers_id`,
		`CREATE SEQUENCE IF NOT EXISTS seq_global_users_id`,
		`CREATE SEQUENCE IF NOT EXISTS seq_server_users_id`,
		`CREATE SEQUENCE IF NOT EXISTS seq_play_history_id`,
		`CREATE SEQUENCE IF NOT EXISTS seq_session_logs_id`,
		`CREATE SEQUENCE IF NOT EXISTS seq_sync_logs_id`,
	}
}

func tableStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS servers (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_servers_id'),
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			port INTEGER DEFAULT 0,
			api_key TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS global_users (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_global_users_id'),
			name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS server_users (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_server_users_id'),
			server_id BIGINT NOT NULL,
			emby_user_id TEXT NOT NULL,
			username TEXT NOT NULL,
			global_user_id BIGINT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (server_id, emby_user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS play_history (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_play_history_id'),
			server_id BIGINT NOT NULL,
			server_user_id BIGINT NOT NULL,
			item_id TEXT NOT NULL,
			item_name TEXT NOT NULL,
			item_type TEXT NOT NULL,
			series_name TEXT DEFAULT '',
			season_name TEXT DEFAULT '',
			episode_number INTEGER DEFAULT 0,
			season_number INTEGER DEFAULT 0,
			genres TEXT DEFAULT '',
			production_year INTEGER DEFAULT 0,
			duration_ticks BIGINT DEFAULT 0,
			played_at TIMESTAMP NOT NULL,
			playback_position_ticks BIGINT DEFAULT 0,
			play_duration_ticks BIGINT DEFAULT 0,
			play_count INTEGER DEFAULT 0,
			completed BOOLEAN NOT NULL DEFAULT false,
			video_codec TEXT DEFAULT '',
			resolution TEXT DEFAULT '',
			hdr BOOLEAN NOT NULL DEFAULT false
		)`,

		`CREATE TABLE IF NOT EXISTS session_logs (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_session_logs_id'),
			server_id BIGINT NOT NULL,
			session_key TEXT NOT NULL,
			server_user_id BIGINT NOT NULL,
			device TEXT DEFAULT '',
			client TEXT DEFAULT '',
			item_id TEXT NOT NULL,
			item_name TEXT NOT NULL,
			item_type TEXT DEFAULT '',
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			duration_ticks BIGINT DEFAULT 0,
			position_ticks BIGINT DEFAULT 0,
			real_duration_ticks BIGINT DEFAULT 0,
			paused BOOLEAN NOT NULL DEFAULT false,
			active BOOLEAN NOT NULL DEFAULT true,
			transcoding BOOLEAN NOT NULL DEFAULT false,
			video_codec TEXT DEFAULT '',
			bitrate BIGINT DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS sync_logs (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_sync_logs_id'),
			server_id BIGINT NOT NULL,
			sync_type TEXT NOT NULL,
			synced_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			status TEXT NOT NULL,
			message TEXT DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS sync_leases (
			name TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			acquired_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`,
	}
}

func indexStatements() []string {
	return []string{
		// Dedup-key lookup and per-user watermark reads
		`CREATE INDEX IF NOT EXISTS idx_history_user_item ON play_history (server_user_id, item_id, played_at)`,
		`CREATE INDEX IF NOT EXISTS idx_history_played_at ON play_history (played_at)`,
		`CREATE INDEX IF NOT EXISTS idx_history_server ON play_history (server_id)`,
		// Marathon clustering walks episodes per (user, series) in time order
		`CREATE INDEX IF NOT EXISTS idx_history_series ON play_history (server_user_id, series_name, played_at)`,
		`CREATE INDEX IF NOT EXISTS idx_server_users_server ON server_users (server_id)`,
		`CREATE INDEX IF NOT EXISTS idx_server_users_global ON server_users (global_user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_session_logs_key ON session_logs (session_key)`,
		`CREATE INDEX IF NOT EXISTS idx_session_logs_started ON session_logs (started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_logs_server ON sync_logs (server_id, synced_at)`,
	}
}

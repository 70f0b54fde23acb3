// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

/*
sessions.go - Session Log Access and Sync Audit Trail

Session rows are written by the external session-polling collaborator;
the core reads them for aggregation and writes the end marker when an
operator issues a stop command. Sync logs are append-only.
*/

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dpoulsen/embywatch/internal/models"
)

// InsertSessionLog records one playback session row. Exposed for the
// session-polling collaborator and for seeding test fixtures.
func (db *DB) InsertSessionLog(ctx context.Context, s *models.SessionLog) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`INSERT INTO session_logs (
			server_id, session_key, server_user_id, device, client,
			item_id, item_name, item_type, started_at, ended_at,
			duration_ticks, position_ticks, real_duration_ticks,
			paused, active, transcoding, video_codec, bitrate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		s.ServerID, s.SessionKey, s.ServerUserID, s.Device, s.Client,
		s.ItemID, s.ItemName, s.ItemType, s.StartedAt, s.EndedAt,
		s.DurationTicks, s.PositionTicks, s.RealDurationTicks,
		s.Paused, s.Active, s.Transcoding, s.VideoCodec, s.Bitrate)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert session log: %w", err)
	}
	return id, nil
}

// EndSession writes the end timestamp and clears the active flag for a
// session, identified by its remote session key. Ending an already
// ended session is a no-op.
func (db *DB) EndSession(ctx context.Context, sessionKey string, endedAt time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE session_logs SET ended_at = ?, active = false
		 WHERE session_key = ? AND active`,
		endedAt, sessionKey)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", sessionKey, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSessionLogs returns session rows within the filter's date range,
// newest first. The filter's user scope applies the same global-user
// expansion as history reads.
func (db *DB) ListSessionLogs(ctx context.Context, filter HistoryFilter) ([]models.SessionLog, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	userIDs, restrict, err := db.resolveFilterUsers(ctx, filter)
	if err != nil {
		return nil, err
	}
	if restrict && len(userIDs) == 0 {
		return []models.SessionLog{}, nil
	}

	var clauses []string
	var args []interface{}
	if filter.Start != nil {
		clauses = append(clauses, "started_at >= ?")
		args = append(args, *filter.Start)
	}
	if filter.End != nil {
		clauses = append(clauses, "started_at <= ?")
		args = append(args, *filter.End)
	}
	if len(filter.ServerIDs) > 0 {
		placeholders := make([]string, len(filter.ServerIDs))
		for i, id := range filter.ServerIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		clauses = append(clauses, fmt.Sprintf("server_id IN (%s)", strings.Join(placeholders, ", ")))
	}
	if len(userIDs) > 0 {
		placeholders := make([]string, len(userIDs))
		for i, id := range userIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		clauses = append(clauses, fmt.Sprintf("server_user_id IN (%s)", strings.Join(placeholders, ", ")))
	}

	query := `SELECT id, server_id, session_key, server_user_id, device, client,
		item_id, item_name, item_type, started_at, ended_at,
		duration_ticks, position_ticks, real_duration_ticks,
		paused, active, transcoding, video_codec, bitrate
		FROM session_logs`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY started_at DESC, id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list session logs: %w", err)
	}
	defer rows.Close()

	var sessions []models.SessionLog
	for rows.Next() {
		var s models.SessionLog
		if err := rows.Scan(
			&s.ID, &s.ServerID, &s.SessionKey, &s.ServerUserID, &s.Device, &s.Client,
			&s.ItemID, &s.ItemName, &s.ItemType, &s.StartedAt, &s.EndedAt,
			&s.DurationTicks, &s.PositionTicks, &s.RealDurationTicks,
			&s.Paused, &s.Active, &s.Transcoding, &s.VideoCodec, &s.Bitrate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session log: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session logs: %w", err)
	}
	return sessions, nil
}

// InsertSyncLog appends one sync audit row. Sync logs are never updated
// or deleted.
func (db *DB) InsertSyncLog(ctx context.Context, log *models.SyncLog) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO sync_logs (server_id, sync_type, synced_at, status, message)
		 VALUES (?, ?, ?, ?, ?)`,
		log.ServerID, log.SyncType, log.SyncedAt, log.Status, log.Message); err != nil {
		return fmt.Errorf("failed to insert sync log: %w", err)
	}
	return nil
}

// ListSyncLogs returns the newest sync audit rows, optionally scoped to
// one server. serverID <= 0 means all servers.
func (db *DB) ListSyncLogs(ctx context.Context, serverID int64, limit int) ([]models.SyncLog, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, server_id, sync_type, synced_at, status, message FROM sync_logs`
	var args []interface{}
	if serverID > 0 {
		query += ` WHERE server_id = ?`
		args = append(args, serverID)
	}
	query += fmt.Sprintf(` ORDER BY synced_at DESC, id DESC LIMIT %d`, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	defer rows.Close()

	var logs []models.SyncLog
	for rows.Next() {
		var l models.SyncLog
		if err := rows.Scan(&l.ID, &l.ServerID, &l.SyncType, &l.SyncedAt, &l.Status, &l.Message); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync logs: %w", err)
	}
	return logs, nil
}

// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

/*
history.go - Play History Writes and Read Accessors

Write side (used by the sync engine):
  - LatestPlayedAt: per-user high-water mark for incremental cursoring
  - FindLatestHistory: most recent row for the (server_user_id, item_id)
    dedup key; most-recent-row-wins when historical duplicates exist
  - InsertHistory / UpdateHistoryProgress: the upsert halves

Read side (used by the aggregation engine):
  - ListHistory: filtered rows joined with usernames, newest first
  - ListEpisodeHistory: episode rows in ascending time order, the input
    the marathon clustering walk requires
*/

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dpoulsen/embywatch/internal/models"
)

const historyColumns = `h.id, h.server_id, h.server_user_id, h.item_id, h.item_name,
	h.item_type, h.series_name, h.season_name, h.episode_number, h.season_number,
	h.genres, h.production_year, h.duration_ticks, h.played_at,
	h.playback_position_ticks, h.play_duration_ticks, h.play_count, h.completed,
	h.video_codec, h.resolution, h.hdr`

// LatestPlayedAt returns the most recent stored played_at for one
// ServerUser across all items, or nil when the user has no history.
func (db *DB) LatestPlayedAt(ctx context.Context, serverUserID int64) (*time.Time, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT MAX(played_at) FROM play_history WHERE server_user_id = ?`, serverUserID)

	var t sql.NullTime
	if err := row.Scan(&t); err != nil {
		return nil, fmt.Errorf("failed to read watermark for user %d: %w", serverUserID, err)
	}
	if !t.Valid {
		return nil, nil
	}
	return &t.Time, nil
}

// FindLatestHistory returns the most recent play_history row for the
// dedup key (server_user_id, item_id), or ErrNotFound.
func (db *DB) FindLatestHistory(ctx context.Context, serverUserID int64, itemID string) (*models.PlayHistory, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM play_history h
		 WHERE h.server_user_id = ? AND h.item_id = ?
		 ORDER BY h.played_at DESC, h.id DESC
		 LIMIT 1`, historyColumns),
		serverUserID, itemID)

	h, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find history (%d, %s): %w", serverUserID, itemID, err)
	}
	return h, nil
}

// InsertHistory inserts a new play-history row and returns its id.
func (db *DB) InsertHistory(ctx context.Context, h *models.PlayHistory) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`INSERT INTO play_history (
			server_id, server_user_id, item_id, item_name, item_type,
			series_name, season_name, episode_number, season_number,
			genres, production_year, duration_ticks, played_at,
			playback_position_ticks, play_duration_ticks, play_count,
			completed, video_codec, resolution, hdr
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		h.ServerID, h.ServerUserID, h.ItemID, h.ItemName, h.ItemType,
		h.SeriesName, h.SeasonName, h.EpisodeNumber, h.SeasonNumber,
		h.Genres, h.ProductionYear, h.DurationTicks, h.PlayedAt,
		h.PlaybackPositionTicks, h.PlayDurationTicks, h.PlayCount,
		h.Completed, h.VideoCodec, h.Resolution, h.HDR)

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert play history: %w", err)
	}
	return id, nil
}

// UpdateHistoryProgress updates the playback state of an existing row.
// playedAt is only written when non-nil (the remote supplied a reliable
// timestamp this round); a nil playedAt leaves the stored date alone.
func (db *DB) UpdateHistoryProgress(ctx context.Context, id int64, positionTicks, playDurationTicks int64, playCount int, completed bool, playedAt *time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var err error
	if playedAt != nil {
		_, err = db.conn.ExecContext(ctx,
			`UPDATE play_history
			 SET playback_position_ticks = ?, play_duration_ticks = ?,
			     play_count = ?, completed = ?, played_at = ?
			 WHERE id = ?`,
			positionTicks, playDurationTicks, playCount, completed, *playedAt, id)
	} else {
		_, err = db.conn.ExecContext(ctx,
			`UPDATE play_history
			 SET playback_position_ticks = ?, play_duration_ticks = ?,
			     play_count = ?, completed = ?
			 WHERE id = ?`,
			positionTicks, playDurationTicks, playCount, completed, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update play history %d: %w", id, err)
	}
	return nil
}

// CountHistory returns the number of play_history rows matching the
// filter. Used by sync idempotence checks and tests.
func (db *DB) CountHistory(ctx context.Context, filter HistoryFilter) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	userIDs, restrict, err := db.resolveFilterUsers(ctx, filter)
	if err != nil {
		return 0, err
	}
	if restrict && len(userIDs) == 0 {
		return 0, nil
	}

	clauses, args := buildHistoryConditions(filter, userIDs)
	query := `SELECT COUNT(*) FROM play_history h`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}

	var count int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return count, nil
}

// ListHistory returns filtered play-history rows joined with the
// owning account's username, ordered newest first.
func (db *DB) ListHistory(ctx context.Context, filter HistoryFilter) ([]models.PlayHistory, error) {
	return db.listHistory(ctx, filter, "h.played_at DESC, h.id DESC", nil)
}

// ListEpisodeHistory returns episode rows in ascending played_at order,
// the traversal order the marathon clustering walk requires. Rows with
// an empty series name carry no clustering signal and are excluded.
func (db *DB) ListEpisodeHistory(ctx context.Context, filter HistoryFilter) ([]models.PlayHistory, error) {
	filter.ItemTypes = []string{"Episode"}
	extra := `h.series_name != ''`
	return db.listHistory(ctx, filter, "h.server_user_id, h.series_name, h.played_at, h.id", &extra)
}

func (db *DB) listHistory(ctx context.Context, filter HistoryFilter, orderBy string, extraClause *string) ([]models.PlayHistory, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	userIDs, restrict, err := db.resolveFilterUsers(ctx, filter)
	if err != nil {
		return nil, err
	}
	if restrict && len(userIDs) == 0 {
		return []models.PlayHistory{}, nil
	}

	clauses, args := buildHistoryConditions(filter, userIDs)
	if extraClause != nil {
		clauses = append(clauses, *extraClause)
	}

	query := fmt.Sprintf(
		`SELECT %s, u.username
		 FROM play_history h
		 JOIN server_users u ON h.server_user_id = u.id`, historyColumns)
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY ` + orderBy
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var records []models.PlayHistory
	for rows.Next() {
		var h models.PlayHistory
		if err := rows.Scan(
			&h.ID, &h.ServerID, &h.ServerUserID, &h.ItemID, &h.ItemName,
			&h.ItemType, &h.SeriesName, &h.SeasonName, &h.EpisodeNumber, &h.SeasonNumber,
			&h.Genres, &h.ProductionYear, &h.DurationTicks, &h.PlayedAt,
			&h.PlaybackPositionTicks, &h.PlayDurationTicks, &h.PlayCount, &h.Completed,
			&h.VideoCodec, &h.Resolution, &h.HDR, &h.Username,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		records = append(records, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}
	return records, nil
}

// scanHistory scans one play_history row (without username join).
func scanHistory(row *sql.Row) (*models.PlayHistory, error) {
	var h models.PlayHistory
	err := row.Scan(
		&h.ID, &h.ServerID, &h.ServerUserID, &h.ItemID, &h.ItemName,
		&h.ItemType, &h.SeriesName, &h.SeasonName, &h.EpisodeNumber, &h.SeasonNumber,
		&h.Genres, &h.ProductionYear, &h.DurationTicks, &h.PlayedAt,
		&h.PlaybackPositionTicks, &h.PlayDurationTicks, &h.PlayCount, &h.Completed,
		&h.VideoCodec, &h.Resolution, &h.HDR,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

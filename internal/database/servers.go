// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

/*
servers.go - Server, GlobalUser, and ServerUser CRUD

Server deletion cascades to server_users, play_history, session_logs
and sync_logs inside one transaction. ServerUser upserts are keyed by
(server_id, emby_user_id) and only update the display name on
collision, per the sync engine's user-reconciliation contract.
*/

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dpoulsen/embywatch/internal/models"
)

// CreateServer inserts a new server and returns it with its id.
func (db *DB) CreateServer(ctx context.Context, server *models.Server) (*models.Server, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`INSERT INTO servers (name, url, port, api_key, active)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING id, created_at`,
		server.Name, server.URL, server.Port, server.APIKey, server.Active)

	out := *server
	if err := row.Scan(&out.ID, &out.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert server: %w", err)
	}
	return &out, nil
}

// GetServer fetches one server by id.
func (db *DB) GetServer(ctx context.Context, id int64) (*models.Server, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`SELECT id, name, url, port, api_key, active, created_at
		 FROM servers WHERE id = ?`, id)

	var s models.Server
	err := row.Scan(&s.ID, &s.Name, &s.URL, &s.Port, &s.APIKey, &s.Active, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get server %d: %w", id, err)
	}
	return &s, nil
}

// ListServers returns all servers, optionally restricted to active ones.
func (db *DB) ListServers(ctx context.Context, activeOnly bool) ([]models.Server, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT id, name, url, port, api_key, active, created_at FROM servers`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	defer rows.Close()

	var servers []models.Server
	for rows.Next() {
		var s models.Server
		if err := rows.Scan(&s.ID, &s.Name, &s.URL, &s.Port, &s.APIKey, &s.Active, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan server: %w", err)
		}
		servers = append(servers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating servers: %w", err)
	}
	return servers, nil
}

// UpdateServer persists mutable server fields (name, url, port,
// credential, active flag).
func (db *DB) UpdateServer(ctx context.Context, server *models.Server) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE servers SET name = ?, url = ?, port = ?, api_key = ?, active = ? WHERE id = ?`,
		server.Name, server.URL, server.Port, server.APIKey, server.Active, server.ID)
	if err != nil {
		return fmt.Errorf("failed to update server %d: %w", server.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteServer removes a server and all dependent rows in one
// transaction (server_users, play_history, session_logs, sync_logs).
func (db *DB) DeleteServer(ctx context.Context, id int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM play_history WHERE server_id = ?`,
		`DELETE FROM session_logs WHERE server_id = ?`,
		`DELETE FROM sync_logs WHERE server_id = ?`,
		`DELETE FROM server_users WHERE server_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete dependent rows: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete server %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit server delete: %w", err)
	}
	return nil
}

// CreateGlobalUser creates a cross-server identity.
func (db *DB) CreateGlobalUser(ctx context.Context, name string) (*models.GlobalUser, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		`INSERT INTO global_users (name) VALUES (?) RETURNING id, created_at`, name)

	gu := models.GlobalUser{Name: name}
	if err := row.Scan(&gu.ID, &gu.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert global user: %w", err)
	}
	return &gu, nil
}

// DeleteGlobalUser removes the identity and unlinks its server users;
// the ServerUser rows themselves survive.
func (db *DB) DeleteGlobalUser(ctx context.Context, id int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE server_users SET global_user_id = NULL WHERE global_user_id = ?`, id); err != nil {
		return fmt.Errorf("failed to unlink server users: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM global_users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete global user %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit global user delete: %w", err)
	}
	return nil
}

// ListGlobalUsers returns all cross-server identities.
func (db *DB) ListGlobalUsers(ctx context.Context) ([]models.GlobalUser, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, created_at FROM global_users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list global users: %w", err)
	}
	defer rows.Close()

	var users []models.GlobalUser
	for rows.Next() {
		var gu models.GlobalUser
		if err := rows.Scan(&gu.ID, &gu.Name, &gu.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan global user: %w", err)
		}
		users = append(users, gu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating global users: %w", err)
	}
	return users, nil
}

// LinkServerUser attaches a ServerUser to a GlobalUser identity.
func (db *DB) LinkServerUser(ctx context.Context, serverUserID, globalUserID int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE server_users SET global_user_id = ? WHERE id = ?`, globalUserID, serverUserID)
	if err != nil {
		return fmt.Errorf("failed to link server user %d: %w", serverUserID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UnlinkServerUser clears a ServerUser's GlobalUser reference. The
// ServerUser row is never deleted by this path.
func (db *DB) UnlinkServerUser(ctx context.Context, serverUserID int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE server_users SET global_user_id = NULL WHERE id = ?`, serverUserID)
	if err != nil {
		return fmt.Errorf("failed to unlink server user %d: %w", serverUserID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertServerUser inserts a ServerUser keyed by (server_id,
// emby_user_id) or, when the account is already known, updates only the
// display name. Returns the stored row and whether it was newly added.
func (db *DB) UpsertServerUser(ctx context.Context, serverID int64, embyUserID, username string) (*models.ServerUser, bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	existing, err := db.getServerUserByRemoteID(ctx, serverID, embyUserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	if existing != nil {
		if existing.Username != username {
			if _, err := db.conn.ExecContext(ctx,
				`UPDATE server_users SET username = ? WHERE id = ?`, username, existing.ID); err != nil {
				return nil, false, fmt.Errorf("failed to update server user name: %w", err)
			}
			existing.Username = username
		}
		return existing, false, nil
	}

	row := db.conn.QueryRowContext(ctx,
		`INSERT INTO server_users (server_id, emby_user_id, username)
		 VALUES (?, ?, ?) RETURNING id, created_at`,
		serverID, embyUserID, username)

	su := models.ServerUser{ServerID: serverID, EmbyUserID: embyUserID, Username: username}
	if err := row.Scan(&su.ID, &su.CreatedAt); err != nil {
		return nil, false, fmt.Errorf("failed to insert server user: %w", err)
	}
	return &su, true, nil
}

// getServerUserByRemoteID looks up a ServerUser by its remote identity.
func (db *DB) getServerUserByRemoteID(ctx context.Context, serverID int64, embyUserID string) (*models.ServerUser, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, server_id, emby_user_id, username, global_user_id, created_at
		 FROM server_users WHERE server_id = ? AND emby_user_id = ?`,
		serverID, embyUserID)

	var su models.ServerUser
	err := row.Scan(&su.ID, &su.ServerID, &su.EmbyUserID, &su.Username, &su.GlobalUserID, &su.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get server user: %w", err)
	}
	return &su, nil
}

// ListServerUsers returns the accounts tracked for one server.
func (db *DB) ListServerUsers(ctx context.Context, serverID int64) ([]models.ServerUser, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, server_id, emby_user_id, username, global_user_id, created_at
		 FROM server_users WHERE server_id = ? ORDER BY id`, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list server users: %w", err)
	}
	defer rows.Close()

	var users []models.ServerUser
	for rows.Next() {
		var su models.ServerUser
		if err := rows.Scan(&su.ID, &su.ServerID, &su.EmbyUserID, &su.Username, &su.GlobalUserID, &su.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan server user: %w", err)
		}
		users = append(users, su)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating server users: %w", err)
	}
	return users, nil
}

// DeleteServerUser removes an account and its play history (explicit
// admin action; never invoked by the sync engine).
func (db *DB) DeleteServerUser(ctx context.Context, id int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM play_history WHERE server_user_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete user history: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM server_users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete server user %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit server user delete: %w", err)
	}
	return nil
}

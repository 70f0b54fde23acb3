// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

/*
lease.go - Store-Backed Sync Lease

Overlap guard for sync invocations. The lease lives in the store rather
than in process memory so it survives restarts and protects multiple
instances sharing one database. An expired lease is reclaimable by any
caller; release requires the holder's token so a stale invocation
cannot release a successor's lease.
*/

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AcquireSyncLease claims the named lease for ttl. Returns the holder
// token, or ErrLeaseHeld when a live lease exists.
func (db *DB) AcquireSyncLease(ctx context.Context, name string, ttl time.Duration) (string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin lease transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	var expires time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT expires_at FROM sync_leases WHERE name = ?`, name).Scan(&expires)
	switch {
	case err == nil:
		if expires.After(now) {
			return "", ErrLeaseHeld
		}
		// Expired lease: reclaim it
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM sync_leases WHERE name = ?`, name); err != nil {
			return "", fmt.Errorf("failed to reclaim expired lease: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		// No lease row yet
	default:
		return "", fmt.Errorf("failed to read lease %s: %w", name, err)
	}

	token := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sync_leases (name, token, acquired_at, expires_at) VALUES (?, ?, ?, ?)`,
		name, token, now, now.Add(ttl)); err != nil {
		return "", fmt.Errorf("failed to insert lease %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit lease acquire: %w", err)
	}
	return token, nil
}

// ReleaseSyncLease releases the named lease when the token matches the
// current holder. Releasing a lease you no longer hold is a no-op.
func (db *DB) ReleaseSyncLease(ctx context.Context, name, token string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM sync_leases WHERE name = ? AND token = ?`, name, token); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dpoulsen/embywatch/internal/config"
	"github.com/dpoulsen/embywatch/internal/models"
)

// newTestDB opens an in-memory DuckDB store with the full schema.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(&config.DatabaseConfig{
		Path:         ":memory:",
		QueryTimeout: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedServer(t *testing.T, db *DB, name string) *models.Server {
	t.Helper()
	server, err := db.CreateServer(context.Background(), &models.Server{
		Name:   name,
		URL:    "http://emby.local:8096",
		Port:   8096,
		APIKey: "test-api-key",
		Active: true,
	})
	if err != nil {
		t.Fatalf("failed to seed server: %v", err)
	}
	return server
}

func seedUser(t *testing.T, db *DB, serverID int64, embyUserID, name string) *models.ServerUser {
	t.Helper()
	user, _, err := db.UpsertServerUser(context.Background(), serverID, embyUserID, name)
	if err != nil {
		t.Fatalf("failed to seed server user: %v", err)
	}
	return user
}

func seedHistory(t *testing.T, db *DB, h *models.PlayHistory) int64 {
	t.Helper()
	id, err := db.InsertHistory(context.Background(), h)
	if err != nil {
		t.Fatalf("failed to seed history: %v", err)
	}
	return id
}

func TestServerCRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	server := seedServer(t, db, "living-room")
	if server.ID == 0 {
		t.Fatal("expected non-zero server id")
	}

	got, err := db.GetServer(ctx, server.ID)
	if err != nil {
		t.Fatalf("GetServer failed: %v", err)
	}
	if got.Name != "living-room" || got.APIKey != "test-api-key" {
		t.Errorf("unexpected server row: %+v", got)
	}

	got.Name = "den"
	got.Active = false
	if err := db.UpdateServer(ctx, got); err != nil {
		t.Fatalf("UpdateServer failed: %v", err)
	}

	active, err := db.ListServers(ctx, true)
	if err != nil {
		t.Fatalf("ListServers failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active servers, got %d", len(active))
	}

	if err := db.DeleteServer(ctx, server.ID); err != nil {
		t.Fatalf("DeleteServer failed: %v", err)
	}
	if _, err := db.GetServer(ctx, server.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteServerCascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	server := seedServer(t, db, "s1")
	user := seedUser(t, db, server.ID, "emby-u1", "alice")
	seedHistory(t, db, &models.PlayHistory{
		ServerID:     server.ID,
		ServerUserID: user.ID,
		ItemID:       "it-1",
		ItemName:     "A Movie",
		ItemType:     "Movie",
		PlayedAt:     time.Now().UTC(),
		PlayCount:    1,
	})

	if err := db.DeleteServer(ctx, server.ID); err != nil {
		t.Fatalf("DeleteServer failed: %v", err)
	}

	count, err := db.CountHistory(ctx, HistoryFilter{})
	if err != nil {
		t.Fatalf("CountHistory failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected cascade to remove history, got %d rows", count)
	}
	users, err := db.ListServerUsers(ctx, server.ID)
	if err != nil {
		t.Fatalf("ListServerUsers failed: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("expected cascade to remove users, got %d", len(users))
	}
}

func TestUpsertServerUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	server := seedServer(t, db, "s1")

	first, added, err := db.UpsertServerUser(ctx, server.ID, "emby-u1", "alice")
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if !added {
		t.Error("first upsert should report added")
	}

	// Same remote id: only the display name updates
	second, added, err := db.UpsertServerUser(ctx, server.ID, "emby-u1", "alice-renamed")
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if added {
		t.Error("second upsert should not report added")
	}
	if second.ID != first.ID {
		t.Errorf("upsert created a new row: %d != %d", second.ID, first.ID)
	}
	if second.Username != "alice-renamed" {
		t.Errorf("username not updated: %q", second.Username)
	}
}

func TestLatestPlayedAtWatermark(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	server := seedServer(t, db, "s1")
	user := seedUser(t, db, server.ID, "emby-u1", "alice")

	mark, err := db.LatestPlayedAt(ctx, user.ID)
	if err != nil {
		t.Fatalf("LatestPlayedAt failed: %v", err)
	}
	if mark != nil {
		t.Errorf("expected nil watermark for empty history, got %v", mark)
	}

	older := time.Date(2026, 8, 1, 20, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 10, 21, 30, 0, 0, time.UTC)
	for i, playedAt := range []time.Time{newer, older} {
		seedHistory(t, db, &models.PlayHistory{
			ServerID:     server.ID,
			ServerUserID: user.ID,
			ItemID:       "it-" + string(rune('a'+i)),
			ItemName:     "Item",
			ItemType:     "Movie",
			PlayedAt:     playedAt,
			PlayCount:    1,
		})
	}

	mark, err = db.LatestPlayedAt(ctx, user.ID)
	if err != nil {
		t.Fatalf("LatestPlayedAt failed: %v", err)
	}
	if mark == nil || !mark.Equal(newer) {
		t.Errorf("watermark = %v, want %v", mark, newer)
	}
}

func TestFindLatestHistoryMostRecentWins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	server := seedServer(t, db, "s1")
	user := seedUser(t, db, server.ID, "emby-u1", "alice")

	older := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// Historical duplicates for the same dedup key (legitimate
	// re-watch on a different date)
	seedHistory(t, db, &models.PlayHistory{
		ServerID: server.ID, ServerUserID: user.ID, ItemID: "it-1",
		ItemName: "Film", ItemType: "Movie", PlayedAt: older, PlayCount: 1,
	})
	newerID := seedHistory(t, db, &models.PlayHistory{
		ServerID: server.ID, ServerUserID: user.ID, ItemID: "it-1",
		ItemName: "Film", ItemType: "Movie", PlayedAt: newer, PlayCount: 2,
	})

	got, err := db.FindLatestHistory(ctx, user.ID, "it-1")
	if err != nil {
		t.Fatalf("FindLatestHistory failed: %v", err)
	}
	if got.ID != newerID {
		t.Errorf("FindLatestHistory returned id %d, want most recent %d", got.ID, newerID)
	}

	if _, err := db.FindLatestHistory(ctx, user.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing item, got %v", err)
	}
}

func TestUpdateHistoryProgressPreservesDate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	server := seedServer(t, db, "s1")
	user := seedUser(t, db, server.ID, "emby-u1", "alice")

	playedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	id := seedHistory(t, db, &models.PlayHistory{
		ServerID: server.ID, ServerUserID: user.ID, ItemID: "it-1",
		ItemName: "Film", ItemType: "Movie", PlayedAt: playedAt, PlayCount: 1,
	})

	// nil playedAt: stored date must not move
	if err := db.UpdateHistoryProgress(ctx, id, 500, 500, 2, true, nil); err != nil {
		t.Fatalf("UpdateHistoryProgress failed: %v", err)
	}
	got, err := db.FindLatestHistory(ctx, user.ID, "it-1")
	if err != nil {
		t.Fatalf("FindLatestHistory failed: %v", err)
	}
	if !got.PlayedAt.Equal(playedAt) {
		t.Errorf("played_at moved without a reliable timestamp: %v", got.PlayedAt)
	}
	if got.PlayCount != 2 || !got.Completed || got.PlaybackPositionTicks != 500 {
		t.Errorf("progress fields not updated: %+v", got)
	}

	// Reliable timestamp: date advances
	newDate := playedAt.Add(48 * time.Hour)
	if err := db.UpdateHistoryProgress(ctx, id, 600, 600, 3, true, &newDate); err != nil {
		t.Fatalf("UpdateHistoryProgress failed: %v", err)
	}
	got, err = db.FindLatestHistory(ctx, user.ID, "it-1")
	if err != nil {
		t.Fatalf("FindLatestHistory failed: %v", err)
	}
	if !got.PlayedAt.Equal(newDate) {
		t.Errorf("played_at = %v, want %v", got.PlayedAt, newDate)
	}
}

func TestGlobalUserExpansion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	server := seedServer(t, db, "s1")
	server2 := seedServer(t, db, "s2")
	alice1 := seedUser(t, db, server.ID, "emby-a1", "alice")
	alice2 := seedUser(t, db, server2.ID, "emby-a2", "alice")
	bob := seedUser(t, db, server.ID, "emby-b", "bob")

	global, err := db.CreateGlobalUser(ctx, "alice-everywhere")
	if err != nil {
		t.Fatalf("CreateGlobalUser failed: %v", err)
	}
	for _, id := range []int64{alice1.ID, alice2.ID} {
		if err := db.LinkServerUser(ctx, id, global.ID); err != nil {
			t.Fatalf("LinkServerUser failed: %v", err)
		}
	}

	when := time.Date(2026, 8, 20, 19, 0, 0, 0, time.UTC)
	for i, u := range []*models.ServerUser{alice1, alice2, bob} {
		seedHistory(t, db, &models.PlayHistory{
			ServerID: u.ServerID, ServerUserID: u.ID,
			ItemID: "it-" + string(rune('a'+i)), ItemName: "Item", ItemType: "Movie",
			PlayedAt: when, PlayCount: 1,
		})
	}

	// Linked GlobalUser: union of both alice accounts, excluding bob
	rows, err := db.ListHistory(ctx, HistoryFilter{GlobalUserID: &global.ID})
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 rows for linked identity, got %d", len(rows))
	}
	for _, r := range rows {
		if r.ServerUserID == bob.ID {
			t.Error("global-user filter leaked another account's history")
		}
	}

	// Unlinked GlobalUser: empty result, not an error
	lonely, err := db.CreateGlobalUser(ctx, "nobody")
	if err != nil {
		t.Fatalf("CreateGlobalUser failed: %v", err)
	}
	rows, err = db.ListHistory(ctx, HistoryFilter{GlobalUserID: &lonely.ID})
	if err != nil {
		t.Fatalf("ListHistory for unlinked identity failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected empty result for unlinked identity, got %d rows", len(rows))
	}

	// Unlink keeps the ServerUser row
	if err := db.UnlinkServerUser(ctx, alice1.ID); err != nil {
		t.Fatalf("UnlinkServerUser failed: %v", err)
	}
	users, err := db.ListServerUsers(ctx, server.ID)
	if err != nil {
		t.Fatalf("ListServerUsers failed: %v", err)
	}
	found := false
	for _, u := range users {
		if u.ID == alice1.ID {
			found = true
			if u.GlobalUserID != nil {
				t.Error("unlink did not clear global_user_id")
			}
		}
	}
	if !found {
		t.Error("unlink deleted the server user")
	}
}

func TestEndSession(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	server := seedServer(t, db, "s1")
	user := seedUser(t, db, server.ID, "emby-u1", "alice")

	started := time.Date(2026, 8, 25, 20, 0, 0, 0, time.UTC)
	if _, err := db.InsertSessionLog(ctx, &models.SessionLog{
		ServerID: server.ID, SessionKey: "sess-1", ServerUserID: user.ID,
		ItemID: "it-1", ItemName: "Film", ItemType: "Movie",
		StartedAt: started, Active: true,
	}); err != nil {
		t.Fatalf("InsertSessionLog failed: %v", err)
	}

	ended := started.Add(90 * time.Minute)
	if err := db.EndSession(ctx, "sess-1", ended); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	sessions, err := db.ListSessionLogs(ctx, HistoryFilter{})
	if err != nil {
		t.Fatalf("ListSessionLogs failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	s := sessions[0]
	if s.Active {
		t.Error("session still active after EndSession")
	}
	if s.EndedAt == nil || !s.EndedAt.Equal(ended) {
		t.Errorf("ended_at = %v, want %v", s.EndedAt, ended)
	}

	// Ending again is ErrNotFound (no active row)
	if err := db.EndSession(ctx, "sess-1", ended); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on double end, got %v", err)
	}
}

func TestSyncLogsAppendOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	server := seedServer(t, db, "s1")

	for _, status := range []string{models.SyncStatusSuccess, models.SyncStatusFailed} {
		if err := db.InsertSyncLog(ctx, &models.SyncLog{
			ServerID: server.ID,
			SyncType: models.SyncTypeScheduled,
			SyncedAt: time.Now().UTC(),
			Status:   status,
			Message:  "run " + status,
		}); err != nil {
			t.Fatalf("InsertSyncLog failed: %v", err)
		}
	}

	logs, err := db.ListSyncLogs(ctx, server.ID, 10)
	if err != nil {
		t.Fatalf("ListSyncLogs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("expected 2 sync logs, got %d", len(logs))
	}
}

func TestSyncLease(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	token, err := db.AcquireSyncLease(ctx, "sync", time.Minute)
	if err != nil {
		t.Fatalf("AcquireSyncLease failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty lease token")
	}

	// Second acquire while held
	if _, err := db.AcquireSyncLease(ctx, "sync", time.Minute); !errors.Is(err, ErrLeaseHeld) {
		t.Errorf("expected ErrLeaseHeld, got %v", err)
	}

	// Release with the wrong token keeps the lease
	if err := db.ReleaseSyncLease(ctx, "sync", "wrong-token"); err != nil {
		t.Fatalf("ReleaseSyncLease failed: %v", err)
	}
	if _, err := db.AcquireSyncLease(ctx, "sync", time.Minute); !errors.Is(err, ErrLeaseHeld) {
		t.Errorf("wrong-token release freed the lease: %v", err)
	}

	// Proper release frees it
	if err := db.ReleaseSyncLease(ctx, "sync", token); err != nil {
		t.Fatalf("ReleaseSyncLease failed: %v", err)
	}
	if _, err := db.AcquireSyncLease(ctx, "sync", time.Minute); err != nil {
		t.Errorf("acquire after release failed: %v", err)
	}
}

func TestSyncLeaseExpiryReclaim(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.AcquireSyncLease(ctx, "sync", -time.Second); err != nil {
		t.Fatalf("AcquireSyncLease failed: %v", err)
	}
	// Already expired: a new invocation may reclaim
	if _, err := db.AcquireSyncLease(ctx, "sync", time.Minute); err != nil {
		t.Errorf("expected expired lease to be reclaimable, got %v", err)
	}
}

// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dpoulsen/embywatch/internal/config"
	"github.com/dpoulsen/embywatch/internal/database"
	"github.com/dpoulsen/embywatch/internal/models"
)

// fakeEmbyClient serves canned users and items. Completed items must be
// listed newest-first, matching the remote's DatePlayed sort.
type fakeEmbyClient struct {
	users     []models.EmbyUser
	completed map[string][]models.EmbyItem
	resumable map[string][]models.EmbyItem

	pageCalls int
	failAll   bool
}

var _ EmbyClientAPI = (*fakeEmbyClient)(nil)

func (f *fakeEmbyClient) Ping(context.Context) error { return nil }

func (f *fakeEmbyClient) GetSystemInfo(context.Context) (*models.EmbySystemInfo, error) {
	return &models.EmbySystemInfo{ServerName: "fake", Version: "4.8"}, nil
}

func (f *fakeEmbyClient) GetUsers(context.Context) ([]models.EmbyUser, error) {
	if f.failAll {
		return nil, errors.New("connection refused")
	}
	return f.users, nil
}

func (f *fakeEmbyClient) GetPlayedItemsPage(_ context.Context, userID string, _ []string, startIndex, limit int) (*models.EmbyItemsPage, error) {
	if f.failAll {
		return nil, errors.New("connection refused")
	}
	f.pageCalls++
	all := f.completed[userID]
	page := &models.EmbyItemsPage{TotalRecordCount: len(all)}
	if startIndex >= len(all) {
		return page, nil
	}
	end := startIndex + limit
	if end > len(all) {
		end = len(all)
	}
	page.Items = all[startIndex:end]
	return page, nil
}

func (f *fakeEmbyClient) GetResumableItems(_ context.Context, userID string, _ int) ([]models.EmbyItem, error) {
	if f.failAll {
		return nil, errors.New("connection refused")
	}
	return f.resumable[userID], nil
}

func (f *fakeEmbyClient) GetLibraries(context.Context) ([]models.EmbyLibrary, error) {
	return nil, nil
}

func (f *fakeEmbyClient) StopSession(context.Context, string) error { return nil }

func testEngine(t *testing.T) (*Engine, *database.DB) {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{
		Path:         ":memory:",
		QueryTimeout: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.SyncConfig{
		PageSize:       100,
		ResumableLimit: 100,
		RetryCount:     0,
		RetryBackoff:   time.Millisecond,
		LeaseTTL:       time.Minute,
	}
	return NewEngine(db, cfg), db
}

func addServer(t *testing.T, db *database.DB, name string) *models.Server {
	t.Helper()
	server, err := db.CreateServer(context.Background(), &models.Server{
		Name: name, URL: "http://emby.local:8096", Port: 8096,
		APIKey: "key", Active: true,
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return server
}

func playedItem(id string, playedAt time.Time, minutes int) models.EmbyItem {
	at := playedAt
	return models.EmbyItem{
		ID:           id,
		Name:         "item " + id,
		Type:         "Movie",
		RunTimeTicks: int64(minutes) * 60 * models.TicksPerSecond,
		UserData: &models.EmbyUserData{
			Played:         true,
			PlayCount:      1,
			LastPlayedDate: &at,
		},
	}
}

func TestEngineRunIsIdempotent(t *testing.T) {
	base := time.Date(2026, 8, 20, 20, 0, 0, 0, time.UTC)
	fake := &fakeEmbyClient{
		users: []models.EmbyUser{{ID: "emby-u1", Name: "alice"}},
		completed: map[string][]models.EmbyItem{
			"emby-u1": {
				playedItem("c", base.Add(2*time.Hour), 90),
				playedItem("b", base.Add(time.Hour), 90),
				playedItem("a", base, 90),
			},
		},
	}

	engine, store := testEngine(t)
	addServer(t, store, "s1")
	engine.newClient = func(*models.Server) EmbyClientAPI { return fake }

	results, err := engine.Run(context.Background(), models.SyncTypeManual)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if len(results) != 1 || results[0].Failed() {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].UsersSync.Added != 1 {
		t.Errorf("UsersSync.Added = %d, want 1", results[0].UsersSync.Added)
	}
	if results[0].HistorySync.Added != 3 {
		t.Errorf("HistorySync.Added = %d, want 3", results[0].HistorySync.Added)
	}

	// No new remote activity: the second run must add nothing
	results, err = engine.Run(context.Background(), models.SyncTypeManual)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if results[0].HistorySync.Added != 0 {
		t.Errorf("second run added %d rows, want 0", results[0].HistorySync.Added)
	}
	if results[0].UsersSync.Added != 0 || results[0].UsersSync.Updated != 1 {
		t.Errorf("second run user counts = %+v", results[0].UsersSync)
	}

	count, err := store.CountHistory(context.Background(), database.HistoryFilter{})
	if err != nil {
		t.Fatalf("CountHistory failed: %v", err)
	}
	if count != 3 {
		t.Errorf("history rows = %d, want 3", count)
	}
}

func TestEngineHighWaterMarkStop(t *testing.T) {
	mark := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	fake := &fakeEmbyClient{
		users: []models.EmbyUser{{ID: "emby-u1", Name: "alice"}},
		completed: map[string][]models.EmbyItem{
			"emby-u1": {
				playedItem("n3", mark.Add(3*time.Hour), 60),
				playedItem("n2", mark.Add(2*time.Hour), 60),
				playedItem("n1", mark.Add(time.Hour), 60),
				playedItem("old", mark, 60),         // at the mark: stop here
				playedItem("older", mark.Add(-time.Hour), 60), // never reached
			},
		},
	}

	engine, store := testEngine(t)
	server := addServer(t, store, "s1")
	engine.newClient = func(*models.Server) EmbyClientAPI { return fake }
	engine.cfg.PageSize = 2

	// Seed the watermark: the "old" item is already stored
	account, _, err := store.UpsertServerUser(context.Background(), server.ID, "emby-u1", "alice")
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	if _, err := store.InsertHistory(context.Background(), &models.PlayHistory{
		ServerID: server.ID, ServerUserID: account.ID, ItemID: "old",
		ItemName: "item old", ItemType: "Movie", PlayedAt: mark, PlayCount: 1,
	}); err != nil {
		t.Fatalf("failed to seed history: %v", err)
	}

	results, err := engine.Run(context.Background(), models.SyncTypeManual)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	// Exactly the three items newer than the mark, nothing at or below
	if results[0].HistorySync.Added != 3 {
		t.Errorf("HistorySync.Added = %d, want exactly 3", results[0].HistorySync.Added)
	}
	if _, err := store.FindLatestHistory(context.Background(), account.ID, "older"); !errors.Is(err, database.ErrNotFound) {
		t.Error("item below the watermark was ingested")
	}
	// Pages of 2: [n3 n2], [n1 old]. The stop fires mid-page-two and
	// the third page is never fetched
	if fake.pageCalls != 2 {
		t.Errorf("pageCalls = %d, want 2 (early stop must skip remaining pages)", fake.pageCalls)
	}
}

func TestEngineSkipsNotFullyPlayed(t *testing.T) {
	at := time.Date(2026, 8, 20, 20, 0, 0, 0, time.UTC)
	unplayed := playedItem("u", at, 60)
	unplayed.UserData.Played = false

	fake := &fakeEmbyClient{
		users: []models.EmbyUser{{ID: "emby-u1", Name: "alice"}},
		completed: map[string][]models.EmbyItem{
			"emby-u1": {playedItem("p", at.Add(time.Hour), 60), unplayed},
		},
	}
	engine, store := testEngine(t)
	addServer(t, store, "s1")
	engine.newClient = func(*models.Server) EmbyClientAPI { return fake }

	results, err := engine.Run(context.Background(), models.SyncTypeManual)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if results[0].HistorySync.Added != 1 {
		t.Errorf("Added = %d, want 1", results[0].HistorySync.Added)
	}
	if results[0].HistorySync.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", results[0].HistorySync.Skipped)
	}
}

func TestEngineResumableIngestion(t *testing.T) {
	engine, store := testEngine(t)
	addServer(t, store, "s1")

	inProgress := models.EmbyItem{
		ID: "r1", Name: "halfway", Type: "Movie",
		RunTimeTicks: 120 * 60 * models.TicksPerSecond,
		UserData: &models.EmbyUserData{
			PlaybackPositionTicks: 30 * 60 * models.TicksPerSecond,
		},
	}
	zeroPosition := models.EmbyItem{
		ID: "r2", Name: "never started", Type: "Movie",
		RunTimeTicks: 120 * 60 * models.TicksPerSecond,
		UserData:     &models.EmbyUserData{},
	}
	fake := &fakeEmbyClient{
		users: []models.EmbyUser{{ID: "emby-u1", Name: "alice"}},
		resumable: map[string][]models.EmbyItem{
			"emby-u1": {inProgress, zeroPosition},
		},
	}
	engine.newClient = func(*models.Server) EmbyClientAPI { return fake }

	results, err := engine.Run(context.Background(), models.SyncTypeManual)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if results[0].HistorySync.Added != 1 {
		t.Errorf("Added = %d, want 1 (only the positive-position item)", results[0].HistorySync.Added)
	}
	if results[0].HistorySync.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 (the zero-position item)", results[0].HistorySync.Skipped)
	}

	rows, err := store.ListHistory(context.Background(), database.HistoryFilter{})
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Completed {
		t.Errorf("unexpected ingested rows: %+v", rows)
	}
	// No reliable remote date: the wall clock stands in
	if rows[0].PlayedAt.IsZero() {
		t.Error("played_at not defaulted")
	}
}

func TestEnginePerServerErrorIsolation(t *testing.T) {
	at := time.Date(2026, 8, 20, 20, 0, 0, 0, time.UTC)
	broken := &fakeEmbyClient{failAll: true}
	healthy := &fakeEmbyClient{
		users: []models.EmbyUser{{ID: "emby-u1", Name: "bob"}},
		completed: map[string][]models.EmbyItem{
			"emby-u1": {playedItem("a", at, 60)},
		},
	}

	engine, store := testEngine(t)
	s1 := addServer(t, store, "broken")
	addServer(t, store, "healthy")
	engine.newClient = func(server *models.Server) EmbyClientAPI {
		if server.ID == s1.ID {
			return broken
		}
		return healthy
	}

	results, err := engine.Run(context.Background(), models.SyncTypeManual)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Failed() {
		t.Error("broken server did not report an error")
	}
	if results[1].Failed() || results[1].HistorySync.Added != 1 {
		t.Errorf("healthy server affected by broken one: %+v", results[1])
	}

	// Both servers get an audit row, one failed and one success
	logs, err := store.ListSyncLogs(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("ListSyncLogs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 sync logs, got %d", len(logs))
	}
	statuses := map[string]int{}
	for _, l := range logs {
		statuses[l.Status]++
	}
	if statuses[models.SyncStatusFailed] != 1 || statuses[models.SyncStatusSuccess] != 1 {
		t.Errorf("unexpected statuses: %v", statuses)
	}
}

func TestEngineLeaseBlocksOverlap(t *testing.T) {
	engine, store := testEngine(t)
	addServer(t, store, "s1")
	engine.newClient = func(*models.Server) EmbyClientAPI { return &fakeEmbyClient{} }

	// Simulate another in-flight invocation holding the lease
	token, err := store.AcquireSyncLease(context.Background(), "sync", time.Minute)
	if err != nil {
		t.Fatalf("failed to pre-acquire lease: %v", err)
	}

	if _, err := engine.Run(context.Background(), models.SyncTypeManual); !errors.Is(err, ErrSyncAlreadyRunning) {
		t.Errorf("expected ErrSyncAlreadyRunning, got %v", err)
	}

	// Once released, the engine runs
	if err := store.ReleaseSyncLease(context.Background(), "sync", token); err != nil {
		t.Fatalf("failed to release lease: %v", err)
	}
	if _, err := engine.Run(context.Background(), models.SyncTypeManual); err != nil {
		t.Errorf("run after release failed: %v", err)
	}
}

func TestEngineUpdatesExistingProgress(t *testing.T) {
	engine, store := testEngine(t)
	addServer(t, store, "s1")

	item := models.EmbyItem{
		ID: "r1", Name: "film", Type: "Movie",
		RunTimeTicks: 120 * 60 * models.TicksPerSecond,
		UserData: &models.EmbyUserData{
			PlaybackPositionTicks: 10 * 60 * models.TicksPerSecond,
		},
	}
	fake := &fakeEmbyClient{
		users:     []models.EmbyUser{{ID: "emby-u1", Name: "alice"}},
		resumable: map[string][]models.EmbyItem{"emby-u1": {item}},
	}
	engine.newClient = func(*models.Server) EmbyClientAPI { return fake }

	if _, err := engine.Run(context.Background(), models.SyncTypeManual); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// Position advances between runs: same row, updated in place
	item.UserData = &models.EmbyUserData{
		PlaybackPositionTicks: 50 * 60 * models.TicksPerSecond,
	}
	fake.resumable["emby-u1"] = []models.EmbyItem{item}

	results, err := engine.Run(context.Background(), models.SyncTypeManual)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if results[0].HistorySync.Added != 0 {
		t.Errorf("second run added %d rows, want in-place update", results[0].HistorySync.Added)
	}

	rows, err := store.ListHistory(context.Background(), database.HistoryFilter{})
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	want := int64(50 * 60 * models.TicksPerSecond)
	if rows[0].PlaybackPositionTicks != want {
		t.Errorf("position = %d, want %d", rows[0].PlaybackPositionTicks, want)
	}
}

func TestReliablePlayedAtFallbackChain(t *testing.T) {
	played := time.Date(2026, 8, 20, 20, 0, 0, 0, time.UTC)
	activity := played.Add(time.Hour)

	tests := []struct {
		name string
		ud   *models.EmbyUserData
		want *time.Time
	}{
		{"nil user data", nil, nil},
		{"played date preferred", &models.EmbyUserData{LastPlayedDate: &played, LastActivityDate: &activity}, &played},
		{"activity date fallback", &models.EmbyUserData{LastActivityDate: &activity}, &activity},
		{"no dates at all", &models.EmbyUserData{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reliablePlayedAt(tt.ud)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("got %v, want nil", got)
			case tt.want != nil && (got == nil || !got.Equal(*tt.want)):
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestItemPagerExhaustion(t *testing.T) {
	at := time.Date(2026, 8, 20, 20, 0, 0, 0, time.UTC)
	var items []models.EmbyItem
	for i := 0; i < 5; i++ {
		items = append(items, playedItem(fmt.Sprintf("i%d", i), at.Add(-time.Duration(i)*time.Hour), 60))
	}
	fake := &fakeEmbyClient{completed: map[string][]models.EmbyItem{"u": items}}

	pager := NewItemPager(fake, "u", nil, 2)
	var total int
	for {
		batch, err := pager.Next(context.Background())
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if batch == nil {
			break
		}
		total += len(batch)
	}
	if total != 5 {
		t.Errorf("pager yielded %d items, want 5", total)
	}
	if fake.pageCalls != 3 {
		t.Errorf("pageCalls = %d, want 3", fake.pageCalls)
	}
	// Further calls stay terminated
	if batch, err := pager.Next(context.Background()); err != nil || batch != nil {
		t.Errorf("exhausted pager returned %v, %v", batch, err)
	}
}

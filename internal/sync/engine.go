// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

/*
engine.go - Incremental Sync Engine

One Run ingests play history from every active server:

 1. User reconciliation: upsert accounts by (serverID, embyUserID),
    updating only the display name on collision.
 2. Completed history: stream played items newest-first through the
    pager; stop at the first item at-or-before the user's stored
    high-water mark; everything older is already in the store.
 3. Resumable items: one unpaged fetch, skipping zero-position rows.

Remote-fetch errors isolate per server (failed SyncLog row, next server
continues); write errors isolate per item (counted as skipped). The
played-at fallback chain (LastPlayedDate, LastActivityDate, prior
stored date, wall clock) is deliberately lossy: the watermark cursor
depends on dates only moving when the remote supplied a real one.
*/

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/dpoulsen/embywatch/internal/config"
	"github.com/dpoulsen/embywatch/internal/database"
	"github.com/dpoulsen/embywatch/internal/logging"
	"github.com/dpoulsen/embywatch/internal/metrics"
	"github.com/dpoulsen/embywatch/internal/models"
	"github.com/dpoulsen/embywatch/internal/stats"
)

// ErrSyncAlreadyRunning is returned when another invocation holds the
// sync lease.
var ErrSyncAlreadyRunning = errors.New("sync already running")

// syncLeaseName is the store-backed lease fencing overlapping runs.
const syncLeaseName = "sync"

// historyItemTypes limits completed-history ingestion to the item types
// the aggregation engine understands.
var historyItemTypes = []string{"Movie", "Episode"}

// Engine ingests remote play history into the store.
type Engine struct {
	db  *database.DB
	cfg *config.SyncConfig

	// newClient builds the API client for one server; tests swap in a
	// fake here.
	newClient func(server *models.Server) EmbyClientAPI
}

// NewEngine creates a sync engine over the given store.
func NewEngine(db *database.DB, cfg *config.SyncConfig) *Engine {
	e := &Engine{db: db, cfg: cfg}
	e.newClient = func(server *models.Server) EmbyClientAPI {
		client := NewEmbyClient(server, cfg.RatePerSecond)
		return NewEmbyBreakerClient(client, fmt.Sprintf("emby-%d", server.ID))
	}
	return e
}

// Client returns an API client for one server record. The admin
// "test server" flow uses this to probe connectivity with the same
// breaker-wrapped client the engine uses.
func (e *Engine) Client(server *models.Server) EmbyClientAPI {
	return e.newClient(server)
}

// Run performs one full sync invocation across all active servers and
// returns the per-server results. Returns ErrSyncAlreadyRunning when
// another invocation holds the lease.
func (e *Engine) Run(ctx context.Context, syncType string) ([]models.ServerSyncResult, error) {
	token, err := e.db.AcquireSyncLease(ctx, syncLeaseName, e.cfg.LeaseTTL)
	if err != nil {
		if errors.Is(err, database.ErrLeaseHeld) {
			metrics.SyncErrors.WithLabelValues("lease").Inc()
			return nil, ErrSyncAlreadyRunning
		}
		metrics.SyncErrors.WithLabelValues("database").Inc()
		return nil, fmt.Errorf("failed to acquire sync lease: %w", err)
	}
	defer func() {
		if err := e.db.ReleaseSyncLease(context.WithoutCancel(ctx), syncLeaseName, token); err != nil {
			logging.Warn().Err(err).Msg("Failed to release sync lease")
		}
	}()

	start := time.Now()
	defer func() {
		metrics.SyncDuration.Observe(time.Since(start).Seconds())
	}()

	servers, err := e.db.ListServers(ctx, true)
	if err != nil {
		metrics.SyncErrors.WithLabelValues("database").Inc()
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}

	results := make([]models.ServerSyncResult, 0, len(servers))
	failed := 0
	for i := range servers {
		server := &servers[i]
		result := e.syncServer(ctx, server)
		results = append(results, result)

		status := models.SyncStatusSuccess
		message := fmt.Sprintf("users +%d/~%d, history +%d/skip %d",
			result.UsersSync.Added, result.UsersSync.Updated,
			result.HistorySync.Added, result.HistorySync.Skipped)
		if result.Failed() {
			status = models.SyncStatusFailed
			message = result.Error
			failed++
		}
		if err := e.db.InsertSyncLog(ctx, &models.SyncLog{
			ServerID: server.ID,
			SyncType: syncType,
			SyncedAt: time.Now().UTC(),
			Status:   status,
			Message:  message,
		}); err != nil {
			logging.Error().Err(err).Int64("server_id", server.ID).Msg("Failed to write sync log")
		}

		logging.Info().
			Int64("server_id", server.ID).
			Str("status", status).
			Int("users_added", result.UsersSync.Added).
			Int("history_added", result.HistorySync.Added).
			Int("history_skipped", result.HistorySync.Skipped).
			Msg("Server sync finished")
	}

	if failed == 0 {
		metrics.SyncLastSuccess.SetToCurrentTime()
	}
	return results, nil
}

// syncServer runs the full ingestion sequence for one server. Errors
// land in the result rather than propagating, so one unreachable server
// never blocks the rest.
func (e *Engine) syncServer(ctx context.Context, server *models.Server) models.ServerSyncResult {
	result := models.ServerSyncResult{ServerID: server.ID}
	client := e.newClient(server)

	var users []models.EmbyUser
	err := e.retry(ctx, "fetch users", func() error {
		var err error
		users, err = client.GetUsers(ctx)
		return err
	})
	if err != nil {
		metrics.SyncErrors.WithLabelValues("emby_api").Inc()
		result.Error = fmt.Sprintf("user fetch: %v", err)
		return result
	}

	for i := range users {
		remote := &users[i]
		account, added, err := e.db.UpsertServerUser(ctx, server.ID, remote.ID, remote.Name)
		if err != nil {
			metrics.SyncErrors.WithLabelValues("database").Inc()
			result.Error = fmt.Sprintf("user upsert %s: %v", remote.ID, err)
			return result
		}
		if added {
			result.UsersSync.Added++
		} else {
			result.UsersSync.Updated++
		}

		if err := e.syncCompletedHistory(ctx, client, account, &result); err != nil {
			metrics.SyncErrors.WithLabelValues("emby_api").Inc()
			result.Error = fmt.Sprintf("history for %s: %v", account.Username, err)
			return result
		}
		if err := e.syncResumable(ctx, client, account, &result); err != nil {
			metrics.SyncErrors.WithLabelValues("emby_api").Inc()
			result.Error = fmt.Sprintf("resumable for %s: %v", account.Username, err)
			return result
		}
	}
	return result
}

// syncCompletedHistory streams one user's fully-played items newest
// first and ingests until the stored high-water mark is reached.
func (e *Engine) syncCompletedHistory(ctx context.Context, client EmbyClientAPI, account *models.ServerUser, result *models.ServerSyncResult) error {
	watermark, err := e.db.LatestPlayedAt(ctx, account.ID)
	if err != nil {
		return err
	}

	pager := NewItemPager(client, account.EmbyUserID, historyItemTypes, e.cfg.PageSize)
	for {
		var items []models.EmbyItem
		err := e.retry(ctx, "fetch history page", func() error {
			var err error
			items, err = pager.Next(ctx)
			return err
		})
		if err != nil {
			return err
		}
		if items == nil {
			return nil
		}

		for i := range items {
			item := &items[i]
			ud := item.UserData
			if ud == nil || !ud.Played {
				result.HistorySync.Skipped++
				metrics.SyncHistorySkipped.Inc()
				continue
			}

			playedAt := reliablePlayedAt(ud)
			if playedAt != nil && watermark != nil && !playedAt.After(*watermark) {
				// Everything from here on is at-or-before the stored
				// mark; the remaining pages are already ingested
				return nil
			}

			if e.upsertItem(ctx, account, item, true, playedAt, result) {
				metrics.SyncHistoryAdded.WithLabelValues("completed").Inc()
			}
		}
	}
}

// syncResumable ingests one user's in-progress items. No watermark
// applies: positions move backwards and forwards between runs.
func (e *Engine) syncResumable(ctx context.Context, client EmbyClientAPI, account *models.ServerUser, result *models.ServerSyncResult) error {
	var items []models.EmbyItem
	err := e.retry(ctx, "fetch resumable items", func() error {
		var err error
		items, err = client.GetResumableItems(ctx, account.EmbyUserID, e.cfg.ResumableLimit)
		return err
	})
	if err != nil {
		return err
	}

	for i := range items {
		item := &items[i]
		if item.PlaybackPosition() <= 0 {
			result.HistorySync.Skipped++
			metrics.SyncHistorySkipped.Inc()
			continue
		}
		completed := item.UserData != nil && item.UserData.Played
		if e.upsertItem(ctx, account, item, completed, reliablePlayedAt(item.UserData), result) {
			metrics.SyncHistoryAdded.WithLabelValues("resumable").Inc()
		}
	}
	return nil
}

// upsertItem applies the most-recent-row-wins upsert for one item and
// reports whether a new row was inserted. Per-item write errors count
// as skipped and never abort the loop: a collision with a concurrent
// invocation is a benign outcome, not a failure.
func (e *Engine) upsertItem(ctx context.Context, account *models.ServerUser, item *models.EmbyItem, completed bool, playedAt *time.Time, result *models.ServerSyncResult) bool {
	var playCount int
	var position int64
	if item.UserData != nil {
		playCount = item.UserData.PlayCount
		position = item.UserData.PlaybackPositionTicks
	}
	playDuration := stats.RealDurationTicks(playCount, item.RunTimeTicks, position)

	existing, err := e.db.FindLatestHistory(ctx, account.ID, item.ID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		record := historyFromItem(account, item, completed, playedAt)
		record.PlayDurationTicks = playDuration
		if _, err := e.db.InsertHistory(ctx, record); err != nil {
			logging.Warn().Err(err).
				Str("item_id", item.ID).
				Int64("server_user_id", account.ID).
				Msg("History insert skipped")
			result.HistorySync.Skipped++
			metrics.SyncHistorySkipped.Inc()
			return false
		}
		result.HistorySync.Added++
		return true

	case err != nil:
		logging.Warn().Err(err).Str("item_id", item.ID).Msg("History lookup skipped")
		result.HistorySync.Skipped++
		metrics.SyncHistorySkipped.Inc()
		return false

	default:
		// playedAt stays nil here when the remote gave no reliable
		// date, which leaves the stored date untouched
		if err := e.db.UpdateHistoryProgress(ctx, existing.ID, position, playDuration,
			playCount, completed || existing.Completed, playedAt); err != nil {
			logging.Warn().Err(err).Str("item_id", item.ID).Msg("History update skipped")
			result.HistorySync.Skipped++
			metrics.SyncHistorySkipped.Inc()
		}
		return false
	}
}

// reliablePlayedAt resolves the remote's authoritative play date:
// LastPlayedDate when present, else LastActivityDate, else nil (caller
// falls back to the stored date or the wall clock).
func reliablePlayedAt(ud *models.EmbyUserData) *time.Time {
	if ud == nil {
		return nil
	}
	if ud.LastPlayedDate != nil {
		return ud.LastPlayedDate
	}
	return ud.LastActivityDate
}

// historyFromItem maps one remote item to a new play-history row.
func historyFromItem(account *models.ServerUser, item *models.EmbyItem, completed bool, playedAt *time.Time) *models.PlayHistory {
	record := &models.PlayHistory{
		ServerID:       account.ServerID,
		ServerUserID:   account.ID,
		ItemID:         item.ID,
		ItemName:       item.Name,
		ItemType:       item.Type,
		SeriesName:     item.SeriesName,
		SeasonName:     item.SeasonName,
		EpisodeNumber:  item.IndexNumber,
		SeasonNumber:   item.ParentIndexNumber,
		ProductionYear: item.ProductionYear,
		DurationTicks:  item.RunTimeTicks,
		Completed:      completed,
		Resolution:     item.Resolution(),
	}
	if item.UserData != nil {
		record.PlaybackPositionTicks = item.UserData.PlaybackPositionTicks
		record.PlayCount = item.UserData.PlayCount
	}
	if playedAt != nil {
		record.PlayedAt = playedAt.UTC()
	} else {
		record.PlayedAt = time.Now().UTC()
	}
	if len(item.Genres) > 0 {
		if raw, err := json.Marshal(item.Genres); err == nil {
			record.Genres = string(raw)
		}
	}
	if stream := item.PrimaryVideoStream(); stream != nil {
		record.VideoCodec = stream.Codec
		record.HDR = stream.IsHDR()
	}
	return record
}

// retry runs fn up to RetryCount+1 times with exponential backoff.
func (e *Engine) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= e.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			backoff := e.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
			logging.Warn().
				Err(err).
				Str("op", op).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying after failure")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, e.cfg.RetryCount+1, err)
}

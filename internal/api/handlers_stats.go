// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

/*
handlers_stats.go - Aggregated Statistics Endpoints

Each handler fetches the filtered history slice from the store and runs
the pure aggregation over it. Calendar rollups anchor on an optional
?date= parameter (default: now); every endpoint accepts the shared
start/end/server_id/user_id/global_user_id filter.
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dpoulsen/embywatch/internal/models"
	"github.com/dpoulsen/embywatch/internal/stats"
)

// rollupWindow selects the calendar window for one rollup period.
type rollupWindow func(asOf time.Time) (time.Time, time.Time)

// StatsDaily handles GET /api/v1/stats/daily.
func (h *Handler) StatsDaily(w http.ResponseWriter, r *http.Request) {
	h.serveRollup(w, r, "daily", stats.DailyWindow)
}

// StatsWeekly handles GET /api/v1/stats/weekly.
func (h *Handler) StatsWeekly(w http.ResponseWriter, r *http.Request) {
	h.serveRollup(w, r, "weekly", stats.WeeklyWindow)
}

// StatsMonthly handles GET /api/v1/stats/monthly.
func (h *Handler) StatsMonthly(w http.ResponseWriter, r *http.Request) {
	h.serveRollup(w, r, "monthly", stats.MonthlyWindow)
}

func (h *Handler) serveRollup(w http.ResponseWriter, r *http.Request, period string, window rollupWindow) {
	filter, err := parseHistoryFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	asOf, err := parseAsOf(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}

	start, end := window(asOf)
	filter.Start = &start
	filter.End = &end

	rows, err := h.db.ListHistory(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load history", err)
		return
	}
	respondJSON(w, http.StatusOK, stats.WindowRollup(rows, period, start, end))
}

// StatsLeaderboards handles GET /api/v1/stats/leaderboards.
func (h *Handler) StatsLeaderboards(w http.ResponseWriter, r *http.Request) {
	filter, err := parseHistoryFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	rows, err := h.db.ListHistory(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load history", err)
		return
	}
	respondJSON(w, http.StatusOK, stats.BuildLeaderboards(rows, h.cfg.Stats.LeaderboardLimit))
}

// StatsMarathons handles GET /api/v1/stats/marathons.
func (h *Handler) StatsMarathons(w http.ResponseWriter, r *http.Request) {
	filter, err := parseHistoryFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	rows, err := h.db.ListEpisodeHistory(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load episode history", err)
		return
	}
	marathons := stats.DetectMarathons(rows, stats.MarathonOptions{
		Gap:         time.Duration(h.cfg.Stats.MarathonGapMinutes) * time.Minute,
		MinEpisodes: h.cfg.Stats.MarathonMinEpisodes,
		MinHours:    h.cfg.Stats.MarathonMinHours,
	})
	if marathons == nil {
		marathons = []models.Marathon{}
	}
	respondJSON(w, http.StatusOK, marathons)
}

// StatsAbandonment handles GET /api/v1/stats/abandonment.
func (h *Handler) StatsAbandonment(w http.ResponseWriter, r *http.Request) {
	filter, err := parseHistoryFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	rows, err := h.db.ListHistory(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load history", err)
		return
	}
	respondJSON(w, http.StatusOK, stats.DetectAbandonment(rows, h.cfg.Stats.AbandonedThreshold))
}

// StatsPrediction handles GET /api/v1/stats/prediction.
func (h *Handler) StatsPrediction(w http.ResponseWriter, r *http.Request) {
	filter, err := parseHistoryFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	rows, err := h.db.ListHistory(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load history", err)
		return
	}
	respondJSON(w, http.StatusOK, stats.PredictViewing(rows, time.Now().UTC(), h.cfg.Stats.PeakHoursTopN))
}

// Sessions handles GET /api/v1/sessions: session log rows under the
// shared filter.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseHistoryFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid limit", nil)
			return
		}
		filter.Limit = limit
	}
	sessions, err := h.db.ListSessionLogs(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load sessions", err)
		return
	}
	if sessions == nil {
		sessions = []models.SessionLog{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

// SyncLogs handles GET /api/v1/synclogs.
func (h *Handler) SyncLogs(w http.ResponseWriter, r *http.Request) {
	var serverID int64
	if raw := r.URL.Query().Get("server_id"); raw != "" {
		id, err := pathID(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
			return
		}
		serverID = id
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid limit", nil)
			return
		}
		limit = n
	}
	logs, err := h.db.ListSyncLogs(r.Context(), serverID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load sync logs", err)
		return
	}
	if logs == nil {
		logs = []models.SyncLog{}
	}
	respondJSON(w, http.StatusOK, logs)
}

// History handles GET /api/v1/history: the raw filtered feed, newest
// first, for drill-down views.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	filter, err := parseHistoryFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid limit", nil)
			return
		}
		filter.Limit = limit
	}
	rows, err := h.db.ListHistory(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load history", err)
		return
	}
	if rows == nil {
		rows = []models.PlayHistory{}
	}
	respondJSON(w, http.StatusOK, rows)
}

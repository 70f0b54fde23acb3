// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

/*
history.go - Persisted History Entities

Relational entities written by the sync engine and read by the
aggregation engine:

  - Server: a configured remote Emby server
  - GlobalUser: optional cross-server identity grouping ServerUsers
  - ServerUser: one Emby account on one server, unique per
    (server_id, emby_user_id)
  - PlayHistory: one watch record per (server_user, item), kept current
    by the sync engine's upsert rule
  - SessionLog: one row per playback session, written by the session
    poller collaborator; the core reads it and writes stop markers
  - SyncLog: append-only audit trail of sync runs
*/

package models

import "time"

// Server is a configured remote Emby server.
type Server struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Port      int       `json:"port"`
	APIKey    string    `json:"-"` // never exposed over the API
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// BaseURL returns the full server address including the port, when one
// is configured separately from the URL.
func (s *Server) BaseURL() string {
	return s.URL
}

// GlobalUser is an optional cross-server identity grouping multiple
// ServerUser accounts (the same person on several Emby instances).
type GlobalUser struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ServerUser is one Emby account on one server.
type ServerUser struct {
	ID           int64     `json:"id"`
	ServerID     int64     `json:"server_id"`
	EmbyUserID   string    `json:"emby_user_id"`
	Username     string    `json:"username"`
	GlobalUserID *int64    `json:"global_user_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// PlayHistory is one watch record for one ServerUser on one item.
//
// At most one row per (server_user_id, item_id) is kept current: the
// sync engine updates the most recent such row in place rather than
// inserting on every position poll. Re-watches on genuinely different
// playback dates may coexist as distinct rows, so the dedup rule is
// enforced at write time (most-recent-row-wins), not by a database
// unique constraint.
type PlayHistory struct {
	ID           int64 `json:"id"`
	ServerID     int64 `json:"server_id"`
	ServerUserID int64 `json:"server_user_id"`
	// Username is not a column of play_history; read accessors populate
	// it from the joined server_users row for display and grouping.
	Username              string    `json:"username,omitempty"`
	ItemID                string    `json:"item_id"`
	ItemName              string    `json:"item_name"`
	ItemType              string    `json:"item_type"`
	SeriesName            string    `json:"series_name,omitempty"`
	SeasonName            string    `json:"season_name,omitempty"`
	EpisodeNumber         int       `json:"episode_number,omitempty"`
	SeasonNumber          int       `json:"season_number,omitempty"`
	Genres                string    `json:"genres,omitempty"` // serialized JSON array, untrusted free text
	ProductionYear        int       `json:"production_year,omitempty"`
	DurationTicks         int64     `json:"duration_ticks"`
	PlayedAt              time.Time `json:"played_at"`
	PlaybackPositionTicks int64     `json:"playback_position_ticks"`
	PlayDurationTicks     int64     `json:"play_duration_ticks"`
	PlayCount             int       `json:"play_count"`
	Completed             bool      `json:"completed"`
	VideoCodec            string    `json:"video_codec,omitempty"`
	Resolution            string    `json:"resolution,omitempty"`
	HDR                   bool      `json:"hdr"`
}

// SessionLog is one row per playback session, distinct from PlayHistory
// which is per item.
type SessionLog struct {
	ID                int64      `json:"id"`
	ServerID          int64      `json:"server_id"`
	SessionKey        string     `json:"session_key"`
	ServerUserID      int64      `json:"server_user_id"`
	Device            string     `json:"device,omitempty"`
	Client            string     `json:"client,omitempty"`
	ItemID            string     `json:"item_id"`
	ItemName          string     `json:"item_name"`
	ItemType          string     `json:"item_type"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	DurationTicks     int64      `json:"duration_ticks"`
	PositionTicks     int64      `json:"position_ticks"`
	RealDurationTicks int64      `json:"real_duration_ticks"`
	Paused            bool       `json:"paused"`
	Active            bool       `json:"active"`
	Transcoding       bool       `json:"transcoding"`
	VideoCodec        string     `json:"video_codec,omitempty"`
	Bitrate           int64      `json:"bitrate,omitempty"`
}

// Sync log statuses.
const (
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// Sync types recorded in the audit trail.
const (
	SyncTypeScheduled = "scheduled"
	SyncTypeManual    = "manual"
)

// SyncLog is an append-only audit record of one sync run for one server.
type SyncLog struct {
	ID       int64     `json:"id"`
	ServerID int64     `json:"server_id"`
	SyncType string    `json:"sync_type"`
	SyncedAt time.Time `json:"synced_at"`
	Status   string    `json:"status"`
	Message  string    `json:"message,omitempty"`
}

// UserSyncCounts summarizes the user-reconciliation pass for one server.
type UserSyncCounts struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// HistorySyncCounts summarizes history ingestion for one server.
type HistorySyncCounts struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// ServerSyncResult is the per-server outcome of one sync invocation.
type ServerSyncResult struct {
	ServerID    int64             `json:"server_id"`
	UsersSync   UserSyncCounts    `json:"users_sync"`
	HistorySync HistorySyncCounts `json:"history_sync"`
	Error       string            `json:"error,omitempty"`
}

// Failed reports whether the server's sync raised an unhandled error.
func (r *ServerSyncResult) Failed() bool {
	return r.Error != ""
}

// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

/*
stats.go - Aggregation Result Types

Result shapes produced by the aggregation engine (internal/stats) and
served over the API. All values derive from PlayHistory/SessionLog rows
through the shared real-duration reconciliation rule, so numbers agree
across views.
*/

package models

import "time"

// PeriodRollup summarizes watch activity over a date range (daily,
// weekly or monthly window).
type PeriodRollup struct {
	Period      string       `json:"period"` // "daily", "weekly", "monthly"
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	TotalHours  float64      `json:"total_hours"`
	TotalPlays  int          `json:"total_plays"`
	UniqueItems int          `json:"unique_items"`
	UniqueUsers int          `json:"unique_users"`
	PeakHour    int          `json:"peak_hour"` // 0-23; first max in ascending order
	HourlyHours []float64    `json:"hourly_hours"`
	TopGenres   []GenreCount `json:"top_genres"`
}

// GenreCount is one genre's contribution within a rollup window.
type GenreCount struct {
	Genre string  `json:"genre"`
	Plays int     `json:"plays"`
	Hours float64 `json:"hours"`
}

// UserLeaderboardEntry ranks one ServerUser by watch activity.
// Entries are always per individual server account, never grouped by
// a linked GlobalUser.
type UserLeaderboardEntry struct {
	ServerUserID int64   `json:"server_user_id"`
	ServerID     int64   `json:"server_id"`
	Username     string  `json:"username"`
	TotalHours   float64 `json:"total_hours"`
	TotalPlays   int     `json:"total_plays"`
}

// MediaLeaderboardEntry ranks one media item by watch activity.
type MediaLeaderboardEntry struct {
	ItemID      string  `json:"item_id"`
	ItemName    string  `json:"item_name"`
	ItemType    string  `json:"item_type"`
	SeriesName  string  `json:"series_name,omitempty"`
	TotalHours  float64 `json:"total_hours"`
	TotalPlays  int     `json:"total_plays"`
	UniqueUsers int     `json:"unique_users"`
}

// ServerLeaderboardEntry ranks one server by watch activity.
type ServerLeaderboardEntry struct {
	ServerID    int64   `json:"server_id"`
	TotalHours  float64 `json:"total_hours"`
	TotalPlays  int     `json:"total_plays"`
	UniqueUsers int     `json:"unique_users"`
}

// Leaderboards bundles the three leaderboard views.
type Leaderboards struct {
	Users   []UserLeaderboardEntry   `json:"users"`
	Media   []MediaLeaderboardEntry  `json:"media"`
	Servers []ServerLeaderboardEntry `json:"servers"`
}

// Marathon is a qualifying cluster of consecutive same-series episode
// watches for one user.
type Marathon struct {
	ServerUserID int64     `json:"server_user_id"`
	Username     string    `json:"username"`
	SeriesName   string    `json:"series_name"`
	Date         string    `json:"date"` // YYYY-MM-DD of the first episode
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	EpisodeCount int       `json:"episode_count"`
	TotalHours   float64   `json:"total_hours"` // rounded to 1 decimal
}

// AbandonedItem is one abandoned watch record in the recency feed.
type AbandonedItem struct {
	ServerUserID    int64     `json:"server_user_id"`
	Username        string    `json:"username"`
	ItemID          string    `json:"item_id"`
	ItemName        string    `json:"item_name"`
	ItemType        string    `json:"item_type"`
	SeriesName      string    `json:"series_name,omitempty"`
	WatchedFraction float64   `json:"watched_fraction"`
	PlayedAt        time.Time `json:"played_at"`
}

// AbandonedItemGroup aggregates abandonment per item, ranked by how
// many distinct users gave up on it.
type AbandonedItemGroup struct {
	ItemID          string  `json:"item_id"`
	ItemName        string  `json:"item_name"`
	ItemType        string  `json:"item_type"`
	SeriesName      string  `json:"series_name,omitempty"`
	AbandonerCount  int     `json:"abandoner_count"`
	AvgWatchedFract float64 `json:"avg_watched_fraction"`
}

// AbandonmentReport bundles the grouped and recency-ordered views.
type AbandonmentReport struct {
	ByItem []AbandonedItemGroup `json:"by_item"`
	Recent []AbandonedItem      `json:"recent"`
}

// PeakHourCell is one (weekday, hour) cell in the viewing heatmap,
// weighted by real watch duration.
type PeakHourCell struct {
	Weekday int     `json:"weekday"` // 0=Sunday through 6=Saturday
	Hour    int     `json:"hour"`    // 0-23
	Hours   float64 `json:"hours"`   // real-duration mass in the cell
}

// ViewingPrediction is the peak-hour heatmap plus the predicted next
// viewing time derived from it.
type ViewingPrediction struct {
	Heatmap       []PeakHourCell `json:"heatmap"` // 7x24 cells, row-major by weekday
	PeakHours     []PeakHourCell `json:"peak_hours"`
	PredictedNext time.Time      `json:"predicted_next"`
}

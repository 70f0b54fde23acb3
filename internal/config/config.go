// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

// Package config provides layered application configuration.
//
// Configuration is resolved in three layers, later layers overriding
// earlier ones:
//
//  1. Struct defaults (defaultConfig)
//  2. YAML config file (first match in DefaultConfigPaths, or CONFIG_PATH)
//  3. Environment variables with the EW_ prefix (EW_SYNC_INTERVAL, ...)
package config

import "time"

// Config is the root application configuration.
type Config struct {
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	HTTP     HTTPConfig     `koanf:"http"`
	Sync     SyncConfig     `koanf:"sync"`
	Stats    StatsConfig    `koanf:"stats"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json, console
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig controls the embedded DuckDB store.
type DatabaseConfig struct {
	Path         string        `koanf:"path"`
	MaxMemory    string        `koanf:"max_memory"`
	Threads      int           `koanf:"threads"`
	QueryTimeout time.Duration `koanf:"query_timeout"`
}

// HTTPConfig controls the JSON API server.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimit       int           `koanf:"rate_limit"` // requests per window per IP
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// SyncConfig controls the incremental sync engine.
type SyncConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Interval       time.Duration `koanf:"interval"`        // between scheduled runs
	PageSize       int           `koanf:"page_size"`       // completed-history page size
	ResumableLimit int           `koanf:"resumable_limit"` // max in-progress items per user
	RetryCount     int           `koanf:"retry_count"`
	RetryBackoff   time.Duration `koanf:"retry_backoff"`
	RatePerSecond  float64       `koanf:"rate_per_second"` // remote API request budget
	LeaseTTL       time.Duration `koanf:"lease_ttl"`       // overlap-guard lease lifetime
}

// StatsConfig carries the aggregation thresholds.
type StatsConfig struct {
	MarathonGapMinutes  int     `koanf:"marathon_gap_minutes"`
	MarathonMinEpisodes int     `koanf:"marathon_min_episodes"`
	MarathonMinHours    float64 `koanf:"marathon_min_hours"`
	AbandonedThreshold  float64 `koanf:"abandoned_threshold"`
	LeaderboardLimit    int     `koanf:"leaderboard_limit"`
	PeakHoursTopN       int     `koanf:"peak_hours_top_n"`
}

// Sync interval bounds. Clients may poll as often as every 10 seconds;
// anything above an hour defeats incremental cursoring freshness.
const (
	MinSyncInterval = 10 * time.Second
	MaxSyncInterval = time.Hour
)

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Path:         "/data/embywatch.db",
			MaxMemory:    "1GB",
			Threads:      0, // 0 = NumCPU
			QueryTimeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:            ":8077",
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       300,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Sync: SyncConfig{
			Enabled:        true,
			Interval:       5 * time.Minute,
			PageSize:       100,
			ResumableLimit: 100,
			RetryCount:     3,
			RetryBackoff:   2 * time.Second,
			RatePerSecond:  5,
			LeaseTTL:       15 * time.Minute,
		},
		Stats: StatsConfig{
			MarathonGapMinutes:  120,
			MarathonMinEpisodes: 3,
			MarathonMinHours:    3.0,
			AbandonedThreshold:  0.30,
			LeaderboardLimit:    25,
			PeakHoursTopN:       5,
		},
	}
}

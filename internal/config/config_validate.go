// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package config

import (
	"fmt"
)

// Validate checks the configuration for values that would misbehave at
// runtime. Sync intervals outside the supported polling window are
// clamped rather than rejected, matching the behavior operators expect
// from interval knobs.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateDatabase,
		c.validateHTTP,
		c.validateSync,
		c.validateStats,
	}

	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("database.threads must be >= 0, got %d", c.Database.Threads)
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("database.query_timeout must be positive, got %s", c.Database.QueryTimeout)
	}
	return nil
}

func (c *Config) validateHTTP() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr must not be empty")
	}
	if c.HTTP.RateLimit <= 0 {
		return fmt.Errorf("http.rate_limit must be positive, got %d", c.HTTP.RateLimit)
	}
	if c.HTTP.RateLimitWindow <= 0 {
		return fmt.Errorf("http.rate_limit_window must be positive, got %s", c.HTTP.RateLimitWindow)
	}
	return nil
}

func (c *Config) validateSync() error {
	// Clamp the polling interval into the supported window
	if c.Sync.Interval < MinSyncInterval {
		c.Sync.Interval = MinSyncInterval
	}
	if c.Sync.Interval > MaxSyncInterval {
		c.Sync.Interval = MaxSyncInterval
	}
	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("sync.page_size must be positive, got %d", c.Sync.PageSize)
	}
	if c.Sync.ResumableLimit <= 0 {
		return fmt.Errorf("sync.resumable_limit must be positive, got %d", c.Sync.ResumableLimit)
	}
	if c.Sync.RetryCount < 0 {
		return fmt.Errorf("sync.retry_count must be >= 0, got %d", c.Sync.RetryCount)
	}
	if c.Sync.RatePerSecond <= 0 {
		return fmt.Errorf("sync.rate_per_second must be positive, got %f", c.Sync.RatePerSecond)
	}
	if c.Sync.LeaseTTL <= 0 {
		return fmt.Errorf("sync.lease_ttl must be positive, got %s", c.Sync.LeaseTTL)
	}
	return nil
}

func (c *Config) validateStats() error {
	if c.Stats.MarathonGapMinutes <= 0 {
		return fmt.Errorf("stats.marathon_gap_minutes must be positive, got %d", c.Stats.MarathonGapMinutes)
	}
	if c.Stats.MarathonMinEpisodes < 2 {
		return fmt.Errorf("stats.marathon_min_episodes must be >= 2, got %d", c.Stats.MarathonMinEpisodes)
	}
	if c.Stats.MarathonMinHours <= 0 {
		return fmt.Errorf("stats.marathon_min_hours must be positive, got %f", c.Stats.MarathonMinHours)
	}
	if c.Stats.AbandonedThreshold <= 0 || c.Stats.AbandonedThreshold >= 1 {
		return fmt.Errorf("stats.abandoned_threshold must be in (0, 1), got %f", c.Stats.AbandonedThreshold)
	}
	if c.Stats.LeaderboardLimit <= 0 {
		return fmt.Errorf("stats.leaderboard_limit must be positive, got %d", c.Stats.LeaderboardLimit)
	}
	if c.Stats.PeakHoursTopN <= 0 || c.Stats.PeakHoursTopN > 168 {
		return fmt.Errorf("stats.peak_hours_top_n must be in [1, 168], got %d", c.Stats.PeakHoursTopN)
	}
	return nil
}

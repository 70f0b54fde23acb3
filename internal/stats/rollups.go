// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package stats

import (
	"sort"
	"time"

	"github.com/dpoulsen/embywatch/internal/models"
)

// topGenresLimit bounds the genre breakdown per rollup window.
const topGenresLimit = 10

// DailyWindow bounds the calendar day containing asOf (UTC).
func DailyWindow(asOf time.Time) (time.Time, time.Time) {
	start := asOf.UTC().Truncate(24 * time.Hour)
	return start, start.Add(24 * time.Hour)
}

// WeeklyWindow bounds the Monday-start calendar week containing asOf.
func WeeklyWindow(asOf time.Time) (time.Time, time.Time) {
	day := asOf.UTC().Truncate(24 * time.Hour)
	offset := (int(day.Weekday()) + 6) % 7 // days since Monday
	start := day.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}

// MonthlyWindow bounds the calendar month containing asOf.
func MonthlyWindow(asOf time.Time) (time.Time, time.Time) {
	t := asOf.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// DailyStats rolls up the calendar day containing asOf (UTC).
func DailyStats(rows []models.PlayHistory, asOf time.Time) models.PeriodRollup {
	start, end := DailyWindow(asOf)
	return WindowRollup(rows, "daily", start, end)
}

// WeeklyStats rolls up the Monday-start calendar week containing asOf.
func WeeklyStats(rows []models.PlayHistory, asOf time.Time) models.PeriodRollup {
	start, end := WeeklyWindow(asOf)
	return WindowRollup(rows, "weekly", start, end)
}

// MonthlyStats rolls up the calendar month containing asOf.
func MonthlyStats(rows []models.PlayHistory, asOf time.Time) models.PeriodRollup {
	start, end := MonthlyWindow(asOf)
	return WindowRollup(rows, "monthly", start, end)
}

// WindowRollup aggregates rows whose played_at falls in [start, end):
// total real-duration hours, real play count, distinct items and users,
// the peak hour of day and a genre breakdown. The peak hour is the
// first maximum encountered iterating hours 0..23 ascending, so ties
// resolve to the earliest hour.
func WindowRollup(rows []models.PlayHistory, period string, start, end time.Time) models.PeriodRollup {
	rollup := models.PeriodRollup{
		Period:      period,
		Start:       start,
		End:         end,
		HourlyHours: make([]float64, 24),
	}

	type itemKey struct {
		serverID int64
		itemID   string
	}
	items := make(map[itemKey]struct{})
	users := make(map[int64]struct{})
	genreHours := make(map[string]float64)
	genrePlays := make(map[string]int)

	for i := range rows {
		h := &rows[i]
		at := h.PlayedAt.UTC()
		if at.Before(start) || !at.Before(end) {
			continue
		}

		hours := recordRealHours(h)
		plays := recordRealPlays(h)

		rollup.TotalHours += hours
		rollup.TotalPlays += plays
		rollup.HourlyHours[at.Hour()] += hours
		items[itemKey{h.ServerID, h.ItemID}] = struct{}{}
		users[h.ServerUserID] = struct{}{}

		for _, genre := range parseGenres(h.Genres) {
			genreHours[genre] += hours
			genrePlays[genre] += plays
		}
	}

	rollup.UniqueItems = len(items)
	rollup.UniqueUsers = len(users)

	for hour := 0; hour < 24; hour++ {
		if rollup.HourlyHours[hour] > rollup.HourlyHours[rollup.PeakHour] {
			rollup.PeakHour = hour
		}
	}

	rollup.TopGenres = topGenres(genreHours, genrePlays, topGenresLimit)
	return rollup
}

func topGenres(hours map[string]float64, plays map[string]int, limit int) []models.GenreCount {
	counts := make([]models.GenreCount, 0, len(hours))
	for genre, h := range hours {
		counts = append(counts, models.GenreCount{Genre: genre, Plays: plays[genre], Hours: h})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Hours != counts[j].Hours {
			return counts[i].Hours > counts[j].Hours
		}
		return counts[i].Genre < counts[j].Genre
	})
	if len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}

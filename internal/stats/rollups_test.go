// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package stats

import (
	"math"
	"testing"
	"time"

	"github.com/dpoulsen/embywatch/internal/models"
)

func hoursTicks(h float64) int64 {
	return int64(h * 3600 * float64(models.TicksPerSecond))
}

func row(userID int64, itemID string, playedAt time.Time, playCount int, durationTicks, positionTicks int64) models.PlayHistory {
	return models.PlayHistory{
		ServerID:              1,
		ServerUserID:          userID,
		ItemID:                itemID,
		ItemName:              "item " + itemID,
		ItemType:              "Movie",
		PlayedAt:              playedAt,
		PlayCount:             playCount,
		DurationTicks:         durationTicks,
		PlaybackPositionTicks: positionTicks,
	}
}

func checkFloat(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestWindowRollupTotals(t *testing.T) {
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	rows := []models.PlayHistory{
		row(1, "a", day.Add(20*time.Hour), 1, hoursTicks(2), 0),
		row(2, "b", day.Add(21*time.Hour), 0, hoursTicks(2), hoursTicks(0.5)),
		// Outside the window, must not count
		row(1, "c", day.Add(25*time.Hour), 1, hoursTicks(1), 0),
	}

	r := WindowRollup(rows, "daily", day, day.Add(24*time.Hour))

	checkFloat(t, "TotalHours", r.TotalHours, 2.5)
	if r.TotalPlays != 2 {
		t.Errorf("TotalPlays = %d, want 2", r.TotalPlays)
	}
	if r.UniqueItems != 2 || r.UniqueUsers != 2 {
		t.Errorf("unique items/users = %d/%d, want 2/2", r.UniqueItems, r.UniqueUsers)
	}
	checkFloat(t, "HourlyHours[20]", r.HourlyHours[20], 2)
	checkFloat(t, "HourlyHours[21]", r.HourlyHours[21], 0.5)
}

func TestWindowRollupPeakHourFirstMaxWins(t *testing.T) {
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	// Equal mass at hours 9 and 17: the tie must resolve to 9
	rows := []models.PlayHistory{
		row(1, "a", day.Add(17*time.Hour), 1, hoursTicks(1), 0),
		row(1, "b", day.Add(9*time.Hour), 1, hoursTicks(1), 0),
	}
	r := WindowRollup(rows, "daily", day, day.Add(24*time.Hour))
	if r.PeakHour != 9 {
		t.Errorf("PeakHour = %d, want first max 9", r.PeakHour)
	}
}

func TestWindowRollupGenreParsing(t *testing.T) {
	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	good := row(1, "a", day.Add(12*time.Hour), 1, hoursTicks(1), 0)
	good.Genres = `["Drama", "Sci-Fi"]`

	junk := row(1, "b", day.Add(13*time.Hour), 1, hoursTicks(1), 0)
	junk.Genres = `["Drama", "tag:leaked-metadata", "an implausibly long genre token"]`

	malformed := row(1, "c", day.Add(14*time.Hour), 1, hoursTicks(1), 0)
	malformed.Genres = `not json at all`

	r := WindowRollup([]models.PlayHistory{good, junk, malformed}, "daily", day, day.Add(24*time.Hour))

	byName := make(map[string]models.GenreCount)
	for _, g := range r.TopGenres {
		byName[g.Genre] = g
	}
	if len(byName) != 2 {
		t.Fatalf("expected 2 surviving genres, got %v", r.TopGenres)
	}
	if g := byName["Drama"]; g.Plays != 2 {
		t.Errorf("Drama plays = %d, want 2", g.Plays)
	}
	checkFloat(t, "Drama hours", byName["Drama"].Hours, 2)
	if _, ok := byName["Sci-Fi"]; !ok {
		t.Error("Sci-Fi dropped")
	}
	// Malformed row still contributes watch time, just no genre signal
	checkFloat(t, "TotalHours", r.TotalHours, 3)
}

func TestParseGenres(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"empty", "", 0},
		{"malformed json", "{broken", 0},
		{"valid pair", `["Action","Comedy"]`, 2},
		{"colon token dropped", `["Action","key:value"]`, 1},
		{"overlong token dropped", `["Action","this token is far longer than twenty runes"]`, 1},
		{"exactly twenty runes kept", `["aaaaaaaaaaaaaaaaaaaa"]`, 1},
		{"whitespace-only dropped", `["  ", "Action"]`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseGenres(tt.raw); len(got) != tt.want {
				t.Errorf("parseGenres(%q) = %v, want %d tokens", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCalendarWindows(t *testing.T) {
	asOf := time.Date(2026, 8, 20, 15, 30, 0, 0, time.UTC) // a Thursday

	d := DailyStats(nil, asOf)
	if !d.Start.Equal(time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("daily start = %v", d.Start)
	}

	w := WeeklyStats(nil, asOf)
	if !w.Start.Equal(time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("weekly start = %v, want Monday", w.Start)
	}
	if !w.End.Equal(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("weekly end = %v", w.End)
	}

	m := MonthlyStats(nil, asOf)
	if !m.Start.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("monthly start = %v", m.Start)
	}
	if !m.End.Equal(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("monthly end = %v", m.End)
	}
}

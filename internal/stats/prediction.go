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

// DefaultPeakHoursTopN is how many peak cells the prediction reports.
const DefaultPeakHoursTopN = 5

// PredictViewing builds a 7x24 heatmap of real-duration mass keyed by
// (weekday, hour) of played_at, reports the topN heaviest cells as peak
// hours, and predicts the next viewing time: scanning forward hour by
// hour from now, wrapping at the week boundary, the first upcoming
// hour whose historical cell carries the most mass.
func PredictViewing(rows []models.PlayHistory, now time.Time, topN int) models.ViewingPrediction {
	if topN <= 0 {
		topN = DefaultPeakHoursTopN
	}

	var mass [7][24]float64
	for i := range rows {
		h := &rows[i]
		at := h.PlayedAt.UTC()
		mass[int(at.Weekday())][at.Hour()] += recordRealHours(h)
	}

	prediction := models.ViewingPrediction{
		Heatmap: make([]models.PeakHourCell, 0, 7*24),
	}
	for weekday := 0; weekday < 7; weekday++ {
		for hour := 0; hour < 24; hour++ {
			prediction.Heatmap = append(prediction.Heatmap, models.PeakHourCell{
				Weekday: weekday,
				Hour:    hour,
				Hours:   mass[weekday][hour],
			})
		}
	}

	peaks := make([]models.PeakHourCell, 0, 7*24)
	for _, cell := range prediction.Heatmap {
		if cell.Hours > 0 {
			peaks = append(peaks, cell)
		}
	}
	sort.Slice(peaks, func(i, j int) bool {
		a, b := peaks[i], peaks[j]
		if a.Hours != b.Hours {
			return a.Hours > b.Hours
		}
		if a.Weekday != b.Weekday {
			return a.Weekday < b.Weekday
		}
		return a.Hour < b.Hour
	})
	if len(peaks) > topN {
		peaks = peaks[:topN]
	}
	prediction.PeakHours = peaks

	prediction.PredictedNext = predictNext(mass, now)
	return prediction
}

// predictNext walks the next 168 calendar hours from now and returns
// the start of the one whose historical cell is heaviest. Strict
// comparison keeps ties on the earliest upcoming hour. With no history
// at all the first upcoming hour comes back, which is as good a guess
// as any.
func predictNext(mass [7][24]float64, now time.Time) time.Time {
	base := now.UTC().Truncate(time.Hour)
	best := base.Add(time.Hour)
	bestMass := -1.0
	for offset := 1; offset <= 7*24; offset++ {
		candidate := base.Add(time.Duration(offset) * time.Hour)
		m := mass[int(candidate.Weekday())][candidate.Hour()]
		if m > bestMass {
			best = candidate
			bestMass = m
		}
	}
	return best
}

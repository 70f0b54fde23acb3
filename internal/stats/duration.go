// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package stats

import "github.com/dpoulsen/embywatch/internal/models"

// RealDurationTicks reconciles a record's watch time. A play count of
// one or more means at least one full traversal of the item (re-watches
// multiply), and any in-progress position on top of that is additional,
// not-yet-completed viewing:
//
//	realDuration = (playCount > 0 ? playCount * duration : 0) + position
//
// Every aggregation view must go through this one function so that
// totals agree across rollups, leaderboards and user views.
func RealDurationTicks(playCount int, durationTicks, positionTicks int64) int64 {
	var total int64
	if playCount > 0 {
		total = int64(playCount) * durationTicks
	}
	return total + positionTicks
}

// RealPlayCount is the play count used when counting number of plays
// rather than duration: the stored count when positive, else one for an
// in-progress never-completed watch, else zero.
func RealPlayCount(playCount int, positionTicks int64) int {
	if playCount > 0 {
		return playCount
	}
	if positionTicks > 0 {
		return 1
	}
	return 0
}

// recordRealTicks applies RealDurationTicks to one history row.
func recordRealTicks(h *models.PlayHistory) int64 {
	return RealDurationTicks(h.PlayCount, h.DurationTicks, h.PlaybackPositionTicks)
}

// recordRealHours is recordRealTicks in fractional hours.
func recordRealHours(h *models.PlayHistory) float64 {
	return models.TicksToHours(recordRealTicks(h))
}

// recordRealPlays applies RealPlayCount to one history row.
func recordRealPlays(h *models.PlayHistory) int {
	return RealPlayCount(h.PlayCount, h.PlaybackPositionTicks)
}

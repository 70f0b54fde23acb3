// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package stats

import (
	"sort"

	"github.com/dpoulsen/embywatch/internal/models"
)

// DefaultAbandonedThreshold is the watched-fraction cutoff below which
// an uncompleted record counts as abandoned.
const DefaultAbandonedThreshold = 0.30

// DetectAbandonment finds records a user started and gave up on: a
// positive playback position whose watched fraction is strictly below
// threshold on a record not marked completed. The comparison is strict,
// so a record at exactly the threshold is not abandoned. Results come
// back two ways: grouped per item ranked by how many distinct users
// abandoned it, and as a raw feed ordered by recency.
func DetectAbandonment(rows []models.PlayHistory, threshold float64) models.AbandonmentReport {
	if threshold <= 0 {
		threshold = DefaultAbandonedThreshold
	}

	type itemKey struct {
		serverID int64
		itemID   string
	}
	type groupAgg struct {
		group     models.AbandonedItemGroup
		fractions float64
		count     int
		users     map[int64]struct{}
	}
	groups := make(map[itemKey]*groupAgg)

	report := models.AbandonmentReport{}
	for i := range rows {
		h := &rows[i]
		if h.Completed || h.DurationTicks <= 0 || h.PlaybackPositionTicks <= 0 {
			continue
		}
		fraction := float64(h.PlaybackPositionTicks) / float64(h.DurationTicks)
		if fraction >= threshold {
			continue
		}

		report.Recent = append(report.Recent, models.AbandonedItem{
			ServerUserID:    h.ServerUserID,
			Username:        h.Username,
			ItemID:          h.ItemID,
			ItemName:        h.ItemName,
			ItemType:        h.ItemType,
			SeriesName:      h.SeriesName,
			WatchedFraction: fraction,
			PlayedAt:        h.PlayedAt,
		})

		key := itemKey{h.ServerID, h.ItemID}
		g, ok := groups[key]
		if !ok {
			g = &groupAgg{
				group: models.AbandonedItemGroup{
					ItemID:     h.ItemID,
					ItemName:   h.ItemName,
					ItemType:   h.ItemType,
					SeriesName: h.SeriesName,
				},
				users: make(map[int64]struct{}),
			}
			groups[key] = g
		}
		g.fractions += fraction
		g.count++
		g.users[h.ServerUserID] = struct{}{}
	}

	sort.Slice(report.Recent, func(i, j int) bool {
		a, b := report.Recent[i], report.Recent[j]
		if !a.PlayedAt.Equal(b.PlayedAt) {
			return a.PlayedAt.After(b.PlayedAt)
		}
		return a.ItemID < b.ItemID
	})

	for _, g := range groups {
		g.group.AbandonerCount = len(g.users)
		g.group.AvgWatchedFract = g.fractions / float64(g.count)
		report.ByItem = append(report.ByItem, g.group)
	}
	sort.Slice(report.ByItem, func(i, j int) bool {
		a, b := report.ByItem[i], report.ByItem[j]
		if a.AbandonerCount != b.AbandonerCount {
			return a.AbandonerCount > b.AbandonerCount
		}
		return a.ItemID < b.ItemID
	})
	return report
}

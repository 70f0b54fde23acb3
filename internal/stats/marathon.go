// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package stats

import (
	"math"
	"sort"
	"time"

	"github.com/dpoulsen/embywatch/internal/models"
)

// MarathonOptions tunes the clustering walk. Zero values fall back to
// the defaults below.
type MarathonOptions struct {
	Gap         time.Duration // max gap between consecutive episode starts
	MinEpisodes int
	MinHours    float64
}

// Defaults for marathon qualification.
const (
	DefaultMarathonGap         = 120 * time.Minute
	DefaultMarathonMinEpisodes = 3
	DefaultMarathonMinHours    = 3.0
)

func (o MarathonOptions) withDefaults() MarathonOptions {
	if o.Gap <= 0 {
		o.Gap = DefaultMarathonGap
	}
	if o.MinEpisodes <= 0 {
		o.MinEpisodes = DefaultMarathonMinEpisodes
	}
	if o.MinHours <= 0 {
		o.MinHours = DefaultMarathonMinHours
	}
	return o
}

// marathonCluster is a running cluster during the walk.
type marathonCluster struct {
	serverUserID int64
	username     string
	seriesName   string
	start        time.Time
	lastStart    time.Time
	episodes     int
	realTicks    int64
}

// DetectMarathons walks episode rows and emits qualifying clusters of
// consecutive same-series watches. Rows must arrive sorted by user,
// series, then ascending played_at (the order ListEpisodeHistory
// returns). A cluster closes when the user or series changes or the gap
// between consecutive episode start times exceeds opts.Gap; it
// qualifies when it holds at least MinEpisodes episodes and at least
// MinHours of real duration. The final open cluster flushes through the
// same check. Output is sorted by descending total hours.
func DetectMarathons(rows []models.PlayHistory, opts MarathonOptions) []models.Marathon {
	opts = opts.withDefaults()

	var marathons []models.Marathon
	var cur *marathonCluster

	flush := func() {
		if cur == nil {
			return
		}
		hours := models.TicksToHours(cur.realTicks)
		if cur.episodes >= opts.MinEpisodes && hours >= opts.MinHours {
			marathons = append(marathons, models.Marathon{
				ServerUserID: cur.serverUserID,
				Username:     cur.username,
				SeriesName:   cur.seriesName,
				Date:         cur.start.UTC().Format("2006-01-02"),
				StartTime:    cur.start,
				EndTime:      cur.lastStart,
				EpisodeCount: cur.episodes,
				TotalHours:   math.Round(hours*10) / 10,
			})
		}
		cur = nil
	}

	for i := range rows {
		h := &rows[i]
		if h.SeriesName == "" {
			continue
		}

		if cur != nil {
			sameRun := cur.serverUserID == h.ServerUserID &&
				cur.seriesName == h.SeriesName &&
				h.PlayedAt.Sub(cur.lastStart) <= opts.Gap
			if !sameRun {
				flush()
			}
		}
		if cur == nil {
			cur = &marathonCluster{
				serverUserID: h.ServerUserID,
				username:     h.Username,
				seriesName:   h.SeriesName,
				start:        h.PlayedAt,
			}
		}
		cur.lastStart = h.PlayedAt
		cur.episodes++
		cur.realTicks += recordRealTicks(h)
	}
	flush()

	sort.Slice(marathons, func(i, j int) bool {
		a, b := marathons[i], marathons[j]
		if a.TotalHours != b.TotalHours {
			return a.TotalHours > b.TotalHours
		}
		return a.StartTime.Before(b.StartTime)
	})
	return marathons
}

// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

// Package stats is the aggregation engine: pure functions over play
// history rows fetched from the store. Every view derives watch time
// through the same real-duration rule (duration.go), so numbers agree
// across rollups, leaderboards, marathons and predictions. Nothing in
// this package touches the database or mutates its inputs; callers
// pass rows plus an explicit as-of time.
package stats

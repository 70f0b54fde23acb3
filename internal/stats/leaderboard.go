// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package stats

import (
	"sort"

	"github.com/dpoulsen/embywatch/internal/models"
)

// BuildLeaderboards ranks users, media items and servers by real watch
// duration. The user board groups strictly by individual ServerUser id,
// never by a linked GlobalUser, and drops accounts whose real play
// count is zero across all records. limit caps each board; a limit of
// zero or less means unbounded.
func BuildLeaderboards(rows []models.PlayHistory, limit int) models.Leaderboards {
	type userAgg struct {
		entry models.UserLeaderboardEntry
	}
	type itemKey struct {
		serverID int64
		itemID   string
	}
	type mediaAgg struct {
		entry models.MediaLeaderboardEntry
		users map[int64]struct{}
	}
	type serverAgg struct {
		entry models.ServerLeaderboardEntry
		users map[int64]struct{}
	}

	usersByID := make(map[int64]*userAgg)
	mediaByKey := make(map[itemKey]*mediaAgg)
	serversByID := make(map[int64]*serverAgg)

	for i := range rows {
		h := &rows[i]
		hours := recordRealHours(h)
		plays := recordRealPlays(h)

		u, ok := usersByID[h.ServerUserID]
		if !ok {
			u = &userAgg{entry: models.UserLeaderboardEntry{
				ServerUserID: h.ServerUserID,
				ServerID:     h.ServerID,
				Username:     h.Username,
			}}
			usersByID[h.ServerUserID] = u
		}
		u.entry.TotalHours += hours
		u.entry.TotalPlays += plays

		key := itemKey{h.ServerID, h.ItemID}
		m, ok := mediaByKey[key]
		if !ok {
			m = &mediaAgg{
				entry: models.MediaLeaderboardEntry{
					ItemID:     h.ItemID,
					ItemName:   h.ItemName,
					ItemType:   h.ItemType,
					SeriesName: h.SeriesName,
				},
				users: make(map[int64]struct{}),
			}
			mediaByKey[key] = m
		}
		m.entry.TotalHours += hours
		m.entry.TotalPlays += plays
		if plays > 0 {
			m.users[h.ServerUserID] = struct{}{}
		}

		s, ok := serversByID[h.ServerID]
		if !ok {
			s = &serverAgg{
				entry: models.ServerLeaderboardEntry{ServerID: h.ServerID},
				users: make(map[int64]struct{}),
			}
			serversByID[h.ServerID] = s
		}
		s.entry.TotalHours += hours
		s.entry.TotalPlays += plays
		if plays > 0 {
			s.users[h.ServerUserID] = struct{}{}
		}
	}

	boards := models.Leaderboards{}

	for _, u := range usersByID {
		if u.entry.TotalPlays == 0 {
			continue
		}
		boards.Users = append(boards.Users, u.entry)
	}
	sort.Slice(boards.Users, func(i, j int) bool {
		a, b := boards.Users[i], boards.Users[j]
		if a.TotalHours != b.TotalHours {
			return a.TotalHours > b.TotalHours
		}
		return a.ServerUserID < b.ServerUserID
	})

	for _, m := range mediaByKey {
		if m.entry.TotalPlays == 0 {
			continue
		}
		m.entry.UniqueUsers = len(m.users)
		boards.Media = append(boards.Media, m.entry)
	}
	sort.Slice(boards.Media, func(i, j int) bool {
		a, b := boards.Media[i], boards.Media[j]
		if a.TotalHours != b.TotalHours {
			return a.TotalHours > b.TotalHours
		}
		return a.ItemID < b.ItemID
	})

	for _, s := range serversByID {
		if s.entry.TotalPlays == 0 {
			continue
		}
		s.entry.UniqueUsers = len(s.users)
		boards.Servers = append(boards.Servers, s.entry)
	}
	sort.Slice(boards.Servers, func(i, j int) bool {
		a, b := boards.Servers[i], boards.Servers[j]
		if a.TotalHours != b.TotalHours {
			return a.TotalHours > b.TotalHours
		}
		return a.ServerID < b.ServerID
	})

	if limit > 0 {
		if len(boards.Users) > limit {
			boards.Users = boards.Users[:limit]
		}
		if len(boards.Media) > limit {
			boards.Media = boards.Media[:limit]
		}
		if len(boards.Servers) > limit {
			boards.Servers = boards.Servers[:limit]
		}
	}
	return boards
}

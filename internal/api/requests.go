// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dpoulsen/embywatch/internal/database"
)

// parseHistoryFilter reads the shared stats query parameters:
// start/end (RFC 3339 or YYYY-MM-DD), server_id (comma separated),
// user_id (ServerUser id) and global_user_id (expands to the linked
// accounts). user_id and global_user_id are mutually exclusive.
func parseHistoryFilter(r *http.Request) (database.HistoryFilter, error) {
	var filter database.HistoryFilter
	q := r.URL.Query()

	if raw := q.Get("start"); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid start: %w", err)
		}
		filter.Start = &t
	}
	if raw := q.Get("end"); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid end: %w", err)
		}
		filter.End = &t
	}
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return filter, fmt.Errorf("end before start")
	}

	if raw := q.Get("server_id"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return filter, fmt.Errorf("invalid server_id %q", part)
			}
			filter.ServerIDs = append(filter.ServerIDs, id)
		}
	}

	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid user_id %q", raw)
		}
		filter.ServerUserID = &id
	}
	if raw := q.Get("global_user_id"); raw != "" {
		if filter.ServerUserID != nil {
			return filter, fmt.Errorf("user_id and global_user_id are mutually exclusive")
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid global_user_id %q", raw)
		}
		filter.GlobalUserID = &id
	}

	return filter, nil
}

// parseTimeParam accepts RFC 3339 timestamps or bare dates.
func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC 3339 or YYYY-MM-DD, got %q", raw)
	}
	return t.UTC(), nil
}

// parseAsOf reads an optional as-of anchor for calendar rollups,
// defaulting to the current time.
func parseAsOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := parseTimeParam(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date: %w", err)
	}
	return t, nil
}

// pathID parses a numeric chi URL parameter.
func pathID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// HistoryFilter contains filter parameters for history read accessors.
//
// All fields are optional and combine with AND logic. ServerIDs uses OR
// logic within the field. ServerUserID and GlobalUserID are mutually
// exclusive; when GlobalUserID is set, it expands to the set of linked
// server-user ids before the query runs. A GlobalUser with no linked
// accounts matches nothing (empty result, not an error).
type HistoryFilter struct {
	Start        *time.Time
	End          *time.Time
	ServerIDs    []int64
	ServerUserID *int64
	GlobalUserID *int64
	ItemTypes    []string
	Limit        int
}

// buildHistoryConditions renders the filter into WHERE clauses and args
// against a play_history alias of "h". The caller resolves GlobalUserID
// into userIDs beforehand (see expandGlobalUser).
func buildHistoryConditions(filter HistoryFilter, userIDs []int64) ([]string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.Start != nil {
		clauses = append(clauses, "h.played_at >= ?")
		args = append(args, *filter.Start)
	}
	if filter.End != nil {
		clauses = append(clauses, "h.played_at <= ?")
		args = append(args, *filter.End)
	}
	if len(filter.ServerIDs) > 0 {
		placeholders := make([]string, len(filter.ServerIDs))
		for i, id := range filter.ServerIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		clauses = append(clauses, fmt.Sprintf("h.server_id IN (%s)", strings.Join(placeholders, ", ")))
	}
	if len(userIDs) > 0 {
		placeholders := make([]string, len(userIDs))
		for i, id := range userIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		clauses = append(clauses, fmt.Sprintf("h.server_user_id IN (%s)", strings.Join(placeholders, ", ")))
	}
	if len(filter.ItemTypes) > 0 {
		placeholders := make([]string, len(filter.ItemTypes))
		for i, t := range filter.ItemTypes {
			placeholders[i] = "?"
			args = append(args, t)
		}
		clauses = append(clauses, fmt.Sprintf("h.item_type IN (%s)", strings.Join(placeholders, ", ")))
	}

	return clauses, args
}

// resolveFilterUsers resolves the filter's user scope to concrete
// server-user ids. Returns (ids, restrict): when restrict is true the
// query must filter on the (possibly empty) id set; an empty restricted
// set matches nothing.
func (db *DB) resolveFilterUsers(ctx context.Context, filter HistoryFilter) ([]int64, bool, error) {
	if filter.ServerUserID != nil {
		return []int64{*filter.ServerUserID}, true, nil
	}
	if filter.GlobalUserID == nil {
		return nil, false, nil
	}

	ids, err := db.expandGlobalUser(ctx, *filter.GlobalUserID)
	if err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

// expandGlobalUser returns the server-user ids linked to a GlobalUser.
func (db *DB) expandGlobalUser(ctx context.Context, globalUserID int64) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id FROM server_users WHERE global_user_id = ?`, globalUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to expand global user %d: %w", globalUserID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan server user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating server user ids: %w", err)
	}
	return ids, nil
}

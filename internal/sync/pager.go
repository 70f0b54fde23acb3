// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package sync

import (
	"context"

	"github.com/dpoulsen/embywatch/internal/metrics"
	"github.com/dpoulsen/embywatch/internal/models"
)

// ItemPager pulls a user's played-items history one page at a time.
// The consumer drives iteration: when the high-water-mark stop
// condition fires mid-page, simply stop calling Next and the remaining
// pages are never fetched.
type ItemPager struct {
	client    EmbyClientAPI
	userID    string
	itemTypes []string
	pageSize  int

	startIndex int
	total      int
	fetched    bool
	done       bool
}

// NewItemPager builds a pager over userID's fully-played items, most
// recently played first.
func NewItemPager(client EmbyClientAPI, userID string, itemTypes []string, pageSize int) *ItemPager {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &ItemPager{
		client:    client,
		userID:    userID,
		itemTypes: itemTypes,
		pageSize:  pageSize,
	}
}

// Next fetches the next page. It returns a nil slice once the remote's
// record count is exhausted or an empty page comes back.
func (p *ItemPager) Next(ctx context.Context) ([]models.EmbyItem, error) {
	if p.done {
		return nil, nil
	}

	page, err := p.client.GetPlayedItemsPage(ctx, p.userID, p.itemTypes, p.startIndex, p.pageSize)
	if err != nil {
		return nil, err
	}
	metrics.SyncPageSize.Observe(float64(len(page.Items)))

	if !p.fetched {
		p.total = page.TotalRecordCount
		p.fetched = true
	}
	p.startIndex += len(page.Items)
	if len(page.Items) == 0 || p.startIndex >= p.total {
		p.done = true
	}
	if len(page.Items) == 0 {
		return nil, nil
	}
	return page.Items, nil
}

// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package services

import (
	"context"
	"errors"
	"time"

	"github.com/dpoulsen/embywatch/internal/logging"
	"github.com/dpoulsen/embywatch/internal/models"
	embysync "github.com/dpoulsen/embywatch/internal/sync"
)

// SyncRunner matches the sync engine's Run method, letting tests
// substitute a fake.
type SyncRunner interface {
	Run(ctx context.Context, syncType string) ([]models.ServerSyncResult, error)
}

// SyncService runs the scheduled sync loop: one run at startup, then
// one per interval tick until the context is canceled. A run already in
// flight elsewhere (a manual trigger holding the lease) is skipped,
// not treated as a failure.
type SyncService struct {
	runner   SyncRunner
	interval time.Duration
}

// NewSyncService wraps the sync engine for supervision.
func NewSyncService(runner SyncRunner, interval time.Duration) *SyncService {
	return &SyncService{runner: runner, interval: interval}
}

// Serve implements suture.Service.
func (s *SyncService) Serve(ctx context.Context) error {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *SyncService) runOnce(ctx context.Context) {
	_, err := s.runner.Run(ctx, models.SyncTypeScheduled)
	switch {
	case err == nil:
	case errors.Is(err, embysync.ErrSyncAlreadyRunning):
		logging.Debug().Msg("Scheduled sync skipped, another invocation holds the lease")
	case errors.Is(err, context.Canceled):
	default:
		// Per-server failures land in sync logs; an error here means
		// the run never got going. The next tick retries.
		logging.Error().Err(err).Msg("Scheduled sync failed")
	}
}

// String identifies the service in supervisor logs.
func (s *SyncService) String() string {
	return "sync-scheduler"
}

// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dpoulsen/embywatch/internal/models"
	embysync "github.com/dpoulsen/embywatch/internal/sync"
)

type fakeHTTPServer struct {
	listenErr error
	closed    chan struct{}
	shutdowns atomic.Int32
}

func newFakeHTTPServer(listenErr error) *fakeHTTPServer {
	return &fakeHTTPServer{listenErr: listenErr, closed: make(chan struct{})}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.closed
	return nil
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	close(f.closed)
	return nil
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	server := newFakeHTTPServer(nil)
	svc := NewHTTPService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	if got := server.shutdowns.Load(); got != 1 {
		t.Fatalf("shutdowns = %d, want 1", got)
	}
}

func TestHTTPServiceListenFailure(t *testing.T) {
	boom := errors.New("address in use")
	svc := NewHTTPService(newFakeHTTPServer(boom), time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, boom) {
		t.Fatalf("Serve returned %v, want wrapped listen error", err)
	}
}

type fakeRunner struct {
	runs atomic.Int32
	err  error
}

func (f *fakeRunner) Run(context.Context, string) ([]models.ServerSyncResult, error) {
	f.runs.Add(1)
	return nil, f.err
}

func TestSyncServiceRunsOnIntervalAndStops(t *testing.T) {
	runner := &fakeRunner{}
	svc := NewSyncService(runner, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for runner.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d runs before deadline", runner.runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestSyncServiceToleratesBusyLease(t *testing.T) {
	runner := &fakeRunner{err: embysync.ErrSyncAlreadyRunning}
	svc := NewSyncService(runner, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// A held lease must not crash the service loop before cancellation
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Serve returned %v, want context.DeadlineExceeded", err)
	}
	if runner.runs.Load() < 2 {
		t.Fatalf("runs = %d, want the loop to keep ticking", runner.runs.Load())
	}
}

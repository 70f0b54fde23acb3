// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

/*
emby_circuit_breaker.go - Circuit Breaker Wrapper for the Emby Client

Prevents cascading failures when an Emby server is unavailable or slow.
The breaker uses real time (via sony/gobreaker) for its interval and
timeout windows; tests should fake the underlying client rather than
the breaker.
*/

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dpoulsen/embywatch/internal/logging"
	"github.com/dpoulsen/embywatch/internal/metrics"
	"github.com/dpoulsen/embywatch/internal/models"
)

// Ensure the wrapper implements the client interface
var _ EmbyClientAPI = (*EmbyBreakerClient)(nil)

// EmbyBreakerClient wraps an EmbyClientAPI with a circuit breaker:
// max 3 requests in half-open state, 1 minute measurement window,
// 2 minute open timeout, trips at a 60% failure rate over at least
// 10 requests.
type EmbyBreakerClient struct {
	client EmbyClientAPI
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewEmbyBreakerClient wraps client with a named circuit breaker.
// Each server gets its own breaker so one flaky host cannot starve
// the others.
func NewEmbyBreakerClient(client EmbyClientAPI, name string) *EmbyBreakerClient {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			if failureRatio >= 0.6 {
				logging.Warn().
					Str("breaker", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := breakerStateString(from)
			toStr := breakerStateString(to)
			logging.Info().
				Str("breaker", name).
				Str("from", fromStr).
				Str("to", toStr).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &EmbyBreakerClient{client: client, cb: cb, name: name}
}

// execute runs one client call through the breaker and records the
// outcome.
func (b *EmbyBreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			return nil, fmt.Errorf("emby circuit breaker %s: %w", b.name, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	return result, nil
}

func (b *EmbyBreakerClient) Ping(ctx context.Context) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.client.Ping(ctx)
	})
	return err
}

func (b *EmbyBreakerClient) GetSystemInfo(ctx context.Context) (*models.EmbySystemInfo, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.client.GetSystemInfo(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.EmbySystemInfo), nil
}

func (b *EmbyBreakerClient) GetUsers(ctx context.Context) ([]models.EmbyUser, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.client.GetUsers(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.EmbyUser), nil
}

func (b *EmbyBreakerClient) GetPlayedItemsPage(ctx context.Context, userID string, itemTypes []string, startIndex, limit int) (*models.EmbyItemsPage, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.client.GetPlayedItemsPage(ctx, userID, itemTypes, startIndex, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.EmbyItemsPage), nil
}

func (b *EmbyBreakerClient) GetResumableItems(ctx context.Context, userID string, limit int) ([]models.EmbyItem, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.client.GetResumableItems(ctx, userID, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.EmbyItem), nil
}

func (b *EmbyBreakerClient) GetLibraries(ctx context.Context) ([]models.EmbyLibrary, error) {
	result, err := b.execute(func() (interface{}, error) {
		return b.client.GetLibraries(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.EmbyLibrary), nil
}

func (b *EmbyBreakerClient) StopSession(ctx context.Context, sessionID string) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.client.StopSession(ctx, sessionID)
	})
	return err
}

func breakerStateString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func breakerStateFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return -1
	}
}

// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

// Package metrics provides Prometheus metrics collection for observability.
//
// Metrics are exposed at the /metrics endpoint in Prometheus text format
// and cover the HTTP API, the sync engine, and the Emby client circuit
// breaker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests served",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Sync Operation Metrics
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of full sync invocations in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	SyncHistoryAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_history_added_total",
			Help: "Play-history rows inserted during sync",
		},
		[]string{"stream"}, // "completed", "resumable"
	)

	SyncHistorySkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_history_skipped_total",
			Help: "Items skipped during sync (write errors, unplayable records)",
		},
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_errors_total",
			Help: "Total number of sync errors",
		},
		[]string{"error_type"}, // "emby_api", "database", "lease"
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of last successful sync",
		},
	)

	SyncPageSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_page_size",
			Help:    "Number of items per fetched history page",
			Buckets: []float64{10, 25, 50, 100, 250, 500},
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Circuit breaker request outcomes",
		},
		[]string{"name", "outcome"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

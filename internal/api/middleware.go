// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dpoulsen/embywatch/internal/metrics"
)

// prometheusMetrics records request counts and latency per route
// pattern. The chi pattern keeps label cardinality bounded: /servers/7
// and /servers/9 both count under /servers/{id}.
func prometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = r.URL.Path
		}
		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, endpoint, strconv.Itoa(ww.Status()),
		).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, endpoint,
		).Observe(time.Since(started).Seconds())
	})
}

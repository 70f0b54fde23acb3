// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dpoulsen/embywatch/internal/config"
)

// NewRouter assembles the full HTTP surface.
func NewRouter(h *Handler, cfg *config.HTTPConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimit, cfg.RateLimitWindow))
		}
		r.Use(prometheusMetrics)

		r.Route("/stats", func(r chi.Router) {
			r.Get("/daily", h.StatsDaily)
			r.Get("/weekly", h.StatsWeekly)
			r.Get("/monthly", h.StatsMonthly)
			r.Get("/leaderboards", h.StatsLeaderboards)
			r.Get("/marathons", h.StatsMarathons)
			r.Get("/abandonment", h.StatsAbandonment)
			r.Get("/prediction", h.StatsPrediction)
		})

		r.Get("/history", h.History)
		r.Get("/sessions", h.Sessions)
		r.Post("/sessions/{key}/stop", h.StopSession)
		r.Get("/synclogs", h.SyncLogs)
		r.Post("/sync", h.TriggerSync)

		r.Route("/servers", func(r chi.Router) {
			r.Get("/", h.ListServers)
			r.Post("/", h.CreateServer)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetServer)
				r.Put("/", h.UpdateServer)
				r.Delete("/", h.DeleteServer)
				r.Post("/test", h.TestServer)
				r.Get("/users", h.ListServerUsers)
			})
		})

		r.Route("/users/global", func(r chi.Router) {
			r.Get("/", h.ListGlobalUsers)
			r.Post("/", h.CreateGlobalUser)
			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", h.DeleteGlobalUser)
				r.Post("/link", h.LinkGlobalUser)
				r.Post("/unlink", h.UnlinkGlobalUser)
			})
		})
	})

	return r
}

// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/dpoulsen/embywatch/internal/config"
	"github.com/dpoulsen/embywatch/internal/database"
	embysync "github.com/dpoulsen/embywatch/internal/sync"
)

// Handler bundles the dependencies every endpoint needs.
type Handler struct {
	db       *database.DB
	engine   *embysync.Engine
	cfg      *config.Config
	validate *validator.Validate
}

// NewHandler creates the API handler set.
func NewHandler(db *database.DB, engine *embysync.Engine, cfg *config.Config) *Handler {
	return &Handler{
		db:       db,
		engine:   engine,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// parseAndValidate decodes a JSON request body into req and runs
// struct validation.
func (h *Handler) parseAndValidate(r *http.Request, req interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := h.validate.Struct(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// Health handles GET /health: a liveness probe that also checks the
// store connection.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.db.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"status": status,
		"time":   time.Now().UTC(),
	})
}

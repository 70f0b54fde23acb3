// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

/*
handlers_admin.go - Admin Surface

Server CRUD with connectivity testing, cross-server identity
management (GlobalUser create/delete/link/unlink), the manual sync
trigger, and the session stop command.
*/

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dpoulsen/embywatch/internal/database"
	"github.com/dpoulsen/embywatch/internal/logging"
	"github.com/dpoulsen/embywatch/internal/models"
	embysync "github.com/dpoulsen/embywatch/internal/sync"
)

// CreateServer handles POST /api/v1/servers.
func (h *Handler) CreateServer(w http.ResponseWriter, r *http.Request) {
	var req models.CreateServerRequest
	if err := h.parseAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	server, err := h.db.CreateServer(r.Context(), &models.Server{
		Name:   req.Name,
		URL:    req.URL,
		Port:   req.Port,
		APIKey: req.APIKey,
		Active: active,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create server", err)
		return
	}
	logging.Info().Int64("server_id", server.ID).Str("name", server.Name).Msg("Server created")
	respondJSON(w, http.StatusCreated, server)
}

// ListServers handles GET /api/v1/servers.
func (h *Handler) ListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.db.ListServers(r.Context(), false)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list servers", err)
		return
	}
	if servers == nil {
		servers = []models.Server{}
	}
	respondJSON(w, http.StatusOK, servers)
}

// GetServer handles GET /api/v1/servers/{id}.
func (h *Handler) GetServer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	server, err := h.db.GetServer(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "server not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load server", err)
		return
	}
	respondJSON(w, http.StatusOK, server)
}

// UpdateServer handles PUT /api/v1/servers/{id}. Omitted fields keep
// their stored values.
func (h *Handler) UpdateServer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	var req models.UpdateServerRequest
	if err := h.parseAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	server, err := h.db.GetServer(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "server not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load server", err)
		return
	}

	if req.Name != "" {
		server.Name = req.Name
	}
	if req.URL != "" {
		server.URL = req.URL
	}
	if req.Port != 0 {
		server.Port = req.Port
	}
	if req.APIKey != "" {
		server.APIKey = req.APIKey
	}
	if req.Active != nil {
		server.Active = *req.Active
	}

	if err := h.db.UpdateServer(r.Context(), server); err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to update server", err)
		return
	}
	respondJSON(w, http.StatusOK, server)
}

// DeleteServer handles DELETE /api/v1/servers/{id}. Removes the server
// and everything synced from it.
func (h *Handler) DeleteServer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if err := h.db.DeleteServer(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "server not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to delete server", err)
		return
	}
	logging.Info().Int64("server_id", id).Msg("Server deleted")
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

// TestServer handles POST /api/v1/servers/{id}/test: probes the remote
// with the same breaker-wrapped client the sync engine uses.
func (h *Handler) TestServer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	server, err := h.db.GetServer(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "server not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load server", err)
		return
	}

	client := h.engine.Client(server)
	started := time.Now()
	result := models.ServerTestResponse{}

	if err := client.Ping(r.Context()); err != nil {
		result.Error = err.Error()
		result.LatencyMs = time.Since(started).Milliseconds()
		respondJSON(w, http.StatusOK, result)
		return
	}
	result.LatencyMs = time.Since(started).Milliseconds()
	result.Success = true

	if info, err := client.GetSystemInfo(r.Context()); err == nil {
		result.ServerName = info.ServerName
		result.Version = info.Version
	}
	if libs, err := client.GetLibraries(r.Context()); err == nil {
		result.Libraries = len(libs)
	}
	respondJSON(w, http.StatusOK, result)
}

// TriggerSync handles POST /api/v1/sync: one manual sync invocation,
// run to completion. A concurrent invocation answers 409.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	started := time.Now().UTC()
	results, err := h.engine.Run(r.Context(), models.SyncTypeManual)
	if errors.Is(err, embysync.ErrSyncAlreadyRunning) {
		respondError(w, http.StatusConflict, ErrCodeSyncBusy, "a sync invocation is already running", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "sync failed", err)
		return
	}
	respondJSON(w, http.StatusOK, models.SyncTriggerResponse{
		Success:   true,
		StartedAt: started,
		Results:   results,
	})
}

// StopSession handles POST /api/v1/sessions/{key}/stop: marks the
// session ended in the store and, when the owning server is known,
// sends the remote stop command too.
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "missing session key", nil)
		return
	}

	if err := h.db.EndSession(r.Context(), key, time.Now().UTC()); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "no active session with that key", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to end session", err)
		return
	}

	if raw := r.URL.Query().Get("server_id"); raw != "" {
		serverID, err := pathID(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
			return
		}
		server, err := h.db.GetServer(r.Context(), serverID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load server", err)
			return
		}
		if err := h.engine.Client(server).StopSession(r.Context(), key); err != nil {
			// Store already updated; the remote refusing the command
			// is reported but not rolled back
			logging.Warn().Err(err).Str("session_key", key).Msg("Remote stop command failed")
			respondError(w, http.StatusBadGateway, ErrCodeUpstream, "session ended locally but remote stop failed", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"stopped": key})
}

// CreateGlobalUser handles POST /api/v1/users/global.
func (h *Handler) CreateGlobalUser(w http.ResponseWriter, r *http.Request) {
	var req models.CreateGlobalUserRequest
	if err := h.parseAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	user, err := h.db.CreateGlobalUser(r.Context(), req.Name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create global user", err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

// ListGlobalUsers handles GET /api/v1/users/global.
func (h *Handler) ListGlobalUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.ListGlobalUsers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list global users", err)
		return
	}
	if users == nil {
		users = []models.GlobalUser{}
	}
	respondJSON(w, http.StatusOK, users)
}

// DeleteGlobalUser handles DELETE /api/v1/users/global/{id}. Linked
// accounts are unlinked, never deleted.
func (h *Handler) DeleteGlobalUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if err := h.db.DeleteGlobalUser(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "global user not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to delete global user", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

// LinkGlobalUser handles POST /api/v1/users/global/{id}/link.
func (h *Handler) LinkGlobalUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	var req models.LinkGlobalUserRequest
	if err := h.parseAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	if err := h.db.LinkServerUser(r.Context(), req.ServerUserID, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "server user not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to link user", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"global_user_id": id, "server_user_id": req.ServerUserID})
}

// UnlinkGlobalUser handles POST /api/v1/users/global/{id}/unlink.
func (h *Handler) UnlinkGlobalUser(w http.ResponseWriter, r *http.Request) {
	if _, err := pathID(chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	var req models.LinkGlobalUserRequest
	if err := h.parseAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	if err := h.db.UnlinkServerUser(r.Context(), req.ServerUserID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "server user not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to unlink user", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"server_user_id": req.ServerUserID})
}

// ListServerUsers handles GET /api/v1/servers/{id}/users.
func (h *Handler) ListServerUsers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	users, err := h.db.ListServerUsers(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list users", err)
		return
	}
	if users == nil {
		users = []models.ServerUser{}
	}
	respondJSON(w, http.StatusOK, users)
}

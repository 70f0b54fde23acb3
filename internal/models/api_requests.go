// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package models

import "time"

// CreateServerRequest adds a new Emby server for tracking.
type CreateServerRequest struct {
	Name   string `json:"name" validate:"required,min=1,max=100"`
	URL    string `json:"url" validate:"required,url"`
	Port   int    `json:"port" validate:"omitempty,min=1,max=65535"`
	APIKey string `json:"api_key" validate:"required,min=8"`
	Active *bool  `json:"active"` // defaults to true
}

// UpdateServerRequest mutates a configured server's credentials or URL.
type UpdateServerRequest struct {
	Name   string `json:"name" validate:"omitempty,min=1,max=100"`
	URL    string `json:"url" validate:"omitempty,url"`
	Port   int    `json:"port" validate:"omitempty,min=1,max=65535"`
	APIKey string `json:"api_key" validate:"omitempty,min=8"`
	Active *bool  `json:"active"`
}

// ServerTestResponse reports a connectivity test against a server.
type ServerTestResponse struct {
	Success    bool   `json:"success"`
	LatencyMs  int64  `json:"latency_ms"`
	ServerName string `json:"server_name,omitempty"`
	Version    string `json:"version,omitempty"`
	Libraries  int    `json:"libraries,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CreateGlobalUserRequest creates a cross-server identity.
type CreateGlobalUserRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// LinkGlobalUserRequest links a ServerUser to a GlobalUser identity.
type LinkGlobalUserRequest struct {
	ServerUserID int64 `json:"server_user_id" validate:"required"`
}

// SyncTriggerResponse reports the outcome of a manually triggered sync.
type SyncTriggerResponse struct {
	Success   bool               `json:"success"`
	Message   string             `json:"message,omitempty"`
	StartedAt time.Time          `json:"started_at"`
	Results   []ServerSyncResult `json:"results,omitempty"`
}

// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/dpoulsen/embywatch/internal/logging"
)

// APIResponse is the response wrapper for every endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError carries a machine-readable code and a human-readable message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for API responses
const (
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeUpstream     = "UPSTREAM_ERROR"
	ErrCodeSyncBusy     = "SYNC_ALREADY_RUNNING"
	ErrCodeInvalidInput = "VALIDATION_FAILED"
)

// respondJSON writes a success envelope with the given status.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data}); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError writes an error envelope. The underlying error is logged
// but never leaks into the response body beyond msg.
func respondError(w http.ResponseWriter, status int, code, msg string, err error) {
	if err != nil {
		logging.Warn().Err(err).Str("code", code).Int("status", status).Msg(msg)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	}); encErr != nil {
		logging.Error().Err(encErr).Msg("Failed to encode error response")
	}
}

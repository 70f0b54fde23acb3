// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

// Package models provides data models for the application.
//
// The package is organized into three groups:
//
//   - Emby API payloads (emby.go): typed value objects for the remote
//     server's JSON responses, validated at the ingestion boundary
//   - History rows (history.go): the relational entities persisted by
//     the sync engine (servers, users, play history, sessions, sync logs)
//   - Analytics results (stats.go): result shapes produced by the
//     aggregation engine and served over the API
package models

// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

// Package api serves the JSON API: aggregated statistics for an
// external UI to render, plus the admin surface (server management,
// identity linking, manual sync, session stop). Routing is chi with
// CORS and per-IP rate limiting; responses encode with goccy/go-json.
package api

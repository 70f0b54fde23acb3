// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

// Package supervisor builds the suture supervision tree that runs the
// long-lived parts of the process: the HTTP server and the scheduled
// sync loop. A crash in the sync layer restarts the sync loop without
// taking the API down, and vice versa.
package supervisor

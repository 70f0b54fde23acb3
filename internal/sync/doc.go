// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

// Package sync pulls play history from remote Emby servers into the
// local store. One invocation walks every active server sequentially
// (server, then user, then item) so that each user's high-water-mark
// read stays consistent with the writes that follow it. Overlapping
// invocations are fenced by a store-backed lease, not an in-process
// lock, so multiple instances sharing one database stay safe.
package sync

// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

/*
emby.go - Emby REST API Payload Types

Typed value objects for the Emby API responses consumed by the sync
engine. Emby returns loosely-typed JSON; these types pin down exactly
the fields the ingestion pipeline depends on, with pointers for fields
the server may omit.

API Reference: https://dev.emby.media/doc/restapi/index.html
*/

package models

import "time"

// TicksPerSecond is the Emby tick resolution (100ns ticks).
const TicksPerSecond = int64(10_000_000)

// TicksToDuration converts Emby runtime ticks to a time.Duration.
func TicksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks / TicksPerSecond * int64(time.Second))
}

// TicksToHours converts Emby runtime ticks to fractional hours.
func TicksToHours(ticks int64) float64 {
	return float64(ticks) / float64(TicksPerSecond) / 3600.0
}

// EmbyUser represents an Emby user account as returned by /Users.
type EmbyUser struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// EmbySystemInfo represents Emby server system information.
type EmbySystemInfo struct {
	ServerName      string `json:"ServerName"`
	Version         string `json:"Version"`
	ID              string `json:"Id"`
	OperatingSystem string `json:"OperatingSystem"`
}

// EmbyLibrary represents a media folder (library) on the server.
type EmbyLibrary struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	CollectionType string `json:"CollectionType"`
}

// EmbyUserData carries the per-user playback state block attached to an
// item. LastPlayedDate and LastActivityDate are both optional; the sync
// engine prefers LastPlayedDate and falls back to LastActivityDate.
type EmbyUserData struct {
	PlaybackPositionTicks int64      `json:"PlaybackPositionTicks"`
	PlayCount             int        `json:"PlayCount"`
	Played                bool       `json:"Played"`
	LastPlayedDate        *time.Time `json:"LastPlayedDate,omitempty"`
	LastActivityDate      *time.Time `json:"LastActivityDate,omitempty"`
}

// EmbyMediaStream describes one stream (video/audio/subtitle) of an item.
type EmbyMediaStream struct {
	Type       string `json:"Type"`
	Codec      string `json:"Codec"`
	Height     int    `json:"Height"`
	Width      int    `json:"Width"`
	VideoRange string `json:"VideoRange"` // "SDR", "HDR", "HDR10", "DV", ...
	BitRate    int64  `json:"BitRate"`
}

// IsHDR reports whether the stream carries a high-dynamic-range video range.
func (s *EmbyMediaStream) IsHDR() bool {
	return s.VideoRange != "" && s.VideoRange != "SDR"
}

// EmbyItem represents a media item record from /Users/{id}/Items or
// /Users/{id}/Items/Resumable.
type EmbyItem struct {
	ID                string            `json:"Id"`
	Name              string            `json:"Name"`
	Type              string            `json:"Type"` // "Movie", "Episode", ...
	SeriesName        string            `json:"SeriesName,omitempty"`
	SeasonName        string            `json:"SeasonName,omitempty"`
	IndexNumber       int               `json:"IndexNumber,omitempty"`       // episode number
	ParentIndexNumber int               `json:"ParentIndexNumber,omitempty"` // season number
	Genres            []string          `json:"Genres,omitempty"`
	ProductionYear    int               `json:"ProductionYear,omitempty"`
	RunTimeTicks      int64             `json:"RunTimeTicks,omitempty"`
	UserData          *EmbyUserData     `json:"UserData,omitempty"`
	MediaStreams      []EmbyMediaStream `json:"MediaStreams,omitempty"`
}

// EmbyItemsPage is one page of an /Items query.
type EmbyItemsPage struct {
	Items            []EmbyItem `json:"Items"`
	TotalRecordCount int        `json:"TotalRecordCount"`
}

// PrimaryVideoStream returns the first video stream with a positive
// height, or nil when the item carries no usable video stream.
func (i *EmbyItem) PrimaryVideoStream() *EmbyMediaStream {
	for idx := range i.MediaStreams {
		stream := &i.MediaStreams[idx]
		if stream.Type == "Video" && stream.Height > 0 {
			return stream
		}
	}
	return nil
}

// Resolution maps the primary video stream height to a display bucket.
// Returns "" when the item has no video stream.
func (i *EmbyItem) Resolution() string {
	stream := i.PrimaryVideoStream()
	if stream == nil {
		return ""
	}
	switch {
	case stream.Height >= 2160:
		return "4K"
	case stream.Height >= 1080:
		return "1080p"
	case stream.Height >= 720:
		return "720p"
	default:
		return "SD"
	}
}

// IsEpisode reports whether the item is a TV episode.
func (i *EmbyItem) IsEpisode() bool {
	return i.Type == "Episode"
}

// PlaybackPosition returns the user-data playback position, tolerating
// a missing user-data block.
func (i *EmbyItem) PlaybackPosition() int64 {
	if i.UserData == nil {
		return 0
	}
	return i.UserData.PlaybackPositionTicks
}

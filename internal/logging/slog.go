// Embywatch - Emby Playback History Analytics
// Copyright 2026 D. Poulsen (dpoulsen)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dpoulsen/embywatch

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// Slog returns an *slog.Logger that forwards records into the global
// zerolog logger. Libraries that speak slog (the supervisor's event
// hook) log through the same sink as everything else.
func Slog() *slog.Logger {
	return slog.New(slogBridge{})
}

// slogBridge adapts slog records onto zerolog events.
type slogBridge struct {
	fields []slog.Attr
}

func (b slogBridge) Enabled(_ context.Context, level slog.Level) bool {
	return slogToZerologLevel(level) >= zerolog.GlobalLevel()
}

func (b slogBridge) Handle(_ context.Context, record slog.Record) error {
	logger := Logger()
	event := logger.WithLevel(slogToZerologLevel(record.Level))
	for _, attr := range b.fields {
		event = appendAttr(event, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		event = appendAttr(event, attr)
		return true
	})
	event.Msg(record.Message)
	return nil
}

func (b slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(b.fields)+len(attrs))
	merged = append(merged, b.fields...)
	merged = append(merged, attrs...)
	return slogBridge{fields: merged}
}

func (b slogBridge) WithGroup(string) slog.Handler {
	// Groups are flattened; attr keys stay unique enough in practice
	return b
}

func appendAttr(event *zerolog.Event, attr slog.Attr) *zerolog.Event {
	return event.Interface(attr.Key, attr.Value.Any())
}

func slogToZerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

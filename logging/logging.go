// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging builds the [*slog.Logger] used by the simulator.
package logging

import (
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rbmk-project/wlansim/config"
)

// ParseLevel parses a debug, info, warn, or error level.
func ParseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return 0, fmt.Errorf("invalid log level: %s", value)
	}
	return level, nil
}

// nopCloser is the [io.Closer] returned when logging to a stream we do not own.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New creates a [*slog.Logger] from cfg. When the rotating file is
// disabled, we write to stderr. The returned [io.Closer] releases the
// log file, if any.
func New(cfg *config.LogConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	var (
		closer io.Closer = nopCloser{}
		writer           = stderr
	)
	if cfg.File.Enabled {
		lj := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,  // megabytes
			MaxBackups: cfg.File.MaxBackups, // number of backups
			MaxAge:     cfg.File.MaxAgeDays, // days
			Compress:   cfg.File.Compress,   // compress the backups
		}
		closer, writer = lj, lj
	}
	return slog.New(newHandler(cfg.Format, writer, level)), closer, nil
}

func newHandler(format string, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

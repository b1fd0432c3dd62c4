// Package logging builds the structured logger shared by every command.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"taxrag/config"
)

// New returns a logger writing to stderr. Verbose forces debug level.
func New(cfg config.LoggingConfig, verbose bool) *slog.Logger {
	return NewWithWriter(os.Stderr, cfg, verbose)
}

func NewWithWriter(w io.Writer, cfg config.LoggingConfig, verbose bool) *slog.Logger {
	level := ParseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package main

import (
	"io"
	"log/slog"

	"github.com/kstaniek/go-serialterm/internal/logging"
)

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogger(format, level string, w io.Writer) *slog.Logger {
	l := logging.New(format, parseLevel(level), w).With("app", "serialterm")
	logging.Set(l)
	return l
}

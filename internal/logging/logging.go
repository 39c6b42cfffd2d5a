package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// Global structured logger. Discards until configured: the console owns the
// terminal, so nothing may be written to stderr while it runs.
var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// L returns the current global logger.
func L() *slog.Logger { return logger.Load() }

// Set replaces the global logger.
func Set(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// New creates a logger with given format ("text" or "json") and level writing
// to w; a nil w discards output.
func New(format string, level slog.Leveler, w io.Writer) *slog.Logger {
	if w == nil {
		w = io.Discard
	}
	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h)
}

// OpenFile opens path for appending log records. An empty path yields a
// discarding writer and a no-op closer.
func OpenFile(path string) (io.Writer, func() error, error) {
	if path == "" {
		return io.Discard, func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, f.Close, nil
}

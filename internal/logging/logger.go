// Package logging provides structured logging for go-hls-qoe.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger. Format is "json" or "text"; level is
// "debug", "info", "warn", or "error". Verbose forces debug.
func NewLogger(format, level string, verbose bool) *slog.Logger {
	lvl := parseLevel(level)
	if verbose {
		lvl = slog.LevelDebug
	}
	// Source locations only at debug; they are noise at info and above.
	return slog.New(newHandler(os.Stderr, format, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}))
}

// NewLoggerWithWriter builds a logger over a custom writer, mainly for tests.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	return slog.New(newHandler(w, format, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
}

// NewNop returns a logger that discards everything. Used when the TUI owns
// the terminal, and in tests.
func NewNop() *slog.Logger {
	return NewLoggerWithWriter(io.Discard, "json", "error")
}

// ForSession returns a child logger carrying the player instance ID.
// Session-scoped components (binder, classifier, manager) log through this
// so events from concurrent sessions can be told apart.
func ForSession(logger *slog.Logger, instanceID int) *slog.Logger {
	return logger.With("instance_id", instanceID)
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// SetDefault installs the logger as the slog package default.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

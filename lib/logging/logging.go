// Package logging provides the structured logger used across the service.
package logging

import (
	"fmt"
	"github.com/lmittmann/tint"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel converts a textual log level to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warning", "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// NewLogger constructs a slog.Logger writing tinted output to w.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	handler := tint.NewHandler(w, &tint.Options{
		Level: level,
	})

	return slog.New(handler)
}

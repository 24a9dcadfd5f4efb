// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// New returns a JSON logger in production and a colourised text logger
// everywhere else. An empty level means Info in production and Debug
// elsewhere.
func New(w io.Writer, env, level string) *slog.Logger {
	if env == "production" {
		lvl := ParseLevel(level, slog.LevelInfo)
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      ParseLevel(level, slog.LevelDebug),
		TimeFormat: time.TimeOnly,
	}))
}

// Setup installs the logger as the slog default.
func Setup(env string) *slog.Logger {
	logger := New(os.Stdout, env, os.Getenv("LOG_LEVEL"))
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a LOG_LEVEL value to a slog level, falling back to def for
// empty or unknown values.
func ParseLevel(s string, def slog.Level) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return def
	}
}

package util

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a text logger at debug level in development and a JSON
// logger at info level elsewhere. level, when set, overrides the default
// ("debug", "info", "warn", "error").
func NewLogger(env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if env == "development" {
		opts.Level = slog.LevelDebug
	}

	var lvl slog.Level
	if level != "" && lvl.UnmarshalText([]byte(strings.TrimSpace(level))) == nil {
		opts.Level = lvl
	}

	if env == "development" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

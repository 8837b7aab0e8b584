// Package logger configures the process-wide structured logger and the
// request-scoped context helpers shared by every adapter.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/opsgate/sapguard/internal/config"
)

// New builds the service logger: JSON records on stdout, every record tagged
// with the configured service name.
func New(cfg config.Logging) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: Level(cfg.Level),
	})
	return slog.New(h).With("service", cfg.Service)
}

// Level maps a config level string onto slog.Level. Unrecognized values fall
// back to info so a bad config value never silences logging.
func Level(s string) slog.Level {
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

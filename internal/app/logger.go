package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the process logger. Production always logs JSON so the
// audit pipeline can ingest it; elsewhere LOG_FORMAT selects the handler.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg != nil && (cfg.IsProduction() || cfg.LogFormat == "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
}

package observability

import (
	"log/slog"

	"github.com/couchcryptid/noaa-ingest/internal/config"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func NewLogger(cfg *config.Config) *slog.Logger {
	return sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
}

// WithRun tags every line emitted for one CLI or scheduled run.
func WithRun(logger *slog.Logger, runID, stage string) *slog.Logger {
	return logger.With("run_id", runID, "stage", stage)
}

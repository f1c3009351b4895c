// Package app holds the wiring shared by the command-line entry points:
// configuration loading, store construction and exit codes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/couchcryptid/noaa-ingest/internal/adapter/elasticsearch"
	"github.com/couchcryptid/noaa-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/noaa-ingest/internal/adapter/objectstore"
	"github.com/couchcryptid/noaa-ingest/internal/config"
	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/couchcryptid/noaa-ingest/internal/download"
	"github.com/couchcryptid/noaa-ingest/internal/normalize"
	"github.com/couchcryptid/noaa-ingest/internal/observability"
	"github.com/couchcryptid/noaa-ingest/internal/pipeline"
	"github.com/couchcryptid/noaa-ingest/internal/sink"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitStartup  = 1
	ExitFailures = 2
)

// LoadConfig reads .env when present, then the environment.
func LoadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return config.Load()
}

// ApplyOverrides folds non-zero command-line overrides into cfg and
// revalidates it. stations narrows the catalog already selected by
// STATIONS and STATIONS_FILE.
func ApplyOverrides(cfg *config.Config, startYear, endYear int, stations string) error {
	if startYear != 0 {
		cfg.StartYear = startYear
	}
	if endYear != 0 {
		cfg.EndYear = endYear
	}
	if stations != "" {
		subset, err := cfg.Stations.Subset(config.SplitList(stations))
		if err != nil {
			return err
		}
		cfg.Stations = subset
	}
	return cfg.Validate()
}

// Selection limits loading to the configured years and stations.
func Selection(cfg *config.Config) normalize.Selection {
	return normalize.Selection{
		StartYear: cfg.StartYear,
		EndYear:   cfg.EndYear,
		Stations:  cfg.Stations.IDs(),
	}
}

// Run identifies one invocation of a stage in the logs.
type Run struct {
	ID     string
	Logger *slog.Logger
}

// NewRun creates the process logger and tags it with a fresh run id.
func NewRun(cfg *config.Config, stage string) Run {
	id := uuid.NewString()
	return Run{ID: id, Logger: observability.WithRun(observability.NewLogger(cfg), id, stage)}
}

// NewSink builds both store capabilities. Disabled stores are still
// constructed so the sink can report them.
func NewSink(cfg *config.Config, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) (*sink.Sink, error) {
	es, err := elasticsearch.New(cfg.ElasticsearchURL, logger)
	if err != nil {
		return nil, err
	}
	col, err := objectstore.New(objectstore.Config{
		Endpoint:  cfg.ColumnarEndpoint,
		AccessKey: cfg.ColumnarAccessKey,
		SecretKey: cfg.ColumnarSecretKey,
		Bucket:    cfg.ColumnarBucket,
		UseSSL:    cfg.ColumnarUseSSL,
	}, logger)
	if err != nil {
		return nil, err
	}
	return sink.New(
		sink.NewCapability(es, cfg.ElasticsearchEnabled, cfg.SinkRetryCooldown, clock, metrics, logger),
		sink.NewCapability(col, cfg.ColumnarEnabled, cfg.SinkRetryCooldown, clock, metrics, logger),
		logger,
	), nil
}

// NewNotifier returns the Kafka notifier when enabled. The close func is
// always safe to call.
func NewNotifier(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (pipeline.Notifier, func() error) {
	if !cfg.KafkaEnabled {
		return nil, func() error { return nil }
	}
	n := kafka.NewNotifier(cfg, clock, logger)
	return n, n.Close
}

// CommitterConfig maps the delivery settings.
func CommitterConfig(cfg *config.Config) pipeline.CommitterConfig {
	return pipeline.CommitterConfig{
		BatchSize:   cfg.BatchSize,
		MaxAttempts: cfg.MaxDeliveryAttempts,
	}
}

// LiveRefresh downloads the latest METAR reports and enqueues the ones
// fetched by this run. Files left over from earlier runs are not reloaded.
// A refresh fails only when no report could be fetched or the load failed.
func LiveRefresh(plan download.Plan, fetcher download.Fetcher, workers int, loader *pipeline.Loader, metrics *observability.Metrics, logger *slog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sum := download.New(domain.DatasetMETAR, plan, fetcher, workers, metrics, logger).Run(ctx)
		if sum.Total > 0 && sum.Succeeded == 0 {
			return fmt.Errorf("metar refresh: all %d reports failed", sum.Total)
		}
		if _, err := loader.LoadFiles(ctx, domain.DatasetMETAR, sum.Fetched); err != nil {
			return fmt.Errorf("metar load: %w", err)
		}
		return nil
	}
}

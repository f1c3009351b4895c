package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/noaa-ingest/internal/app"
	"github.com/couchcryptid/noaa-ingest/internal/config"
	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/couchcryptid/noaa-ingest/internal/normalize"
	"github.com/couchcryptid/noaa-ingest/internal/observability"
	"github.com/couchcryptid/noaa-ingest/internal/outbox"
	"github.com/couchcryptid/noaa-ingest/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

func main() {
	os.Exit(run())
}

func run() int {
	startYear := flag.Int("start-year", 0, "first year to load (overrides NOAA_START_YEAR)")
	endYear := flag.Int("end-year", 0, "last year to load (overrides NOAA_END_YEAR)")
	stations := flag.String("stations", "", "comma-separated station IDs (overrides STATIONS)")
	datasets := flag.String("datasets", "", "comma-separated datasets to normalize (default all)")
	drainOnly := flag.Bool("drain-only", false, "skip normalization and only deliver queued records")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return app.ExitStartup
	}
	kinds, err := applyFlags(cfg, *startYear, *endYear, *stations, *datasets)
	if err != nil {
		slog.Error("invalid flags", "error", err)
		return app.ExitStartup
	}

	r := app.NewRun(cfg, "load")
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	q, err := outbox.Open(cfg.OutboxPath, clock)
	if err != nil {
		r.Logger.Error("failed to open outbox", "error", err)
		return app.ExitStartup
	}
	defer func() {
		if err := q.Close(); err != nil {
			r.Logger.Error("outbox close error", "error", err)
		}
	}()

	s, err := app.NewSink(cfg, clock, metrics, r.Logger)
	if err != nil {
		r.Logger.Error("failed to build sink", "error", err)
		return app.ExitStartup
	}
	notifier, closeNotifier := app.NewNotifier(cfg, clock, r.Logger)
	defer func() {
		if err := closeNotifier(); err != nil {
			r.Logger.Error("kafka writer close error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ok := true
	if !*drainOnly {
		r.Logger.Info("load run started",
			"years", fmt.Sprintf("%d-%d", cfg.StartYear, cfg.EndYear),
			"stations", cfg.Stations.IDs(),
			"datasets", kinds,
		)
		loader := pipeline.NewLoader(normalize.New(metrics, r.Logger), q, s.Required(), cfg.BatchSize, r.Logger)
		loader.Restrict(app.Selection(cfg))
		summaries, err := loader.LoadAll(ctx, cfg.BasePath, kinds)
		ok = app.PrintLoads(os.Stdout, summaries)
		if err != nil {
			r.Logger.Error("normalization stopped", "error", err)
			return app.ExitFailures
		}
	}

	committer := pipeline.NewCommitter(q, s, notifier, app.CommitterConfig(cfg), r.Logger, metrics)
	report, err := committer.Drain(ctx)
	if err != nil {
		r.Logger.Error("delivery stopped", "error", err)
		return app.ExitFailures
	}
	if !app.PrintDrain(os.Stdout, report) {
		r.Logger.Warn("records left undelivered", "remaining", report.Remaining, "stores", s.States())
		ok = false
	}

	if !ok {
		return app.ExitFailures
	}
	return app.ExitOK
}

// applyFlags folds non-zero flags into cfg and returns the datasets to load.
func applyFlags(cfg *config.Config, startYear, endYear int, stations, datasets string) ([]domain.DatasetKind, error) {
	if err := app.ApplyOverrides(cfg, startYear, endYear, stations); err != nil {
		return nil, err
	}
	return domain.ParseDatasetList(datasets)
}

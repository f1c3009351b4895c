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
	"github.com/couchcryptid/noaa-ingest/internal/download"
	"github.com/couchcryptid/noaa-ingest/internal/fetch"
	"github.com/couchcryptid/noaa-ingest/internal/observability"
	"github.com/couchcryptid/noaa-ingest/internal/verify"
)

func main() {
	os.Exit(run())
}

func run() int {
	startYear := flag.Int("start-year", 0, "first year to download (overrides NOAA_START_YEAR)")
	endYear := flag.Int("end-year", 0, "last year to download (overrides NOAA_END_YEAR)")
	stations := flag.String("stations", "", "comma-separated station IDs (overrides STATIONS)")
	datasets := flag.String("datasets", "", "comma-separated datasets: gsod,isd,storm_events,metar (default all)")
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

	r := app.NewRun(cfg, "download")
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r.Logger.Info("download run started",
		"years", fmt.Sprintf("%d-%d", cfg.StartYear, cfg.EndYear),
		"stations", cfg.Stations.IDs(),
		"datasets", kinds,
	)

	fetcher := fetch.New(fetch.OptionsFromConfig(cfg), nil, metrics, r.Logger)
	summaries := download.RunAll(ctx, kinds, download.PlanFromConfig(cfg), fetcher, cfg.DownloadWorkers, metrics, r.Logger)
	ok := app.PrintDownloads(os.Stdout, summaries)

	report, err := verify.New(cfg.SizeCeiling, metrics, r.Logger).Verify(cfg.BasePath)
	if err != nil {
		r.Logger.Error("verification failed", "error", err)
		return app.ExitFailures
	}
	fmt.Print(report.String())

	if ctx.Err() != nil {
		r.Logger.Warn("download run interrupted")
		return app.ExitFailures
	}
	if !ok {
		return app.ExitFailures
	}
	return app.ExitOK
}

// applyFlags folds non-zero flags into cfg and returns the datasets to run.
func applyFlags(cfg *config.Config, startYear, endYear int, stations, datasets string) ([]domain.DatasetKind, error) {
	if err := app.ApplyOverrides(cfg, startYear, endYear, stations); err != nil {
		return nil, err
	}
	return domain.ParseDatasetList(datasets)
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/noaa-ingest/internal/adapter/httpadapter"
	"github.com/couchcryptid/noaa-ingest/internal/app"
	"github.com/couchcryptid/noaa-ingest/internal/download"
	"github.com/couchcryptid/noaa-ingest/internal/fetch"
	"github.com/couchcryptid/noaa-ingest/internal/normalize"
	"github.com/couchcryptid/noaa-ingest/internal/observability"
	"github.com/couchcryptid/noaa-ingest/internal/outbox"
	"github.com/couchcryptid/noaa-ingest/internal/pipeline"
	"github.com/couchcryptid/noaa-ingest/internal/scheduler"
	"github.com/jonboulle/clockwork"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return app.ExitStartup
	}

	r := app.NewRun(cfg, "ingestd")
	logger := r.Logger
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	q, err := outbox.Open(cfg.OutboxPath, clock)
	if err != nil {
		logger.Error("failed to open outbox", "error", err)
		return app.ExitStartup
	}
	s, err := app.NewSink(cfg, clock, metrics, logger)
	if err != nil {
		logger.Error("failed to build sink", "error", err)
		_ = q.Close()
		return app.ExitStartup
	}
	notifier, closeNotifier := app.NewNotifier(cfg, clock, logger)

	loader := pipeline.NewLoader(normalize.New(metrics, logger), q, s.Required(), cfg.BatchSize, logger)
	committer := pipeline.NewCommitter(q, s, notifier, app.CommitterConfig(cfg), logger, metrics)
	fetcher := fetch.New(fetch.OptionsFromConfig(cfg), nil, metrics, logger)
	refresh := app.LiveRefresh(download.PlanFromConfig(cfg), fetcher, cfg.DownloadWorkers, loader, metrics, logger)

	sched := scheduler.New(scheduler.Config{
		RefreshInterval: cfg.LiveRefreshInterval,
		DrainInterval:   cfg.CommitInterval,
	}, refresh, committer, q, s, clock, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.AllReady(q, committer, s), sched, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := app.ExitOK
	if err := sched.Start(ctx); err != nil {
		logger.Error("scheduler start error", "error", err)
		code = app.ExitStartup
		stop()
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := closeNotifier(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := q.Close(); err != nil {
		logger.Error("outbox close error", "error", err)
	}

	logger.Info("shutdown complete")
	return code
}

// Package scheduler runs the daemon's periodic jobs: refreshing live
// reports and draining the outbox into the stores.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/noaa-ingest/internal/adapter/httpadapter"
	"github.com/couchcryptid/noaa-ingest/internal/pipeline"
	"github.com/go-co-op/gocron"
	"github.com/jonboulle/clockwork"
)

// RefreshFunc downloads and enqueues the latest live reports.
type RefreshFunc func(ctx context.Context) error

// Drainer delivers queued records.
type Drainer interface {
	Drain(ctx context.Context) (pipeline.DrainReport, error)
}

// DepthReader reports how many records are still queued.
type DepthReader interface {
	Depth(ctx context.Context) (int, error)
}

// StoreStates reports the availability of each store by name.
type StoreStates interface {
	States() map[string]string
}

// Config holds the job intervals.
type Config struct {
	RefreshInterval time.Duration
	DrainInterval   time.Duration
}

// Scheduler owns the gocron scheduler and the outcome of the last runs.
type Scheduler struct {
	cron    *gocron.Scheduler
	cfg     Config
	refresh RefreshFunc
	drainer Drainer
	depth   DepthReader
	stores  StoreStates
	clock   clockwork.Clock
	logger  *slog.Logger

	mu           sync.Mutex
	ctx          context.Context
	lastRefresh  *time.Time
	lastDrain    *time.Time
	lastDrainErr string
}

// New creates a Scheduler. Jobs are registered by Start.
func New(cfg Config, refresh RefreshFunc, d Drainer, depth DepthReader, stores StoreStates, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    gocron.NewScheduler(time.UTC),
		cfg:     cfg,
		refresh: refresh,
		drainer: d,
		depth:   depth,
		stores:  stores,
		clock:   clock,
		logger:  logger.With("component", "scheduler"),
		ctx:     context.Background(),
	}
}

// Start registers both jobs and runs them in the background. Each job
// runs once immediately and never overlaps with itself. Jobs see ctx, so
// cancelling it aborts any in-flight run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if s.cfg.RefreshInterval > 0 && s.refresh != nil {
		if _, err := s.cron.Every(s.cfg.RefreshInterval).SingletonMode().Do(s.RunRefresh); err != nil {
			return err
		}
	} else {
		s.logger.Info("live refresh disabled")
	}
	if s.cfg.DrainInterval <= 0 {
		return errors.New("drain interval must be positive")
	}
	if _, err := s.cron.Every(s.cfg.DrainInterval).SingletonMode().Do(s.RunDrain); err != nil {
		return err
	}

	s.cron.StartAsync()
	s.logger.Info("scheduler started",
		"refresh_interval", s.cfg.RefreshInterval,
		"drain_interval", s.cfg.DrainInterval,
	)
	return nil
}

// Stop halts the scheduler. Running jobs finish once their context ends.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RunRefresh performs one live-report refresh.
func (s *Scheduler) RunRefresh() {
	ctx := s.jobContext()
	if ctx.Err() != nil {
		return
	}
	start := s.clock.Now()
	if err := s.refresh(ctx); err != nil {
		s.logger.Warn("live refresh failed", "error", err, "duration", s.clock.Since(start))
		return
	}
	now := s.clock.Now().UTC()
	s.mu.Lock()
	s.lastRefresh = &now
	s.mu.Unlock()
	s.logger.Info("live refresh complete", "duration", s.clock.Since(start))
}

// RunDrain performs one committer drain.
func (s *Scheduler) RunDrain() {
	ctx := s.jobContext()
	if ctx.Err() != nil {
		return
	}
	report, err := s.drainer.Drain(ctx)
	now := s.clock.Now().UTC()

	s.mu.Lock()
	s.lastDrain = &now
	s.lastDrainErr = ""
	if err != nil {
		s.lastDrainErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("drain failed", "error", err)
		return
	}
	if report.Committed > 0 || report.Remaining > 0 {
		s.logger.Info("drain complete", "committed", report.Committed, "remaining", report.Remaining)
	}
}

// Status implements httpadapter.StatusProvider.
func (s *Scheduler) Status(ctx context.Context) (httpadapter.Status, error) {
	depth, err := s.depth.Depth(ctx)
	if err != nil {
		return httpadapter.Status{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return httpadapter.Status{
		OutboxDepth:  depth,
		Stores:       s.stores.States(),
		LastRefresh:  s.lastRefresh,
		LastDrain:    s.lastDrain,
		LastDrainErr: s.lastDrainErr,
	}, nil
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

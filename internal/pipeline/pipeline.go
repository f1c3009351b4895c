package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/couchcryptid/noaa-ingest/internal/observability"
	"github.com/couchcryptid/noaa-ingest/internal/outbox"
	"github.com/couchcryptid/noaa-ingest/internal/sink"
	"github.com/couchcryptid/storm-data-shared/retry"
)

// Queue is the durable outbox the committer drains.
type Queue interface {
	Pending(ctx context.Context, after int64, limit int) ([]outbox.Entry, error)
	MarkDelivered(ctx context.Context, id string, delivered sink.Targets) (sink.Targets, error)
	RecordFailure(ctx context.Context, id, cause string) error
	Depth(ctx context.Context) (int, error)
}

// Deliverer writes one document to the stores it still owes.
type Deliverer interface {
	Deliver(ctx context.Context, doc domain.Document, pending sink.Targets) sink.Targets
	Available() sink.Targets
}

// Notifier announces records that reached every store.
type Notifier interface {
	Notify(ctx context.Context, docs []domain.Document) error
}

// CommitterConfig tunes a drain.
type CommitterConfig struct {
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DrainReport summarizes one drain.
type DrainReport struct {
	Committed int
	Remaining int
	Passes    int
}

// Committer moves outbox entries into the stores. An entry leaves the
// outbox only once every store it is owed to has confirmed the write.
type Committer struct {
	queue    Queue
	sink     Deliverer
	notifier Notifier
	cfg      CommitterConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool
}

// NewCommitter creates a Committer. notifier may be nil.
func NewCommitter(q Queue, d Deliverer, n Notifier, cfg CommitterConfig, logger *slog.Logger, metrics *observability.Metrics) *Committer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = 5 * time.Second
	}
	return &Committer{
		queue:    q,
		sink:     d,
		notifier: n,
		cfg:      cfg,
		logger:   logger.With("component", "committer"),
		metrics:  metrics,
	}
}

// CheckReadiness returns nil once a drain has completed.
func (c *Committer) CheckReadiness(_ context.Context) error {
	if !c.ready.Load() {
		return errors.New("committer has not completed a drain yet")
	}
	return nil
}

// Drain makes up to MaxAttempts passes over the outbox, backing off between
// passes. It stops early when nothing is left or no owed store is reachable.
// Entries still queued at the end are reported in Remaining, not as an error.
func (c *Committer) Drain(ctx context.Context) (DrainReport, error) {
	var report DrainReport
	backoff := c.cfg.InitialBackoff

	for report.Passes < c.cfg.MaxAttempts {
		report.Passes++
		committed, owed, err := c.pass(ctx)
		report.Committed += committed
		if err != nil {
			return report, err
		}
		if owed == 0 || ctx.Err() != nil {
			break
		}
		if owed&c.sink.Available() == 0 {
			c.logger.Warn("no owed store is reachable, leaving records queued", "owed", owed.String())
			break
		}
		if report.Passes == c.cfg.MaxAttempts {
			break
		}
		if !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, c.cfg.MaxBackoff)
	}

	depth, err := c.queue.Depth(context.WithoutCancel(ctx))
	if err != nil {
		return report, err
	}
	report.Remaining = depth
	c.metrics.OutboxDepth.Set(float64(depth))
	c.ready.Store(true)

	c.logger.Info("outbox drained", "committed", report.Committed, "remaining", report.Remaining, "passes", report.Passes)
	return report, nil
}

// pass walks the outbox once in batches. It returns the number of entries
// committed and the union of targets still owed.
func (c *Committer) pass(ctx context.Context) (int, sink.Targets, error) {
	var (
		after     int64
		committed int
		owed      sink.Targets
	)
	for {
		if ctx.Err() != nil {
			return committed, owed, nil
		}
		batch, err := c.queue.Pending(ctx, after, c.cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return committed, owed, nil
			}
			return committed, owed, fmt.Errorf("read outbox: %w", err)
		}
		if len(batch) == 0 {
			return committed, owed, nil
		}

		start := time.Now()
		done, rest, err := c.commitBatch(ctx, batch)
		if err != nil {
			return committed, owed, err
		}
		committed += len(done)
		owed |= rest
		after = batch[len(batch)-1].Seq

		c.metrics.CommitBatchSize.Observe(float64(len(batch)))
		c.metrics.CommitDuration.Observe(time.Since(start).Seconds())
		c.metrics.RecordsCommitted.Add(float64(len(done)))
		c.notify(ctx, done)
	}
}

func (c *Committer) commitBatch(ctx context.Context, batch []outbox.Entry) ([]domain.Document, sink.Targets, error) {
	var (
		done []domain.Document
		owed sink.Targets
	)
	// Outbox updates ignore cancellation: a confirmed write must be recorded.
	book := context.WithoutCancel(ctx)
	for _, e := range batch {
		if ctx.Err() != nil {
			break
		}
		delivered := c.sink.Deliver(ctx, e.Doc, e.Pending)
		remaining, err := c.queue.MarkDelivered(book, e.Doc.ID, delivered)
		if err != nil {
			return done, owed, fmt.Errorf("update outbox: %w", err)
		}
		if remaining == 0 {
			done = append(done, e.Doc)
			continue
		}
		owed |= remaining
		if err := c.queue.RecordFailure(book, e.Doc.ID, "undelivered: "+remaining.String()); err != nil {
			return done, owed, fmt.Errorf("update outbox: %w", err)
		}
	}
	return done, owed, nil
}

func (c *Committer) notify(ctx context.Context, docs []domain.Document) {
	if c.notifier == nil || len(docs) == 0 {
		return
	}
	if err := c.notifier.Notify(ctx, docs); err != nil {
		c.metrics.NotificationErrors.Inc()
		c.logger.Warn("commit notification failed", "error", err, "records", len(docs))
	}
}

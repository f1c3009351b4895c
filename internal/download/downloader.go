// Package download expands the station catalog and year range into download
// tasks and runs them through a bounded worker pool.
package download

import (
	"context"
	"log/slog"
	"sync"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/couchcryptid/noaa-ingest/internal/observability"
	"github.com/couchcryptid/noaa-ingest/internal/worker"
	"github.com/dustin/go-humanize"
)

// Fetcher retrieves a single task. *fetch.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, task domain.DownloadTask) domain.FetchResult
}

// Summary is the outcome of one dataset download run.
type Summary struct {
	Dataset           domain.DatasetKind
	Total             int
	Succeeded         int
	Failed            int
	PostProcessFailed int
	Bytes             int64
	FailedURLs        []string
	// Fetched lists the destination paths written by this run, in
	// completion order.
	Fetched []string
}

// OK reports whether every task completed, post-processing included.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.PostProcessFailed == 0
}

// Downloader runs the tasks of one dataset.
type Downloader struct {
	kind    domain.DatasetKind
	plan    Plan
	fetcher Fetcher
	workers int
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates the downloader for one dataset.
func New(kind domain.DatasetKind, plan Plan, fetcher Fetcher, workers int, metrics *observability.Metrics, logger *slog.Logger) *Downloader {
	return &Downloader{
		kind:    kind,
		plan:    plan,
		fetcher: fetcher,
		workers: workers,
		metrics: metrics,
		logger:  logger.With("component", "downloader", "dataset", string(kind)),
	}
}

// Run fetches every task of the dataset. A failed task never stops its
// siblings; tasks not started because ctx was cancelled count as failed.
func (d *Downloader) Run(ctx context.Context) Summary {
	tasks := d.plan.Tasks(d.kind)
	sum := Summary{Dataset: d.kind, Total: len(tasks)}
	d.logger.Info("download started", "tasks", len(tasks), "workers", d.workers, "description", d.kind.Description())

	var mu sync.Mutex
	done := 0
	worker.Run(ctx, d.workers, tasks, func(ctx context.Context, task domain.DownloadTask) {
		d.metrics.DownloadsInFlight.Inc()
		res := d.fetcher.Fetch(ctx, task)
		d.metrics.DownloadsInFlight.Dec()

		var postErr error
		if res.Success {
			postErr = d.postProcess(task)
		}

		mu.Lock()
		defer mu.Unlock()
		done++
		switch {
		case !res.Success:
			sum.Failed++
			sum.FailedURLs = append(sum.FailedURLs, task.SourceURL)
			d.metrics.DownloadTasks.WithLabelValues(string(d.kind), "failure").Inc()
		case postErr != nil:
			sum.PostProcessFailed++
			sum.FailedURLs = append(sum.FailedURLs, task.SourceURL)
			d.metrics.DownloadTasks.WithLabelValues(string(d.kind), "postprocess_failure").Inc()
			d.logger.Error("post-processing failed", "path", task.DestinationPath, "error", postErr)
		default:
			sum.Succeeded++
			sum.Bytes += res.BytesWritten
			sum.Fetched = append(sum.Fetched, task.DestinationPath)
			d.metrics.DownloadTasks.WithLabelValues(string(d.kind), "success").Inc()
		}
	})

	if skipped := sum.Total - done; skipped > 0 {
		sum.Failed += skipped
		d.logger.Warn("download interrupted", "not_started", skipped, "reason", ctx.Err())
	}

	d.logger.Info("download finished",
		"total", sum.Total,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"postprocess_failed", sum.PostProcessFailed,
		"size", humanize.IBytes(uint64(sum.Bytes)),
	)
	return sum
}

func (d *Downloader) postProcess(task domain.DownloadTask) error {
	if d.kind != domain.DatasetStormEvents {
		return nil
	}
	stats, err := ExpandStormArchive(task.DestinationPath)
	if err != nil {
		return err
	}
	d.logger.Info("storm archive expanded", "path", stats.CSVPath, "kept", stats.Kept, "dropped", stats.Dropped)
	return nil
}

// RunAll downloads each dataset in turn and returns one summary per dataset.
func RunAll(ctx context.Context, kinds []domain.DatasetKind, plan Plan, fetcher Fetcher, workers int, metrics *observability.Metrics, logger *slog.Logger) []Summary {
	summaries := make([]Summary, 0, len(kinds))
	for _, kind := range kinds {
		if ctx.Err() != nil {
			break
		}
		summaries = append(summaries, New(kind, plan, fetcher, workers, metrics, logger).Run(ctx))
	}
	return summaries
}

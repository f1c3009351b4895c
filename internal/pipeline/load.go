package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/couchcryptid/noaa-ingest/internal/normalize"
	"github.com/couchcryptid/noaa-ingest/internal/sink"
)

// ErrNoTargets means no persistence store is enabled.
var ErrNoTargets = errors.New("no persistence store enabled")

// FileNormalizer maps one dataset file into records.
type FileNormalizer interface {
	NormalizeFile(kind domain.DatasetKind, path string) (normalize.Result, error)
}

// Enqueuer is the write side of the outbox.
type Enqueuer interface {
	Enqueue(ctx context.Context, docs []domain.Document, targets sink.Targets) error
}

// LoadSummary counts one dataset's load.
type LoadSummary struct {
	Dataset     domain.DatasetKind
	Files       int
	FilesFailed int
	Records     int
	Skipped     int
}

// OK reports whether every file was readable.
func (s LoadSummary) OK() bool { return s.FilesFailed == 0 }

// Loader normalizes dataset files and queues the records for delivery.
type Loader struct {
	normalizer FileNormalizer
	queue      Enqueuer
	targets    sink.Targets
	batchSize  int
	selection  normalize.Selection
	logger     *slog.Logger
}

// NewLoader creates a Loader. Records are queued as owed to targets.
func NewLoader(n FileNormalizer, q Enqueuer, targets sink.Targets, batchSize int, logger *slog.Logger) *Loader {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Loader{
		normalizer: n,
		queue:      q,
		targets:    targets,
		batchSize:  batchSize,
		logger:     logger.With("component", "loader"),
	}
}

// Restrict limits LoadDataset and LoadAll to the files inside sel.
// LoadFiles is not affected.
func (l *Loader) Restrict(sel normalize.Selection) {
	l.selection = sel
}

// LoadFiles normalizes the given files of one dataset. An unreadable file
// is counted and skipped; only an outbox failure or cancellation aborts.
func (l *Loader) LoadFiles(ctx context.Context, kind domain.DatasetKind, files []string) (LoadSummary, error) {
	summary := LoadSummary{Dataset: kind}
	if l.targets == 0 {
		return summary, ErrNoTargets
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Files++

		res, err := l.normalizer.NormalizeFile(kind, path)
		if err != nil {
			summary.FilesFailed++
			l.logger.Error("file unreadable, skipping", "dataset", string(kind), "file", path, "error", err)
			continue
		}
		summary.Skipped += res.Skipped

		if err := l.enqueue(ctx, res.Records); err != nil {
			return summary, fmt.Errorf("queue %s: %w", path, err)
		}
		summary.Records += len(res.Records)
	}

	l.logger.Info("dataset loaded", "dataset", string(kind), "files", summary.Files,
		"files_failed", summary.FilesFailed, "records", summary.Records, "skipped", summary.Skipped)
	return summary, nil
}

// LoadDataset loads every selected file of kind under basePath.
func (l *Loader) LoadDataset(ctx context.Context, basePath string, kind domain.DatasetKind) (LoadSummary, error) {
	all, err := normalize.Files(basePath, kind)
	if err != nil {
		return LoadSummary{Dataset: kind}, err
	}
	files := l.selection.Filter(kind, all)
	if excluded := len(all) - len(files); excluded > 0 {
		l.logger.Info("files outside selection", "dataset", string(kind), "excluded", excluded)
	}
	if len(files) == 0 {
		l.logger.Warn("no files to load", "dataset", string(kind), "base_path", basePath)
	}
	return l.LoadFiles(ctx, kind, files)
}

// LoadAll loads each dataset in turn.
func (l *Loader) LoadAll(ctx context.Context, basePath string, kinds []domain.DatasetKind) ([]LoadSummary, error) {
	summaries := make([]LoadSummary, 0, len(kinds))
	for _, kind := range kinds {
		s, err := l.LoadDataset(ctx, basePath, kind)
		summaries = append(summaries, s)
		if err != nil {
			return summaries, err
		}
	}
	return summaries, nil
}

func (l *Loader) enqueue(ctx context.Context, records []domain.Record) error {
	for start := 0; start < len(records); start += l.batchSize {
		end := min(start+l.batchSize, len(records))
		docs := make([]domain.Document, 0, end-start)
		for _, r := range records[start:end] {
			docs = append(docs, r.ToDocument())
		}
		if err := l.queue.Enqueue(ctx, docs, l.targets); err != nil {
			return err
		}
	}
	return nil
}

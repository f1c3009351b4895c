// Package verify reports on-disk dataset sizes after a download run.
package verify

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/couchcryptid/noaa-ingest/internal/observability"
	"github.com/dustin/go-humanize"
)

// DatasetSize is the verification result for one dataset directory.
type DatasetSize struct {
	Dataset domain.DatasetKind
	Bytes   uint64
	Files   int
	Missing bool
}

// Report is the full verification result.
type Report struct {
	BasePath    string
	Datasets    []DatasetSize
	Total       uint64
	Ceiling     uint64
	OverCeiling bool
}

// Missing lists the datasets whose directory does not exist.
func (r Report) Missing() []domain.DatasetKind {
	var out []domain.DatasetKind
	for _, d := range r.Datasets {
		if d.Missing {
			out = append(out, d.Dataset)
		}
	}
	return out
}

// String renders the report as the text printed by the CLIs.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "data under %s\n", r.BasePath)
	for _, d := range r.Datasets {
		if d.Missing {
			fmt.Fprintf(&b, "  %-13s missing\n", d.Dataset)
			continue
		}
		fmt.Fprintf(&b, "  %-13s %10s  (%d files)\n", d.Dataset, humanize.IBytes(d.Bytes), d.Files)
	}
	fmt.Fprintf(&b, "  %-13s %10s\n", "total", humanize.IBytes(r.Total))
	if r.OverCeiling {
		fmt.Fprintf(&b, "WARNING: total exceeds the %s ceiling\n", humanize.IBytes(r.Ceiling))
	}
	return b.String()
}

// Verifier sums dataset sizes under a base path.
type Verifier struct {
	ceiling uint64
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a Verifier with the given size ceiling in bytes.
func New(ceiling uint64, metrics *observability.Metrics, logger *slog.Logger) *Verifier {
	return &Verifier{ceiling: ceiling, metrics: metrics, logger: logger.With("component", "verifier")}
}

// Verify walks each dataset directory under basePath. Exceeding the ceiling
// is logged as a warning and never treated as an error; the returned error
// is reserved for a base path that cannot be read at all.
func (v *Verifier) Verify(basePath string) (Report, error) {
	report := Report{BasePath: basePath, Ceiling: v.ceiling}

	if _, err := os.Stat(basePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return report, fmt.Errorf("stat base path: %w", err)
	}

	for _, kind := range domain.AllDatasets {
		size, err := datasetSize(filepath.Join(basePath, string(kind)))
		if err != nil {
			return report, fmt.Errorf("verify %s: %w", kind, err)
		}
		size.Dataset = kind
		report.Datasets = append(report.Datasets, size)

		if size.Missing {
			v.logger.Warn("dataset directory missing", "dataset", string(kind))
			continue
		}
		report.Total += size.Bytes
		v.metrics.DataSizeBytes.WithLabelValues(string(kind)).Set(float64(size.Bytes))
		v.logger.Info("dataset size", "dataset", string(kind), "bytes", size.Bytes,
			"size", humanize.IBytes(size.Bytes), "files", size.Files)
	}

	report.OverCeiling = report.Total > v.ceiling
	if report.OverCeiling {
		v.metrics.DataOverCeiling.Set(1)
		v.logger.Warn("total data size exceeds ceiling",
			"total", humanize.IBytes(report.Total), "ceiling", humanize.IBytes(v.ceiling))
	} else {
		v.metrics.DataOverCeiling.Set(0)
	}
	return report, nil
}

func datasetSize(dir string) (DatasetSize, error) {
	var size DatasetSize
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		size.Missing = true
		return size, nil
	}
	if err != nil {
		return size, err
	}
	if !info.IsDir() {
		size.Missing = true
		return size, nil
	}

	err = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		size.Bytes += uint64(fi.Size())
		size.Files++
		return nil
	})
	return size, err
}

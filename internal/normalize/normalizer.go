// Package normalize maps raw NOAA rows into canonical records. One mapper
// exists per source schema; a row that fails to decode is logged and skipped
// and never stops the rest of its file.
package normalize

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/couchcryptid/noaa-ingest/internal/observability"
)

// Result is the outcome of normalizing one file.
type Result struct {
	Records []domain.Record
	Skipped int
}

// Normalizer reads dataset files and maps every row.
type Normalizer struct {
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a Normalizer.
func New(metrics *observability.Metrics, logger *slog.Logger) *Normalizer {
	return &Normalizer{metrics: metrics, logger: logger.With("component", "normalizer")}
}

// Files lists the normalizable files of one dataset under basePath, in
// lexical order. A missing dataset directory yields no files.
func Files(basePath string, kind domain.DatasetKind) ([]string, error) {
	root := filepath.Join(basePath, string(kind))
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || !wanted(kind, d.Name()) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s files: %w", kind, err)
	}
	return files, nil
}

func wanted(kind domain.DatasetKind, name string) bool {
	switch kind {
	case domain.DatasetGSOD, domain.DatasetISD:
		return strings.HasSuffix(name, ".csv")
	case domain.DatasetStormEvents:
		// Only the details report maps to WeatherEvent.
		return strings.HasPrefix(name, "StormEvents_details") && strings.HasSuffix(name, ".csv")
	case domain.DatasetMETAR:
		return strings.HasSuffix(strings.ToLower(name), ".txt")
	default:
		return false
	}
}

// NormalizeFile maps every row of one file. The error is reserved for a
// file that cannot be read at all; bad rows are counted in Result.Skipped.
func (n *Normalizer) NormalizeFile(kind domain.DatasetKind, path string) (Result, error) {
	var (
		res Result
		err error
	)
	if kind == domain.DatasetMETAR {
		res, err = n.liveReport(path)
	} else {
		res, err = n.csvFile(kind, path)
	}
	if err != nil {
		return res, err
	}

	n.metrics.RowsNormalized.WithLabelValues(string(kind)).Add(float64(len(res.Records)))
	n.metrics.RowsSkipped.WithLabelValues(string(kind)).Add(float64(res.Skipped))
	n.logger.Info("file normalized", "dataset", string(kind), "file", path,
		"records", len(res.Records), "skipped", res.Skipped)
	return res, nil
}

func (n *Normalizer) csvFile(kind domain.DatasetKind, path string) (Result, error) {
	var res Result

	f, err := os.Open(path)
	if err != nil {
		return res, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("read header of %s: %w", path, err)
	}
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		header[i] = strings.ToUpper(strings.TrimSpace(h))
	}

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rc := RowContext{File: path}
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				rc.Line = pe.Line
			}
			n.skip(&res, kind, rc, err)
			continue
		}
		line, _ := cr.FieldPos(0)
		rc := RowContext{File: path, Line: line}

		row := make(Row, len(header))
		for i, h := range header {
			if i < len(fields) {
				row[h] = fields[i]
			}
		}

		rec, err := mapRow(kind, row)
		if err != nil {
			n.skip(&res, kind, rc, err)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func (n *Normalizer) skip(res *Result, kind domain.DatasetKind, rc RowContext, err error) {
	res.Skipped++
	n.logger.Warn("row skipped", "dataset", string(kind), "at", rc.String(), "error", err)
}

// liveReport maps one METAR file. The capture time is the file's
// modification time, so reloading an unchanged file yields the same key.
func (n *Normalizer) liveReport(path string) (Result, error) {
	var res Result
	info, err := os.Stat(path)
	if err != nil {
		return res, fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", path, err)
	}
	station := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	rep, err := NewLiveReport(station, string(data), info.ModTime().UTC())
	if err != nil {
		n.skip(&res, domain.DatasetMETAR, RowContext{File: path, Line: 1}, err)
		return res, nil
	}
	res.Records = append(res.Records, rep)
	return res, nil
}

func mapRow(kind domain.DatasetKind, row Row) (domain.Record, error) {
	switch kind {
	case domain.DatasetGSOD:
		return MapGSOD(row)
	case domain.DatasetISD:
		return MapISD(row)
	case domain.DatasetStormEvents:
		return MapStormEvent(row)
	default:
		return nil, fmt.Errorf("no row mapper for dataset %q", kind)
	}
}

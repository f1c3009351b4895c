package normalize

import (
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
)

// Selection narrows a dataset tree to a year range and a station list. Zero
// years and an empty station list select everything. A file whose year or
// station cannot be read from its path is kept.
type Selection struct {
	StartYear int
	EndYear   int
	Stations  []string
}

// Filter returns the files of kind inside the selection, in input order.
func (s Selection) Filter(kind domain.DatasetKind, files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if s.keep(kind, f) {
			out = append(out, f)
		}
	}
	return out
}

func (s Selection) keep(kind domain.DatasetKind, path string) bool {
	name := filepath.Base(path)
	switch kind {
	case domain.DatasetGSOD, domain.DatasetISD:
		// <kind>/<year>/<station>-<year>.csv
		if year, err := strconv.Atoi(filepath.Base(filepath.Dir(path))); err == nil && !s.inRange(year) {
			return false
		}
		return s.hasStation(func(id string) bool { return strings.HasPrefix(name, id+"-") })
	case domain.DatasetStormEvents:
		if year, ok := stormYear(name); ok {
			return s.inRange(year)
		}
		return true
	case domain.DatasetMETAR:
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		return s.hasStation(func(id string) bool {
			prefix, _, _ := strings.Cut(id, "-")
			return strings.EqualFold(prefix, stem)
		})
	default:
		return true
	}
}

func (s Selection) inRange(year int) bool {
	return (s.StartYear == 0 || year >= s.StartYear) && (s.EndYear == 0 || year <= s.EndYear)
}

func (s Selection) hasStation(match func(id string) bool) bool {
	return len(s.Stations) == 0 || slices.ContainsFunc(s.Stations, match)
}

// stormYear reads the data year from a Storm Events file name, either
// "..._v1.0_2023.csv" or the published "..._v1.0_d2023_c20240116.csv".
func stormYear(name string) (int, bool) {
	_, rest, ok := strings.Cut(name, "_v1.0_")
	if !ok {
		return 0, false
	}
	rest = strings.TrimPrefix(rest, "d")
	if end := strings.IndexAny(rest, "_."); end >= 0 {
		rest = rest[:end]
	}
	year, err := strconv.Atoi(rest)
	return year, err == nil
}

// Command genmock writes a small synthetic dataset tree in the layout the
// downloaders produce, so the load pipeline can be exercised offline. It
// normalizes what it wrote with the real normalizer to confirm every file
// maps to records.
//
// Usage:
//
//	go run ./cmd/genmock -base data/mock -start-year 2022 -end-year 2023
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/couchcryptid/noaa-ingest/internal/download"
	"github.com/couchcryptid/noaa-ingest/internal/normalize"
	"github.com/couchcryptid/noaa-ingest/internal/observability"
)

// captureTime is the modification time of every generated live report, so
// repeated runs produce the same records.
var captureTime = time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	base := flag.String("base", "data/mock", "directory to write the dataset tree into")
	startYear := flag.Int("start-year", 2022, "first year to generate")
	endYear := flag.Int("end-year", 2023, "last year to generate")
	stations := flag.Int("stations", 2, "number of catalog stations to use")
	days := flag.Int("days", 14, "daily rows per station-year")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *startYear > *endYear {
		return fmt.Errorf("start year %d is after end year %d", *startYear, *endYear)
	}
	catalog := domain.DefaultCatalog()
	if *stations < 1 || *stations > len(catalog) {
		return fmt.Errorf("-stations must be 1-%d", len(catalog))
	}

	g := generator{
		plan: download.Plan{
			BasePath:  *base,
			StartYear: *startYear,
			EndYear:   *endYear,
			Stations:  catalog[:*stations],
		},
		days: *days,
		rng:  rand.New(rand.NewPCG(*seed, *seed)),
	}
	if err := g.writeAll(); err != nil {
		return err
	}

	got, err := check(*base)
	if err != nil {
		return err
	}
	for _, kind := range domain.AllDatasets {
		c := got[kind]
		log.Printf("%-13s %d records, %d rows skipped", kind, c.records, c.skipped)
	}
	log.Printf("wrote sample data under %s", *base)
	return nil
}

type generator struct {
	plan download.Plan
	days int
	rng  *rand.Rand
}

func (g generator) writeAll() error {
	for _, task := range g.plan.Tasks(domain.DatasetGSOD) {
		if err := writeCSV(task.DestinationPath, g.gsodRows(task.StationID, task.Year)); err != nil {
			return err
		}
	}
	for _, task := range g.plan.Tasks(domain.DatasetISD) {
		if err := writeCSV(task.DestinationPath, g.isdRows(task.StationID, task.Year)); err != nil {
			return err
		}
	}
	for year := g.plan.StartYear; year <= g.plan.EndYear; year++ {
		name := fmt.Sprintf("StormEvents_details-ftp_v1.0_%d.csv", year)
		path := filepath.Join(g.plan.DatasetDir(domain.DatasetStormEvents), name)
		if err := writeCSV(path, g.stormRows(year)); err != nil {
			return err
		}
	}
	for _, task := range g.plan.Tasks(domain.DatasetMETAR) {
		if err := writeFile(task.DestinationPath, []byte(g.metar())); err != nil {
			return err
		}
		if err := os.Chtimes(task.DestinationPath, captureTime, captureTime); err != nil {
			return err
		}
	}
	return nil
}

func (g generator) gsodRows(station string, year int) [][]string {
	rows := [][]string{{"STATION", "DATE", "TEMP", "MAX", "MIN", "PRCP", "WDSP", "WDIR"}}
	for d := range g.days {
		day := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d*26)
		temp := 40 + g.rng.Float64()*40
		rows = append(rows, []string{
			station,
			day.Format("20060102"),
			ftoa(temp),
			ftoa(temp + 5 + g.rng.Float64()*5),
			ftoa(temp - 5 - g.rng.Float64()*5),
			ftoa(g.rng.Float64()*0.8) + "G",
			ftoa(2 + g.rng.Float64()*12),
			strconv.Itoa(g.rng.IntN(36) * 10),
		})
	}
	return rows
}

func (g generator) isdRows(station string, year int) [][]string {
	rows := [][]string{{"STATION", "DATE", "TMP", "SLP", "WND", "RH"}}
	for d := range g.days {
		at := time.Date(year, time.January, 1, 6*(d%4), 0, 0, 0, time.UTC).AddDate(0, 0, d*26)
		rows = append(rows, []string{
			station,
			at.Format("2006-01-02T15:04:05"),
			fmt.Sprintf("%+05d,1", g.rng.IntN(300)-50),
			fmt.Sprintf("%05d,1", 9950+g.rng.IntN(400)),
			fmt.Sprintf("%03d,1,N,%04d,1", g.rng.IntN(36)*10, g.rng.IntN(150)),
			strconv.Itoa(40 + g.rng.IntN(60)),
		})
	}
	return rows
}

var stormTypes = []struct {
	kind, state, county string
}{
	{"Hail", "TEXAS", "TRAVIS"},
	{"Tornado", "OKLAHOMA", "CLEVELAND"},
	{"Thunderstorm Wind", "KANSAS", "SEDGWICK"},
	{"Flash Flood", "MISSOURI", "GREENE"},
}

var damages = []string{"0.00K", "2.5K", "120K", "1.2M", "0.5B", ""}

func (g generator) stormRows(year int) [][]string {
	rows := [][]string{{"EVENT_ID", "EVENT_TYPE", "BEGIN_DATE_TIME", "STATE", "CZ_NAME",
		"DAMAGE_PROPERTY", "INJURIES_DIRECT", "DEATHS_DIRECT", "EVENT_NARRATIVE"}}
	for i := range g.days {
		st := stormTypes[g.rng.IntN(len(stormTypes))]
		at := time.Date(year, time.March, 1, 12+g.rng.IntN(10), 0, 0, 0, time.UTC).AddDate(0, 0, i*15)
		rows = append(rows, []string{
			strconv.Itoa(year*10000 + i),
			st.kind,
			at.Format("2006-01-02 15:04:05"),
			st.state,
			st.county,
			damages[g.rng.IntN(len(damages))],
			strconv.Itoa(g.rng.IntN(3)),
			"0",
			st.kind + " reported near " + st.county,
		})
	}
	return rows
}

func (g generator) metar() string {
	return fmt.Sprintf("%s\nLFPO %sZ %03d%02dKT CAVOK %02d/%02d Q%04d\n",
		captureTime.Format("2006/01/02 15:04"),
		captureTime.Format("021504"),
		g.rng.IntN(36)*10, 3+g.rng.IntN(20),
		5+g.rng.IntN(20), g.rng.IntN(5),
		1000+g.rng.IntN(30),
	)
}

type counts struct{ records, skipped int }

// check runs the real normalizer over the tree.
func check(base string) (map[domain.DatasetKind]counts, error) {
	n := normalize.New(observability.NewMetricsForTesting(), slog.New(slog.DiscardHandler))
	out := make(map[domain.DatasetKind]counts, len(domain.AllDatasets))
	for _, kind := range domain.AllDatasets {
		files, err := normalize.Files(base, kind)
		if err != nil {
			return nil, err
		}
		var c counts
		for _, f := range files {
			res, err := n.NormalizeFile(kind, f)
			if err != nil {
				return nil, err
			}
			c.records += len(res.Records)
			c.skipped += res.Skipped
		}
		out[kind] = c
	}
	return out, nil
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', 1, 64) }

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/noaa-ingest/internal/app"
	"github.com/couchcryptid/noaa-ingest/internal/observability"
	"github.com/couchcryptid/noaa-ingest/internal/verify"
)

func main() {
	base := flag.String("base", "", "data directory to verify (overrides DATA_BASE_PATH)")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(app.ExitStartup)
	}
	if *base != "" {
		cfg.BasePath = *base
	}

	r := app.NewRun(cfg, "verify")
	report, err := verify.New(cfg.SizeCeiling, observability.NewMetrics(), r.Logger).Verify(cfg.BasePath)
	if err != nil {
		r.Logger.Error("verification failed", "error", err)
		os.Exit(app.ExitFailures)
	}
	fmt.Print(report.String())

	if missing := report.Missing(); len(missing) > 0 {
		r.Logger.Warn("datasets missing", "datasets", missing)
		os.Exit(app.ExitFailures)
	}
}

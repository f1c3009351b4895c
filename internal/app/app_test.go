package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/noaa-ingest/internal/config"
	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/couchcryptid/noaa-ingest/internal/download"
	"github.com/couchcryptid/noaa-ingest/internal/normalize"
	"github.com/couchcryptid/noaa-ingest/internal/observability"
	"github.com/couchcryptid/noaa-ingest/internal/outbox"
	"github.com/couchcryptid/noaa-ingest/internal/pipeline"
	"github.com/couchcryptid/noaa-ingest/internal/sink"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewSink_TargetsFollowEnabledStores(t *testing.T) {
	cfg := &config.Config{
		ElasticsearchEnabled: true,
		ElasticsearchURL:     "http://127.0.0.1:1",
		ColumnarEnabled:      false,
		ColumnarEndpoint:     "127.0.0.1:1",
		ColumnarBucket:       "noaa-weather",
		SinkRetryCooldown:    time.Minute,
	}

	s, err := NewSink(cfg, clockwork.NewFakeClock(), observability.NewMetricsForTesting(), discard())
	require.NoError(t, err)

	assert.Equal(t, sink.TargetDocument, s.Required())
	assert.Equal(t, "disabled", s.States()["columnar"])
	assert.Equal(t, "unknown", s.States()["elasticsearch"])
}

func TestNewNotifier_DisabledIsNil(t *testing.T) {
	n, closeFn := NewNotifier(&config.Config{}, clockwork.NewFakeClock(), discard())
	assert.Nil(t, n)
	assert.NoError(t, closeFn())
}

func TestCommitterConfig(t *testing.T) {
	cc := CommitterConfig(&config.Config{BatchSize: 25, MaxDeliveryAttempts: 3})
	assert.Equal(t, 25, cc.BatchSize)
	assert.Equal(t, 3, cc.MaxAttempts)
}

func TestLoadConfig_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("NOAA_START_YEAR=2021\nNOAA_END_YEAR=2022\n"), 0o644))
	t.Chdir(dir)
	for _, k := range []string{"NOAA_START_YEAR", "NOAA_END_YEAR"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2021, cfg.StartYear)
	assert.Equal(t, 2022, cfg.EndYear)
}

// fakeFetcher writes body for every task whose station is not in fail.
type fakeFetcher struct {
	body string
	fail map[string]bool
}

func (f fakeFetcher) Fetch(_ context.Context, task domain.DownloadTask) domain.FetchResult {
	if f.body == "" || f.fail[task.StationID] {
		return domain.FetchResult{Task: task, Err: errors.New("404")}
	}
	if err := os.MkdirAll(filepath.Dir(task.DestinationPath), 0o755); err != nil {
		return domain.FetchResult{Task: task, Err: err}
	}
	if err := os.WriteFile(task.DestinationPath, []byte(f.body), 0o644); err != nil {
		return domain.FetchResult{Task: task, Err: err}
	}
	return domain.FetchResult{Task: task, Success: true, BytesWritten: int64(len(f.body))}
}

const metarBody = "2024/03/09 10:00\nLFPO 091000Z 22012KT CAVOK 12/05 Q1018\n"

func newRefresh(t *testing.T, f download.Fetcher, stations domain.Catalog) (func(context.Context) error, *outbox.Outbox, download.Plan) {
	t.Helper()
	q, err := outbox.Open(":memory:", clockwork.NewFakeClockAt(time.Date(2024, 3, 9, 10, 5, 0, 0, time.UTC)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	metrics := observability.NewMetricsForTesting()
	plan := download.Plan{
		BasePath:     t.TempDir(),
		Stations:     stations,
		METARBaseURL: "http://metar.test/stations",
	}
	loader := pipeline.NewLoader(normalize.New(metrics, discard()), q, sink.AllTargets, 10, discard())
	return LiveRefresh(plan, f, 1, loader, metrics, discard()), q, plan
}

var orly = domain.Catalog{{ID: "071560-99999", Name: "Paris-Orly"}}

func TestLiveRefresh_QueuesReports(t *testing.T) {
	refresh, q, _ := newRefresh(t, fakeFetcher{body: metarBody}, orly)

	require.NoError(t, refresh(context.Background()))
	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestLiveRefresh_NothingFetched(t *testing.T) {
	refresh, q, _ := newRefresh(t, fakeFetcher{}, orly)

	err := refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 1 reports failed")
	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestLiveRefresh_IgnoresReportsFromEarlierRuns(t *testing.T) {
	stations := domain.Catalog{{ID: "071560-99999", Name: "Paris-Orly"}, {ID: "076450-99999", Name: "Lyon"}}
	refresh, q, plan := newRefresh(t, fakeFetcher{body: metarBody, fail: map[string]bool{"076450": true}}, stations)

	stale := filepath.Join(plan.DatasetDir(domain.DatasetMETAR), "076450.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("2024/03/08 06:00\nLFLL 080600Z 18005KT 9999 08/04 Q1012\n"), 0o644))
	old := time.Date(2024, 3, 8, 6, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(stale, old, old))

	require.NoError(t, refresh(context.Background()))

	entries, err := q.Pending(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "071560", entries[0].Doc.Fields["station_id"])
}

func TestApplyOverrides(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	require.NoError(t, ApplyOverrides(cfg, 2020, 2021, "071560,074810-99999"))
	assert.Equal(t, 2020, cfg.StartYear)
	assert.Equal(t, 2021, cfg.EndYear)
	assert.Equal(t, []string{"071560-99999", "074810-99999"}, cfg.Stations.IDs())

	assert.Equal(t, normalize.Selection{
		StartYear: 2020,
		EndYear:   2021,
		Stations:  []string{"071560-99999", "074810-99999"},
	}, Selection(cfg))
}

func TestApplyOverrides_Invalid(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Error(t, ApplyOverrides(cfg, 2023, 2019, ""), "inverted year range")

	cfg, err = config.Load()
	require.NoError(t, err)
	assert.Error(t, ApplyOverrides(cfg, 0, 0, "999999"), "unknown station")
}

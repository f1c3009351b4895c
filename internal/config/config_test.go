package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gib = 1 << 30

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/raw", cfg.BasePath)
	assert.Equal(t, 2019, cfg.StartYear)
	assert.Equal(t, 2023, cfg.EndYear)
	assert.Equal(t, domain.DefaultCatalog(), cfg.Stations)
	assert.Equal(t, DefaultGSODBaseURL, cfg.GSODBaseURL)
	assert.Equal(t, DefaultISDBaseURL, cfg.ISDBaseURL)
	assert.Equal(t, DefaultStormEventsBaseURL, cfg.StormEventsBaseURL)
	assert.Equal(t, DefaultMETARBaseURL, cfg.METARBaseURL)
	assert.Equal(t, uint64(10*gib), cfg.SizeCeiling)
	assert.Equal(t, 4, cfg.DownloadWorkers)
	assert.Equal(t, 5*time.Minute, cfg.FetchTimeout)
	assert.Equal(t, 3, cfg.FetchMaxRetries)
	assert.Equal(t, time.Second, cfg.FetchInitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.FetchMaxBackoff)
	assert.Equal(t, 2.0, cfg.FetchRateLimit)
	assert.True(t, cfg.ElasticsearchEnabled)
	assert.Equal(t, "http://localhost:9200", cfg.ElasticsearchURL)
	assert.True(t, cfg.ColumnarEnabled)
	assert.Equal(t, "localhost:9000", cfg.ColumnarEndpoint)
	assert.Equal(t, "noaa-weather", cfg.ColumnarBucket)
	assert.False(t, cfg.ColumnarUseSSL)
	assert.Equal(t, "data/outbox.db", cfg.OutboxPath)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.SinkRetryCooldown)
	assert.Equal(t, 5, cfg.MaxDeliveryAttempts)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "weather-records-committed", cfg.KafkaTopic)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 30*time.Minute, cfg.LiveRefreshInterval)
	assert.Equal(t, time.Minute, cfg.CommitInterval)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("DATA_BASE_PATH", "/tmp/noaa")
	t.Setenv("NOAA_START_YEAR", "2021")
	t.Setenv("NOAA_END_YEAR", "2021")
	t.Setenv("STATIONS", "076450-99999, 074810")
	t.Setenv("GSOD_BASE_URL", "http://mirror.local/gsod/")
	t.Setenv("DATA_SIZE_CEILING", "2 GB")
	t.Setenv("DOWNLOAD_WORKERS", "8")
	t.Setenv("FETCH_TIMEOUT", "30s")
	t.Setenv("FETCH_RATE_LIMIT", "0.5")
	t.Setenv("ELASTICSEARCH_ENABLED", "false")
	t.Setenv("COLUMNAR_USE_SSL", "true")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("BATCH_SIZE", "200")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/noaa", cfg.BasePath)
	assert.Equal(t, 2021, cfg.StartYear)
	assert.Equal(t, 2021, cfg.EndYear)
	assert.Equal(t, []string{"076450-99999", "074810-99999"}, cfg.Stations.IDs())
	assert.Equal(t, "http://mirror.local/gsod", cfg.GSODBaseURL)
	assert.Equal(t, uint64(2_000_000_000), cfg.SizeCeiling)
	assert.Equal(t, 8, cfg.DownloadWorkers)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 0.5, cfg.FetchRateLimit)
	assert.False(t, cfg.ElasticsearchEnabled)
	assert.True(t, cfg.ColumnarUseSSL)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 200, cfg.BatchSize)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value, wantErr string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration", "SHUTDOWN_TIMEOUT"},
		{"BATCH_SIZE", "0", "BATCH_SIZE"},
		{"NOAA_START_YEAR", "abc", "NOAA_START_YEAR"},
		{"NOAA_START_YEAR", "2030", "NOAA_START_YEAR"},
		{"DOWNLOAD_WORKERS", "9", "DOWNLOAD_WORKERS"},
		{"DOWNLOAD_WORKERS", "0", "DOWNLOAD_WORKERS"},
		{"FETCH_TIMEOUT", "-1s", "FETCH_TIMEOUT"},
		{"FETCH_MAX_RETRIES", "-1", "FETCH_MAX_RETRIES"},
		{"FETCH_INITIAL_BACKOFF", "1m", "FETCH_INITIAL_BACKOFF"},
		{"FETCH_RATE_LIMIT", "0", "FETCH_RATE_LIMIT"},
		{"DATA_SIZE_CEILING", "lots", "DATA_SIZE_CEILING"},
		{"ELASTICSEARCH_ENABLED", "maybe", "ELASTICSEARCH_ENABLED"},
		{"MAX_DELIVERY_ATTEMPTS", "0", "MAX_DELIVERY_ATTEMPTS"},
		{"STATIONS", "000000-00000", "not in the catalog"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_KafkaEnabledWithoutBrokers(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", " , ")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoad_NoStoreEnabled(t *testing.T) {
	t.Setenv("ELASTICSEARCH_ENABLED", "false")
	t.Setenv("COLUMNAR_ENABLED", "false")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one")
}

func TestLoad_StationsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`stations:
  - id: "725030-14732"
    name: "New York LaGuardia"
  - id: "722950-23174"
    name: "Los Angeles Intl"
`), 0o600))
	t.Setenv("STATIONS_FILE", path)
	t.Setenv("STATIONS", "722950")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Stations, 1)
	assert.Equal(t, "Los Angeles Intl", cfg.Stations[0].Name)
}

func TestLoadCatalogFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadCatalogFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("stations: [oops"), 0o600))
	_, err = LoadCatalogFile(bad)
	require.Error(t, err)

	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte("stations:\n  - id: a\n  - id: a\n"), 0o600))
	_, err = LoadCatalogFile(dup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

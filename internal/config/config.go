package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Default archive locations.
const (
	DefaultGSODBaseURL        = "https://www.ncei.noaa.gov/data/global-summary-of-the-day/access"
	DefaultISDBaseURL         = "https://www.ncei.noaa.gov/data/integrated-surface-database/access"
	DefaultStormEventsBaseURL = "https://www.ncei.noaa.gov/pub/data/swdi/stormevents/csvfiles"
	DefaultMETARBaseURL       = "https://tgftp.nws.noaa.gov/data/observations/metar/stations"
)

const (
	minWorkers = 1
	maxWorkers = 8
)

// Config holds all settings, populated from environment variables. It is
// built once in main and passed to constructors.
type Config struct {
	BasePath  string
	StartYear int
	EndYear   int
	Stations  domain.Catalog

	GSODBaseURL        string
	ISDBaseURL         string
	StormEventsBaseURL string
	METARBaseURL       string

	SizeCeiling uint64

	// Fetcher settings.
	DownloadWorkers     int
	FetchTimeout        time.Duration
	FetchMaxRetries     int
	FetchInitialBackoff time.Duration
	FetchMaxBackoff     time.Duration
	FetchRateLimit      float64

	// Persistence sinks.
	ElasticsearchEnabled bool
	ElasticsearchURL     string
	ColumnarEnabled      bool
	ColumnarEndpoint     string
	ColumnarBucket       string
	ColumnarAccessKey    string
	ColumnarSecretKey    string
	ColumnarUseSSL       bool

	OutboxPath          string
	BatchSize           int
	SinkRetryCooldown   time.Duration
	MaxDeliveryAttempts int

	// Commit notifications.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	LiveRefreshInterval time.Duration
	CommitInterval      time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	startYear, err := parseInt("NOAA_START_YEAR", 2019)
	if err != nil {
		return nil, err
	}
	endYear, err := parseInt("NOAA_END_YEAR", 2023)
	if err != nil {
		return nil, err
	}

	catalog, err := loadCatalog(os.Getenv("STATIONS_FILE"), os.Getenv("STATIONS"))
	if err != nil {
		return nil, err
	}

	ceiling, err := humanize.ParseBytes(sharedcfg.EnvOrDefault("DATA_SIZE_CEILING", "10GiB"))
	if err != nil || ceiling == 0 {
		return nil, errors.New("invalid DATA_SIZE_CEILING")
	}

	workers, err := parseInt("DOWNLOAD_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	maxRetries, err := parseInt("FETCH_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := parseInt("MAX_DELIVERY_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}

	rateLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("FETCH_RATE_LIMIT", "2"), 64)
	if err != nil || rateLimit <= 0 {
		return nil, errors.New("invalid FETCH_RATE_LIMIT: must be a positive number")
	}

	cfg := &Config{
		BasePath:  sharedcfg.EnvOrDefault("DATA_BASE_PATH", "data/raw"),
		StartYear: startYear,
		EndYear:   endYear,
		Stations:  catalog,

		GSODBaseURL:        strings.TrimRight(sharedcfg.EnvOrDefault("GSOD_BASE_URL", DefaultGSODBaseURL), "/"),
		ISDBaseURL:         strings.TrimRight(sharedcfg.EnvOrDefault("ISD_BASE_URL", DefaultISDBaseURL), "/"),
		StormEventsBaseURL: strings.TrimRight(sharedcfg.EnvOrDefault("STORM_EVENTS_BASE_URL", DefaultStormEventsBaseURL), "/"),
		METARBaseURL:       strings.TrimRight(sharedcfg.EnvOrDefault("METAR_BASE_URL", DefaultMETARBaseURL), "/"),

		SizeCeiling: ceiling,

		DownloadWorkers: workers,
		FetchMaxRetries: maxRetries,
		FetchRateLimit:  rateLimit,

		ElasticsearchURL:  sharedcfg.EnvOrDefault("ELASTICSEARCH_URL", "http://localhost:9200"),
		ColumnarEndpoint:  sharedcfg.EnvOrDefault("COLUMNAR_ENDPOINT", "localhost:9000"),
		ColumnarBucket:    sharedcfg.EnvOrDefault("COLUMNAR_BUCKET", "noaa-weather"),
		ColumnarAccessKey: sharedcfg.EnvOrDefault("COLUMNAR_ACCESS_KEY", "minioadmin"),
		ColumnarSecretKey: sharedcfg.EnvOrDefault("COLUMNAR_SECRET_KEY", "minioadmin"),

		OutboxPath:          sharedcfg.EnvOrDefault("OUTBOX_PATH", "data/outbox.db"),
		BatchSize:           batchSize,
		MaxDeliveryAttempts: maxAttempts,

		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "weather-records-committed"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"FETCH_TIMEOUT", "5m", &cfg.FetchTimeout},
		{"FETCH_INITIAL_BACKOFF", "1s", &cfg.FetchInitialBackoff},
		{"FETCH_MAX_BACKOFF", "30s", &cfg.FetchMaxBackoff},
		{"SINK_RETRY_COOLDOWN", "30s", &cfg.SinkRetryCooldown},
		{"LIVE_REFRESH_INTERVAL", "30m", &cfg.LiveRefreshInterval},
		{"COMMIT_INTERVAL", "1m", &cfg.CommitInterval},
	}
	for _, d := range durations {
		v, err := parseDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	bools := []struct {
		key string
		def bool
		dst *bool
	}{
		{"ELASTICSEARCH_ENABLED", true, &cfg.ElasticsearchEnabled},
		{"COLUMNAR_ENABLED", true, &cfg.ColumnarEnabled},
		{"COLUMNAR_USE_SSL", false, &cfg.ColumnarUseSSL},
		{"KAFKA_ENABLED", false, &cfg.KafkaEnabled},
	}
	for _, b := range bools {
		v, err := parseBool(b.key, b.def)
		if err != nil {
			return nil, err
		}
		*b.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Call it again after applying
// command-line overrides.
func (c *Config) Validate() error {
	if c.BasePath == "" {
		return errors.New("DATA_BASE_PATH is required")
	}
	if c.StartYear < 1901 || c.EndYear > 2100 {
		return errors.New("NOAA_START_YEAR and NOAA_END_YEAR must be between 1901 and 2100")
	}
	if c.StartYear > c.EndYear {
		return fmt.Errorf("NOAA_START_YEAR (%d) is after NOAA_END_YEAR (%d)", c.StartYear, c.EndYear)
	}
	if c.DownloadWorkers < minWorkers || c.DownloadWorkers > maxWorkers {
		return fmt.Errorf("invalid DOWNLOAD_WORKERS: must be %d-%d", minWorkers, maxWorkers)
	}
	if c.FetchMaxRetries < 0 {
		return errors.New("invalid FETCH_MAX_RETRIES: must not be negative")
	}
	if c.FetchInitialBackoff > c.FetchMaxBackoff {
		return errors.New("FETCH_INITIAL_BACKOFF must not exceed FETCH_MAX_BACKOFF")
	}
	if c.MaxDeliveryAttempts < 1 {
		return errors.New("invalid MAX_DELIVERY_ATTEMPTS: must be at least 1")
	}
	if !c.ElasticsearchEnabled && !c.ColumnarEnabled {
		return errors.New("at least one of ELASTICSEARCH_ENABLED and COLUMNAR_ENABLED must be true")
	}
	if c.ElasticsearchEnabled && c.ElasticsearchURL == "" {
		return errors.New("ELASTICSEARCH_ENABLED is true but ELASTICSEARCH_URL is not set")
	}
	if c.ColumnarEnabled && (c.ColumnarEndpoint == "" || c.ColumnarBucket == "") {
		return errors.New("COLUMNAR_ENABLED is true but COLUMNAR_ENDPOINT or COLUMNAR_BUCKET is not set")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if c.KafkaEnabled && c.KafkaTopic == "" {
		return errors.New("KAFKA_ENABLED is true but KAFKA_TOPIC is not set")
	}
	return nil
}

// catalogFile is the YAML layout of STATIONS_FILE.
type catalogFile struct {
	Stations []domain.StationCatalogEntry `yaml:"stations"`
}

// LoadCatalogFile reads a station catalog from a YAML file.
func LoadCatalogFile(path string) (domain.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read station catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse station catalog %s: %w", path, err)
	}
	catalog := domain.Catalog(f.Stations)
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("station catalog %s: %w", path, err)
	}
	return catalog, nil
}

func loadCatalog(file, subset string) (domain.Catalog, error) {
	catalog := domain.DefaultCatalog()
	if file != "" {
		c, err := LoadCatalogFile(file)
		if err != nil {
			return nil, err
		}
		catalog = c
	}
	return catalog.Subset(SplitList(subset))
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	return sharedcfg.ParseBrokers(s)
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not an integer", key, s)
	}
	return n, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q is not a boolean", key, s)
	}
	return b, nil
}

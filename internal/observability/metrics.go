package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "noaa_ingest"

// Metrics holds the Prometheus counters, histograms, and gauges for every
// ingestion stage.
type Metrics struct {
	// Fetch metrics.
	FetchAttempts *prometheus.CounterVec   // labels: dataset
	FetchResults  *prometheus.CounterVec   // labels: dataset, outcome={success,failure}
	FetchBytes    *prometheus.CounterVec   // labels: dataset
	FetchDuration *prometheus.HistogramVec // labels: dataset

	// Download metrics.
	DownloadTasks     *prometheus.CounterVec // labels: dataset, outcome={success,failure,postprocess_failure}
	DownloadsInFlight prometheus.Gauge
	DataSizeBytes     *prometheus.GaugeVec // labels: dataset
	DataOverCeiling   prometheus.Gauge

	// Normalization metrics.
	RowsNormalized *prometheus.CounterVec // labels: dataset
	RowsSkipped    *prometheus.CounterVec // labels: dataset

	// Delivery metrics.
	OutboxDepth        prometheus.Gauge
	SinkWrites         *prometheus.CounterVec // labels: store, outcome={success,failure,unavailable}
	SinkAvailable      *prometheus.GaugeVec   // labels: store
	CommitBatchSize    prometheus.Histogram
	CommitDuration     prometheus.Histogram
	RecordsCommitted   prometheus.Counter
	NotificationErrors prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests
// can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "HTTP requests issued by the fetcher, including retries.",
		}, []string{"dataset"}),
		FetchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_results_total",
			Help:      "Completed fetch tasks by outcome.",
		}, []string{"dataset", "outcome"}),
		FetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_bytes_total",
			Help:      "Bytes streamed to disk by the fetcher.",
		}, []string{"dataset"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Wall time of a fetch task including retries.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"dataset"}),
		DownloadTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_tasks_total",
			Help:      "Download tasks by dataset and outcome.",
		}, []string{"dataset", "outcome"}),
		DownloadsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "downloads_in_flight",
			Help:      "Fetch tasks currently executing.",
		}),
		DataSizeBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "data_size_bytes",
			Help:      "On-disk size of each dataset at the last verification.",
		}, []string{"dataset"}),
		DataOverCeiling: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "data_over_ceiling",
			Help:      "1 when the last verification exceeded the size ceiling.",
		}),
		RowsNormalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_normalized_total",
			Help:      "Rows mapped to canonical records.",
		}, []string{"dataset"}),
		RowsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Rows dropped because they failed to decode.",
		}, []string{"dataset"}),
		OutboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_depth",
			Help:      "Records waiting in the outbox for delivery.",
		}),
		SinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Store writes by store and outcome.",
		}, []string{"store", "outcome"}),
		SinkAvailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sink_available",
			Help:      "1 when the store is reachable, 0 otherwise.",
		}, []string{"store"}),
		CommitBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_batch_size",
			Help:      "Outbox entries drained per committer batch.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		CommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_batch_duration_seconds",
			Help:      "Duration of one committer batch.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		RecordsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_committed_total",
			Help:      "Records confirmed by both stores and removed from the outbox.",
		}),
		NotificationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_errors_total",
			Help:      "Failed commit notifications.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FetchAttempts,
		m.FetchResults,
		m.FetchBytes,
		m.FetchDuration,
		m.DownloadTasks,
		m.DownloadsInFlight,
		m.DataSizeBytes,
		m.DataOverCeiling,
		m.RowsNormalized,
		m.RowsSkipped,
		m.OutboxDepth,
		m.SinkWrites,
		m.SinkAvailable,
		m.CommitBatchSize,
		m.CommitDuration,
		m.RecordsCommitted,
		m.NotificationErrors,
	}
}

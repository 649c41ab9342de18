package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingest pipeline.
type Metrics struct {
	ArchivesFetched prometheus.Counter
	FetchRetries    prometheus.Counter
	FetchDuration   prometheus.Histogram

	DaysProcessed         prometheus.Counter
	DaysSkipped           prometheus.Counter
	DayProcessingDuration prometheus.Histogram
	CombineDuration       prometheus.Histogram
	RunActive             prometheus.Gauge

	// Ingest event publishing metrics.
	EventsPublished *prometheus.CounterVec // labels: kind={day,run}, outcome={success,error}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		ArchivesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "prism_etl",
			Name:      "archives_fetched_total",
			Help:      "Total daily archives downloaded from the remote store.",
		}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "prism_etl",
			Name:      "fetch_retries_total",
			Help:      "Total retries of archive downloads after transient failures.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "prism_etl",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a single archive download attempt.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 15, 30, 60, 120, 300},
		}),
		DaysProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "prism_etl",
			Name:      "days_processed_total",
			Help:      "Total daily archives unpacked, normalized, and persisted.",
		}),
		DaysSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "prism_etl",
			Name:      "days_skipped_total",
			Help:      "Total failed days skipped when skip-failed-days is enabled.",
		}),
		DayProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "prism_etl",
			Name:      "day_processing_duration_seconds",
			Help:      "Duration of a complete fetch-unpack-normalize-persist cycle for one day.",
			Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		CombineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "prism_etl",
			Name:      "combine_duration_seconds",
			Help:      "Duration of the combine-and-consolidate step.",
			Buckets:   []float64{0.5, 1, 5, 15, 60, 300, 900},
		}),
		RunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "prism_etl",
			Name:      "run_active",
			Help:      "1 while a pipeline run is in progress, 0 otherwise.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prism_etl",
			Name:      "events_published_total",
			Help:      "Ingest events published to Kafka by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}

	prometheus.MustRegister(
		m.ArchivesFetched,
		m.FetchRetries,
		m.FetchDuration,
		m.DaysProcessed,
		m.DaysSkipped,
		m.DayProcessingDuration,
		m.CombineDuration,
		m.RunActive,
		m.EventsPublished,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		ArchivesFetched:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "prism_etl", Name: "archives_fetched_total"}),
		FetchRetries:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "prism_etl", Name: "fetch_retries_total"}),
		FetchDuration:         prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "prism_etl", Name: "fetch_duration_seconds"}),
		DaysProcessed:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "prism_etl", Name: "days_processed_total"}),
		DaysSkipped:           prometheus.NewCounter(prometheus.CounterOpts{Namespace: "prism_etl", Name: "days_skipped_total"}),
		DayProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "prism_etl", Name: "day_processing_duration_seconds"}),
		CombineDuration:       prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "prism_etl", Name: "combine_duration_seconds"}),
		RunActive:             prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "prism_etl", Name: "run_active"}),
		EventsPublished:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "prism_etl", Name: "events_published_total"}, []string{"kind", "outcome"}),
	}
}

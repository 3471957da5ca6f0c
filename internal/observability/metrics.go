package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parcel_sensor"

// Metrics holds the Prometheus counters, histograms, and gauges for the sensor pipeline.
type Metrics struct {
	// Ingestion.
	FeedReadings       *prometheus.CounterVec // labels: outcome={ok,incomplete,error}
	SamplesAppended    prometheus.Counter
	DuplicatesRejected prometheus.Counter
	PollTickDuration   prometheus.Histogram
	PollerRunning      prometheus.Gauge
	InTransitShipments prometheus.Gauge

	// Shipment lifecycle refresh.
	ShipmentRefreshes *prometheus.CounterVec // labels: outcome={ok,error}

	// Completion persistence.
	SensorLogs      *prometheus.CounterVec // labels: outcome={saved,already_saved,skipped,error}
	PublishFailures prometheus.Counter

	// Cross-validation.
	ValidationCache   *prometheus.CounterVec // labels: result={hit,miss}
	LedgerFetchErrors prometheus.Counter
	ValidationPercent prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FeedReadings,
		m.SamplesAppended,
		m.DuplicatesRejected,
		m.PollTickDuration,
		m.PollerRunning,
		m.InTransitShipments,
		m.ShipmentRefreshes,
		m.SensorLogs,
		m.PublishFailures,
		m.ValidationCache,
		m.LedgerFetchErrors,
		m.ValidationPercent,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FeedReadings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_readings_total",
			Help:      "Sensor feed polls by outcome.",
		}, []string{"outcome"}),
		SamplesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_appended_total",
			Help:      "Samples added to a shipment history.",
		}),
		DuplicatesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_duplicate_total",
			Help:      "Appends rejected because the timestamp was already stored.",
		}),
		PollTickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_tick_duration_seconds",
			Help:      "Duration of one ingestion tick including fan-out.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		PollerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poller_running",
			Help:      "1 when the ingestion poller is active, 0 when shut down.",
		}),
		InTransitShipments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_transit_shipments",
			Help:      "Shipments shipped but not yet delivered in the latest snapshot.",
		}),
		ShipmentRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipment_refreshes_total",
			Help:      "Shipment lifecycle refreshes by outcome.",
		}, []string{"outcome"}),
		SensorLogs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_logs_total",
			Help:      "Completion persistence attempts by outcome.",
		}, []string{"outcome"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_log_publish_failures_total",
			Help:      "Persisted sensor logs that could not be published downstream.",
		}),
		ValidationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_cache_total",
			Help:      "Validation result lookups by result.",
		}, []string{"result"}),
		LedgerFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_fetch_errors_total",
			Help:      "Ledger feed fetch failures.",
		}),
		ValidationPercent: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_match_percent",
			Help:      "Computed cross-validation match percentages.",
			Buckets:   []float64{10, 25, 50, 75, 90, 95, 100},
		}),
	}
}

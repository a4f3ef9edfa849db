package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "fedsearch"

// Search outcomes.
const (
	OutcomeComplete   = "complete"
	OutcomeTerminated = "terminated"
)

// Search and extraction Prometheus metrics.
var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of finished searches",
		},
		[]string{"outcome"},
	)

	SearchesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "searches_active",
			Help:      "Searches dispatched and not yet complete",
		},
	)

	NodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_errors_total",
			Help:      "Errors attached to nodes during searches",
		},
		[]string{"kind"}, // unavailable / corrupt / transport / setup / shard / extraction
	)

	ExtractionTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_tasks_total",
			Help:      "Extraction tasks by result",
		},
		[]string{"status"}, // ok / missing / error / cancelled
	)

	ExtractionRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_rows_total",
			Help:      "Rows reconstructed from stream storage",
		},
	)

	ExtractionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Time to extract one stream",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	ResultStoreEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_store_evictions_total",
			Help:      "Searches removed from the result store",
		},
		[]string{"reason"}, // size / idle / removed
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(SearchesActive)
	prometheus.MustRegister(NodeErrorsTotal)
	prometheus.MustRegister(ExtractionTasksTotal)
	prometheus.MustRegister(ExtractionRowsTotal)
	prometheus.MustRegister(ExtractionDuration)
	prometheus.MustRegister(ResultStoreEvictionsTotal)
	searchMetricsRegistered = true
}

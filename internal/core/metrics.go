package core

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricImportRows       = "rows_total"
	MetricImportJobs       = "jobs_total"
	MetricEntitiesCreated  = "entities_created_total"
	MetricImportDuration   = "duration_seconds"
	metricsNamespace       = "taxonomy"
	metricsImportSubsystem = "import"
)

// CounterImportRows counts processed rows by outcome: success, skipped or invalid.
var CounterImportRows = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsImportSubsystem,
		Name:      MetricImportRows,
		Help:      "CSV rows processed by import jobs, by outcome.",
	},
	[]string{"outcome"},
)

var CounterImportJobs = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsImportSubsystem,
		Name:      MetricImportJobs,
		Help:      "Import jobs completed, by mode and final status.",
	},
	[]string{"mode", "status"},
)

var CounterEntitiesCreated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsImportSubsystem,
		Name:      MetricEntitiesCreated,
		Help:      "Hierarchy entities written by import jobs, by kind.",
	},
	[]string{"kind"},
)

var HistogramImportDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsImportSubsystem,
		Name:      MetricImportDuration,
		Help:      "Wall time of import jobs.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
	},
)

func init() {
	prometheus.MustRegister(CounterImportRows)
	prometheus.MustRegister(CounterImportJobs)
	prometheus.MustRegister(CounterEntitiesCreated)
	prometheus.MustRegister(HistogramImportDuration)
}

func observeImport(mode ImportMode, status JobStatus, result *ImportJobResult, seconds float64) {
	CounterImportJobs.WithLabelValues(mode.String(), string(status)).Inc()
	HistogramImportDuration.Observe(seconds)
	if result == nil {
		return
	}
	CounterImportRows.WithLabelValues("success").Add(float64(result.NumSuccess))
	CounterImportRows.WithLabelValues("skipped").Add(float64(result.NumSkipped))
	CounterImportRows.WithLabelValues("invalid").Add(float64(result.NumInvalid))
}

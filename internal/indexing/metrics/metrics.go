package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RetriesTotal counts retried data-access calls per operation
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpsync_retries_total",
			Help: "Total number of retried data-access attempts",
		},
		[]string{"operation"},
	)

	// OperationErrorsTotal counts data-access calls that failed after all retries
	OperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpsync_operation_errors_total",
			Help: "Total number of data-access calls that failed for good",
		},
		[]string{"operation"},
	)

	// MutationsTotal tracks record writes per entity and kind
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpsync_mutations_total",
			Help: "Total number of record mutations",
		},
		[]string{"entity", "kind"},
	)

	// IndexJobsTotal tracks drained index jobs by outcome
	IndexJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erpsync_index_jobs_total",
			Help: "Total number of index jobs processed",
		},
		[]string{"op", "result"},
	)

	// IndexQueueDepth tracks index jobs per status
	IndexQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "erpsync_index_queue_depth",
			Help: "Number of index jobs per status",
		},
		[]string{"status"},
	)

	// DrainLatency tracks the duration of a drain pass
	DrainLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "erpsync_drain_latency_seconds",
			Help:    "Duration of a single drain pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DBConnectionPoolUsage tracks the share of open connections in percent
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "erpsync_db_connection_pool_usage_percent",
			Help: "Open database connections as a percentage of the pool size",
		},
	)
)

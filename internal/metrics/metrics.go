package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsSent tracks tokens the provider accepted, per transport
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushgate_notifications_sent_total",
			Help: "Total number of push deliveries accepted by the provider",
		},
		[]string{"transport"},
	)

	// NotificationsFailed tracks tokens that ended up undelivered, per transport
	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushgate_notifications_failed_total",
			Help: "Total number of push deliveries that failed",
		},
		[]string{"transport"},
	)

	// BatchRetries tracks whole-batch retries after transient provider failures
	BatchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushgate_batch_retries_total",
			Help: "Total number of batch send retries",
		},
		[]string{"transport"},
	)

	// DispatchDuration tracks end-to-end dispatch latency per transport
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pushgate_dispatch_duration_seconds",
			Help:    "Dispatch latency in seconds, resolve through reconcile",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	// InvalidEndpointsRemoved tracks registrations deleted after the
	// provider reported their token dead
	InvalidEndpointsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushgate_invalid_endpoints_removed_total",
			Help: "Total number of invalid endpoints removed",
		},
	)

	// EndpointOps tracks registration writes by operation and outcome
	EndpointOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushgate_endpoint_ops_total",
			Help: "Total number of endpoint register/unregister operations",
		},
		[]string{"op", "outcome"},
	)

	// QueueMessages tracks consumed queue messages by type and outcome
	QueueMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushgate_queue_messages_total",
			Help: "Total number of queue messages consumed",
		},
		[]string{"type", "outcome"},
	)

	// SweepChecked tracks endpoints examined by the stale sweeper
	SweepChecked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushgate_sweep_checked_total",
			Help: "Total number of endpoints checked by the sweeper",
		},
	)

	// SweepRemoved tracks endpoints the sweeper deleted
	SweepRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushgate_sweep_removed_total",
			Help: "Total number of stale endpoints removed by the sweeper",
		},
	)

	// MirrorErrors tracks best-effort mirror writes that failed
	MirrorErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushgate_mirror_errors_total",
			Help: "Total number of failed endpoint mirror writes",
		},
	)

	// DBConnectionPoolUsage tracks connection pool utilization percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pushgate_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)

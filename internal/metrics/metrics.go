package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec

	QueueDepthCritical prometheus.Gauge
	QueueDepthHigh     prometheus.Gauge
	QueueDepthNormal   prometheus.Gauge
	QueueDepthLow      prometheus.Gauge

	NotificationsEnqueued prometheus.Counter

	MaintenanceDeleted *prometheus.CounterVec
	MaintenanceErrors  *prometheus.CounterVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of successfully completed jobs.",
		}, []string{"type"}),

		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of failed job attempts.",
		}, []string{"type"}),

		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_processing_seconds",
			Help:    "Handler execution latency from dequeue to completion.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),

		QueueDepthCritical: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_critical",
			Help: "Current number of items in the critical-priority queue.",
		}),
		QueueDepthHigh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_high",
			Help: "Current number of items in the high-priority queue.",
		}),
		QueueDepthNormal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_normal",
			Help: "Current number of items in the normal-priority queue.",
		}),
		QueueDepthLow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_low",
			Help: "Current number of items in the low-priority queue.",
		}),

		NotificationsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_enqueued_total",
			Help: "Total number of notification jobs produced from domain events.",
		}),

		MaintenanceDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maintenance_rows_deleted_total",
			Help: "Total rows removed by maintenance tasks.",
		}, []string{"task"}),

		MaintenanceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maintenance_task_errors_total",
			Help: "Total maintenance task failures.",
		}, []string{"task"}),
	}

	reg.MustRegister(
		m.JobsCompleted,
		m.JobsFailed,
		m.JobDuration,
		m.QueueDepthCritical,
		m.QueueDepthHigh,
		m.QueueDepthNormal,
		m.QueueDepthLow,
		m.NotificationsEnqueued,
		m.MaintenanceDeleted,
		m.MaintenanceErrors,
	)

	return m
}

// WorkerHooks returns the metric callback functions expected by worker.MetricHooks.
// Centralises the prometheus observation calls so worker.go stays import-free.
func (m *Metrics) WorkerHooks() (
	onCompleted func(jobType string, took time.Duration),
	onFailed func(jobType string),
) {
	onCompleted = func(jobType string, took time.Duration) {
		m.JobsCompleted.WithLabelValues(jobType).Inc()
		m.JobDuration.WithLabelValues(jobType).Observe(took.Seconds())
	}
	onFailed = func(jobType string) {
		m.JobsFailed.WithLabelValues(jobType).Inc()
	}
	return
}

// MaintenanceHooks returns the callbacks the maintenance runner reports
// sweep outcomes through.
func (m *Metrics) MaintenanceHooks() (
	onDeleted func(task string, n int64),
	onError func(task string),
) {
	onDeleted = func(task string, n int64) {
		m.MaintenanceDeleted.WithLabelValues(task).Add(float64(n))
	}
	onError = func(task string) {
		m.MaintenanceErrors.WithLabelValues(task).Inc()
	}
	return
}

// SetQueueDepths records the current per-tier backlog.
func (m *Metrics) SetQueueDepths(critical, high, normal, low int) {
	m.QueueDepthCritical.Set(float64(critical))
	m.QueueDepthHigh.Set(float64(high))
	m.QueueDepthNormal.Set(float64(normal))
	m.QueueDepthLow.Set(float64(low))
}

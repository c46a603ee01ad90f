// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	ReplenishmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_replenishments_total",
			Help: "Total number of completed recommendation set replenishment cycles",
		},
	)

	ReplenishmentFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_replenishment_failures_total",
			Help: "Total number of replenishment cycles that failed to fetch candidates",
		},
	)

	ActiveSetSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendation_active_set_size",
			Help:    "Size of a user's active recommendation set after replenishment",
			Buckets: prometheus.LinearBuckets(0, 2, 8),
		},
	)

	InteractionCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grant_interaction_commits_total",
			Help: "Total number of grant interaction ledger commits by outcome",
		},
		[]string{"action", "status"},
	)
)

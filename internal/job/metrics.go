package job

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_jobs_processed_total",
			Help: "Total number of jobs processed, by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexer_job_duration_seconds",
			Help:    "Time spent processing one job attempt.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"type"},
	)

	jobRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_job_retries_total",
			Help: "Total number of job attempts scheduled for retry.",
		},
		[]string{"type"},
	)
)

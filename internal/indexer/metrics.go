package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	productsSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_products_synced_total",
			Help: "Products processed by the synchronizer, by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	productSyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexer_product_sync_duration_seconds",
			Help:    "Time to recompute and write the documents of one product",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	reindexRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_reindex_runs_total",
			Help: "Full reindex runs by outcome",
		},
		[]string{"outcome"},
	)

	reindexProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexer_reindex_progress_ratio",
			Help: "Completed fraction of the running or last reindex",
		},
	)

	reindexDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "indexer_reindex_duration_seconds",
			Help:    "Wall time of full reindex runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

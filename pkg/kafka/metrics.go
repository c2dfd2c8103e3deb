package kafka

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Message outcomes counted by messagesTotal.
const (
	outcomeReceived     = "received"
	outcomeProcessed    = "processed"
	outcomeFailed       = "failed"
	outcomeDeadLettered = "dead_lettered"
)

var (
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_kafka_messages_total",
			Help: "Catalog event messages by topic, consumer group and outcome.",
		},
		[]string{"topic", "consumer_group", "outcome"},
	)

	duplicatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_kafka_duplicate_events_total",
			Help: "Redelivered events skipped by the idempotency guard.",
		},
		[]string{"event_type"},
	)

	processingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexer_kafka_processing_duration_seconds",
			Help:    "Time from fetching an event to its final handler outcome, retries included.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	consumerLag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "indexer_kafka_consumer_lag",
			Help: "Messages behind the partition high watermark at the last fetch.",
		},
		[]string{"topic", "partition"},
	)

	publishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_kafka_published_total",
			Help: "Index lifecycle events published, by topic and status.",
		},
		[]string{"topic", "status"},
	)
)

// observeLag records how far msg trails the end of its partition.
func observeLag(msg kafka.Message) {
	if msg.HighWaterMark <= 0 {
		return
	}
	lag := max(msg.HighWaterMark-msg.Offset-1, 0)
	consumerLag.WithLabelValues(msg.Topic, strconv.Itoa(msg.Partition)).Set(float64(lag))
}

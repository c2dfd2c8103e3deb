package kafka

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestObserveLag(t *testing.T) {
	tests := []struct {
		name      string
		offset    int64
		watermark int64
		want      float64
	}{
		{"caught up", 41, 42, 0},
		{"behind", 10, 42, 31},
		{"watermark behind offset", 50, 42, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observeLag(kafka.Message{Topic: "lag.test", Partition: 3, Offset: tt.offset, HighWaterMark: tt.watermark})
			assert.Equal(t, tt.want, testutil.ToFloat64(consumerLag.WithLabelValues("lag.test", "3")))
		})
	}
}

func TestObserveLag_UnknownWatermarkIsIgnored(t *testing.T) {
	before := testutil.CollectAndCount(consumerLag)
	observeLag(kafka.Message{Topic: "lag.unknown", Partition: 0, Offset: 5})
	assert.Equal(t, before, testutil.CollectAndCount(consumerLag))
}

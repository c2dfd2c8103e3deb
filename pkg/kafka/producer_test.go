package kafka

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := &Producer{writer: w, logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}

	evt, err := NewEvent("search.index.rebuilt", "products_v2", "index", "catalog-indexer",
		map[string]int{"documents": 12}, WithCorrelationID("corr-5"))
	require.NoError(t, err)

	before := testutil.ToFloat64(publishedTotal.WithLabelValues("producer.test", "ok"))
	require.NoError(t, p.Publish(context.Background(), "producer.test", evt))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "products_v2", string(msg.Key))
	assert.Equal(t, "search.index.rebuilt", headerValue(msg, HeaderEventType))
	assert.Equal(t, "catalog-indexer", headerValue(msg, HeaderSource))
	assert.Equal(t, "corr-5", headerValue(msg, HeaderCorrelationID))

	decoded, err := DecodeEvent(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, evt.EventID, decoded.EventID)
	assert.Equal(t, before+1, testutil.ToFloat64(publishedTotal.WithLabelValues("producer.test", "ok")))
}

func TestProducer_PublishWithoutCorrelationOmitsHeader(t *testing.T) {
	w := &recordingWriter{}
	p := &Producer{writer: w, logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}

	evt, err := NewEvent("search.index.rebuilt", "products_v3", "index", "catalog-indexer", nil)
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), "producer.test", evt))

	require.Len(t, w.msgs, 1)
	assert.Len(t, w.msgs[0].Headers, 2)
}

func TestProducer_PublishFailure(t *testing.T) {
	var logs bytes.Buffer
	p := &Producer{
		writer: &recordingWriter{err: errors.New("leader not available")},
		logger: slog.New(slog.NewJSONHandler(&logs, nil)),
	}
	evt, err := NewEvent("search.index.rebuilt", "products_v4", "index", "catalog-indexer", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "producer.fail", evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish search.index.rebuilt to producer.fail")
	assert.Contains(t, logs.String(), "leader not available")
	assert.Equal(t, 1.0, testutil.ToFloat64(publishedTotal.WithLabelValues("producer.fail", "error")))
}

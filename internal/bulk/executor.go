package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/catalog-indexer/pkg/tracing"
)

var (
	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_bulk_items_total",
			Help: "Bulk operation items by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	requestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "indexer_bulk_request_duration_seconds",
			Help:    "Duration of bulk calls against the search engine",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Writer submits a batch of operations to one index in a single call and
// returns one ItemResult per operation, in order.
type Writer interface {
	Bulk(ctx context.Context, index string, ops []Operation) ([]ItemResult, error)
}

// Result summarizes a bulk call.
type Result struct {
	Total     int
	Succeeded int
	Failed    int
	Failures  []ItemResult
}

// Executor runs bulk calls and logs item failures. A failed item never fails
// the call; only transport errors are returned.
type Executor struct {
	writer Writer
	logger *slog.Logger
}

// NewExecutor creates an executor writing through w.
func NewExecutor(w Writer, logger *slog.Logger) *Executor {
	return &Executor{writer: w, logger: logger}
}

// Execute submits ops to index. An empty batch returns immediately.
func (e *Executor) Execute(ctx context.Context, index string, ops []Operation) (Result, error) {
	if len(ops) == 0 {
		return Result{}, nil
	}

	ctx, span := tracing.Tracer("internal/bulk").Start(ctx, "bulk.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("index", index),
		attribute.Int("bulk.operations", len(ops)),
	)

	start := time.Now()
	items, err := e.writer.Bulk(ctx, index, ops)
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		tracing.RecordError(span, err)
		return Result{}, fmt.Errorf("bulk %d operations on %s: %w", len(ops), index, err)
	}

	res := Result{Total: len(ops)}
	for _, item := range items {
		if !item.Failed() {
			res.Succeeded++
			itemsTotal.WithLabelValues(string(item.Action), "success").Inc()
			continue
		}
		res.Failed++
		res.Failures = append(res.Failures, item)
		itemsTotal.WithLabelValues(string(item.Action), "failure").Inc()
		e.logger.ErrorContext(ctx, "bulk item failed",
			slog.String("index", index),
			slog.String("action", string(item.Action)),
			slog.String("key", item.Key),
			slog.Int("status", item.Status),
			slog.String("error_type", item.ErrorType),
			slog.String("reason", item.Reason),
		)
	}

	span.SetAttributes(attribute.Int("bulk.failed", res.Failed))
	if res.Failed > 0 {
		e.logger.WarnContext(ctx, "bulk completed with failures",
			slog.String("index", index),
			slog.Int("total", res.Total),
			slog.Int("failed", res.Failed),
		)
	}
	return res, nil
}

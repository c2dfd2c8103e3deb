package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	jobIDKey         contextKey = "job_id"
	jobTypeKey       contextKey = "job_type"
	loggerKey        contextKey = "logger"
)

// Options configures New.
type Options struct {
	Service string
	Level   string // debug, info, warn or error
	Format  string // json (default) or text
	Writer  io.Writer
}

// New builds the process logger. Every record carries the service name;
// debug level also records the source location.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	lvl := ParseLevel(opts.Level)
	hopts := &slog.HandlerOptions{Level: lvl, AddSource: lvl == slog.LevelDebug}

	var h slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		h = slog.NewTextHandler(w, hopts)
	} else {
		h = slog.NewJSONHandler(w, hopts)
	}
	return slog.New(h).With(slog.String("service", opts.Service))
}

// NewWithWriter is New with JSON output to w.
func NewWithWriter(service, level string, w io.Writer) *slog.Logger {
	return New(Options{Service: service, Level: level, Writer: w})
}

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithCorrelationID returns a new context with the correlation ID set.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation ID from the context.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithJob returns a new context carrying the id and type of the job being processed.
func WithJob(ctx context.Context, id, jobType string) context.Context {
	ctx = context.WithValue(ctx, jobIDKey, id)
	return context.WithValue(ctx, jobTypeKey, jobType)
}

// JobFromContext extracts the job id and type stored by WithJob.
func JobFromContext(ctx context.Context) (id, jobType string) {
	id, _ = ctx.Value(jobIDKey).(string)
	jobType, _ = ctx.Value(jobTypeKey).(string)
	return id, jobType
}

// NewContext returns a new context with the given logger stored in it.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored by NewContext, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithContext adds the request or job identity and the active span found in
// ctx to l.
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	if id := CorrelationIDFromContext(ctx); id != "" {
		l = l.With(slog.String("correlation_id", id))
	}

	if id, jobType := JobFromContext(ctx); id != "" {
		l = l.With(slog.String("job_id", id), slog.String("job_type", jobType))
	}

	if spanCtx := trace.SpanFromContext(ctx).SpanContext(); spanCtx.IsValid() {
		l = l.With(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}

	return l
}

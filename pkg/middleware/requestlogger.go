package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/catalog-indexer/pkg/logger"
)

// RequestLogger stores a logger enriched with the correlation and trace ids
// in the request context, where logger.FromContext finds it. Requests scoped
// to a channel also carry channel_id. Mount it after RequestLogging and
// Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := logger.WithContext(ctx, base)

			var attrs []any
			if src := r.Header.Get("X-Request-Source"); src != "" {
				attrs = append(attrs, slog.String("request_source", src))
			}
			if ch := r.URL.Query().Get("channel_id"); ch != "" {
				attrs = append(attrs, slog.String("channel_id", ch))
			}
			if len(attrs) > 0 {
				l = l.With(attrs...)
			}

			next.ServeHTTP(w, r.WithContext(logger.NewContext(ctx, l)))
		})
	}
}

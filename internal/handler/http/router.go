package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/engine"
	"github.com/utafrali/catalog-indexer/internal/job"
	"github.com/utafrali/catalog-indexer/pkg/health"
	"github.com/utafrali/catalog-indexer/pkg/middleware"
)

// Options configure the admin API.
type Options struct {
	// Alias is the index alias searches run against.
	Alias string
	// Admin authenticates /api/v1/index callers. The zero value leaves it open.
	Admin middleware.AdminAuthConfig
	// WriteRPS and WriteBurst bound admin write requests. Zero RPS disables it.
	WriteRPS   float64
	WriteBurst int
	// Defaults scope requests that carry no channel or language.
	Defaults domain.RequestContext
	// ServiceName labels tracing spans.
	ServiceName string
}

// NewRouter creates a chi router with the health, metrics, index admin and
// search routes registered.
func NewRouter(
	queue job.Queue,
	searcher engine.Searcher,
	opts Options,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(opts.ServiceName))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics())

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	indexHandler := NewIndexHandler(queue, opts.Defaults, logger)
	searchHandler := NewSearchHandler(searcher, opts.Alias, opts.Defaults, logger)

	r.Route("/api/v1/index", func(r chi.Router) {
		r.Use(middleware.AdminAuth(opts.Admin))
		r.Use(middleware.RateLimit(opts.WriteRPS, opts.WriteBurst))
		r.Post("/reindex", indexHandler.Reindex)
		r.Post("/products", indexHandler.UpdateProducts)
		r.Delete("/products/{id}", indexHandler.DeleteProduct)
		r.Post("/variants", indexHandler.UpdateVariants)
		r.Get("/jobs/{id}", indexHandler.GetJob)
	})

	r.Route("/api/v1/search", func(r chi.Router) {
		r.Get("/", searchHandler.Search)
		r.Get("/price-range", searchHandler.PriceRange)
	})

	return r
}

package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/job"
	apperrors "github.com/utafrali/catalog-indexer/pkg/errors"
	"github.com/utafrali/catalog-indexer/pkg/httputil"
	"github.com/utafrali/catalog-indexer/pkg/validator"
)

// IndexHandler turns admin requests into index jobs.
type IndexHandler struct {
	queue    job.Queue
	defaults domain.RequestContext
	logger   *slog.Logger
}

// NewIndexHandler creates a new index admin handler.
func NewIndexHandler(queue job.Queue, defaults domain.RequestContext, logger *slog.Logger) *IndexHandler {
	return &IndexHandler{
		queue:    queue,
		defaults: defaults,
		logger:   logger,
	}
}

// --- Request DTOs ---

// UpdateProductsRequest is the JSON body for re-syncing products.
type UpdateProductsRequest struct {
	ProductIDs []string `json:"product_ids" validate:"required,min=1,max=500,dive,entity_id"`
}

// UpdateVariantsRequest is the JSON body for re-syncing variants.
type UpdateVariantsRequest struct {
	VariantIDs []string `json:"variant_ids" validate:"required,min=1,max=500,dive,entity_id"`
}

// JobResponse describes an accepted job.
type JobResponse struct {
	ID    string    `json:"id"`
	Type  job.Type  `json:"type"`
	State job.State `json:"state"`
}

func jobResponse(rec *job.Record) JobResponse {
	return JobResponse{ID: rec.ID, Type: rec.Type, State: rec.State}
}

// --- Handlers ---

// Reindex handles POST /api/v1/index/reindex
func (h *IndexHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	rec, err := h.queue.Add(r.Context(), job.ReindexJob{Ctx: requestContext(r, h.defaults)})
	if err != nil {
		h.writeQueueError(w, r, err)
		return
	}

	httputil.WriteData(w, http.StatusAccepted, jobResponse(rec))
}

// UpdateProducts handles POST /api/v1/index/products
func (h *IndexHandler) UpdateProducts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req UpdateProductsRequest
	if !decode(w, r, &req) {
		return
	}

	rc := requestContext(r, h.defaults)
	accepted := make([]JobResponse, 0, len(req.ProductIDs))
	for _, id := range dedupe(req.ProductIDs) {
		rec, err := h.queue.Add(r.Context(), job.UpdateProductJob{Ctx: rc, ProductID: id})
		if err != nil {
			h.writeQueueError(w, r, err)
			return
		}
		accepted = append(accepted, jobResponse(rec))
	}

	httputil.WriteData(w, http.StatusAccepted, map[string]any{"jobs": accepted})
}

// DeleteProduct handles DELETE /api/v1/index/products/{id}
func (h *IndexHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.queue.Add(r.Context(), job.DeleteProductJob{Ctx: requestContext(r, h.defaults), ProductID: id})
	if err != nil {
		h.writeQueueError(w, r, err)
		return
	}

	httputil.WriteData(w, http.StatusAccepted, jobResponse(rec))
}

// UpdateVariants handles POST /api/v1/index/variants. All variants go into a
// single job.
func (h *IndexHandler) UpdateVariants(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req UpdateVariantsRequest
	if !decode(w, r, &req) {
		return
	}

	rec, err := h.queue.Add(r.Context(), job.UpdateVariantsByIDJob{
		Ctx: requestContext(r, h.defaults),
		IDs: dedupe(req.VariantIDs),
	})
	if err != nil {
		h.writeQueueError(w, r, err)
		return
	}

	httputil.WriteData(w, http.StatusAccepted, jobResponse(rec))
}

// GetJob handles GET /api/v1/index/jobs/{id}
func (h *IndexHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	rec, err := h.queue.Get(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, rec)
}

func (h *IndexHandler) writeQueueError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, job.ErrClosed) {
		err = apperrors.Unavailable("job queue", err)
	}
	httputil.WriteError(w, r, err, h.logger)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := validator.DecodeAndValidate(r, dst); err != nil {
		httputil.WriteDecodeError(w, r, err)
		return false
	}
	return true
}

// requestContext reads the channel and language scope from the query string,
// falling back to the configured defaults.
func requestContext(r *http.Request, defaults domain.RequestContext) domain.RequestContext {
	rc := defaults
	if v := r.URL.Query().Get("channel_id"); v != "" {
		rc.ChannelID = v
	}
	if v := r.URL.Query().Get("language_code"); v != "" {
		rc.LanguageCode = v
	}
	return rc
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

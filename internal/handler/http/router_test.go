package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalog-indexer/internal/bulk"
	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/engine"
	memengine "github.com/utafrali/catalog-indexer/internal/engine/memory"
	"github.com/utafrali/catalog-indexer/internal/job"
	"github.com/utafrali/catalog-indexer/pkg/health"
	"github.com/utafrali/catalog-indexer/pkg/httputil"
	"github.com/utafrali/catalog-indexer/pkg/middleware"
)

const testAlias = "catalog"

type response struct {
	Data  json.RawMessage         `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

type testServer struct {
	router http.Handler
	queue  *job.MemoryQueue
	engine *memengine.Engine
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	queue := job.NewMemoryQueue(job.Options{Logger: logger})
	t.Cleanup(func() { _ = queue.Close() })

	eng := memengine.New()
	ctx := context.Background()
	require.NoError(t, eng.CreateIndex(ctx, "catalog_0"))
	require.NoError(t, eng.UpdateAliases(ctx, []engine.AliasAction{engine.AddAlias("catalog_0", testAlias)}))

	hh := health.NewHandler()
	hh.RegisterCritical("search", eng.Ping)

	router := NewRouter(queue, eng, Options{
		Alias:       testAlias,
		Admin:       middleware.AdminAuthConfig{Token: token},
		Defaults:    domain.RequestContext{ChannelID: "C1", LanguageCode: "en"},
		ServiceName: "catalog-indexer-test",
	}, hh, logger)

	return &testServer{router: router, queue: queue, engine: eng}
}

func (s *testServer) seed(t *testing.T, docs ...domain.SearchDocument) {
	t.Helper()
	ops := make([]bulk.Operation, 0, len(docs))
	for i := range docs {
		ops = append(ops, bulk.Update(docs[i].Key(), &docs[i], true))
	}
	_, err := s.engine.Bulk(context.Background(), testAlias, ops)
	require.NoError(t, err)
}

func (s *testServer) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)

	var resp response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func doc(product, variant, channel, lang, name string, price int64) domain.SearchDocument {
	return domain.SearchDocument{
		ProductID:          product,
		ProductVariantID:   variant,
		ChannelID:          channel,
		LanguageCode:       lang,
		ProductName:        name,
		ProductVariantName: name,
		Price:              price,
		PriceWithTax:       price * 12 / 10,
		ProductPriceMin:    price,
		ProductPriceMax:    price,
		Enabled:            true,
		ProductEnabled:     true,
		InStock:            true,
		ProductInStock:     true,
	}
}

// --- Health ---

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t, "")

	w, _ := s.do(t, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	s := newTestServer(t, "")

	w, _ := s.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Index admin ---

func TestReindex_EnqueuesJob(t *testing.T) {
	s := newTestServer(t, "")

	w, resp := s.do(t, http.MethodPost, "/api/v1/index/reindex?channel_id=C2", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted JobResponse
	require.NoError(t, json.Unmarshal(resp.Data, &accepted))
	assert.Equal(t, job.TypeReindex, accepted.Type)
	assert.Equal(t, job.StateWaiting, accepted.State)

	rec, err := s.queue.Get(context.Background(), accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestContext{ChannelID: "C2", LanguageCode: "en"}, rec.Job.Context())
}

func TestUpdateProducts_OneJobPerDistinctProduct(t *testing.T) {
	s := newTestServer(t, "")

	w, resp := s.do(t, http.MethodPost, "/api/v1/index/products", `{"product_ids":["P1","P2","P1"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var data struct {
		Jobs []JobResponse `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.Len(t, data.Jobs, 2)
	assert.Equal(t, 2, s.queue.Pending())

	var ids []string
	for _, j := range data.Jobs {
		assert.Equal(t, job.TypeUpdateProduct, j.Type)
		rec, err := s.queue.Get(context.Background(), j.ID)
		require.NoError(t, err)
		ids = append(ids, rec.Job.(job.UpdateProductJob).ProductID)
	}
	assert.Equal(t, []string{"P1", "P2"}, ids)
}

func TestUpdateProducts_Validation(t *testing.T) {
	tooMany := make([]string, 501)
	for i := range tooMany {
		tooMany[i] = "P"
	}
	oversized, err := json.Marshal(map[string]any{"product_ids": tooMany})
	require.NoError(t, err)

	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "empty list", body: `{"product_ids":[]}`, code: "VALIDATION_ERROR"},
		{name: "missing field", body: `{}`, code: "VALIDATION_ERROR"},
		{name: "blank id", body: `{"product_ids":[""]}`, code: "VALIDATION_ERROR"},
		{name: "id with space", body: `{"product_ids":["P 1"]}`, code: "VALIDATION_ERROR"},
		{name: "over 500 ids", body: string(oversized), code: "VALIDATION_ERROR"},
		{name: "malformed json", body: `{"product_ids":`, code: "INVALID_INPUT"},
		{name: "unknown field", body: `{"ids":["P1"]}`, code: "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, "")

			w, resp := s.do(t, http.MethodPost, "/api/v1/index/products", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Zero(t, s.queue.Pending())
		})
	}
}

func TestUpdateVariants_SingleJob(t *testing.T) {
	s := newTestServer(t, "")

	w, resp := s.do(t, http.MethodPost, "/api/v1/index/variants", `{"variant_ids":["V1","V2","V1"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted JobResponse
	require.NoError(t, json.Unmarshal(resp.Data, &accepted))
	rec, err := s.queue.Get(context.Background(), accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"V1", "V2"}, rec.Job.(job.UpdateVariantsByIDJob).IDs)
}

func TestDeleteProduct_EnqueuesJob(t *testing.T) {
	s := newTestServer(t, "")

	w, resp := s.do(t, http.MethodDelete, "/api/v1/index/products/P9", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted JobResponse
	require.NoError(t, json.Unmarshal(resp.Data, &accepted))
	assert.Equal(t, job.TypeDeleteProduct, accepted.Type)
}

func TestGetJob(t *testing.T) {
	s := newTestServer(t, "")
	rec, err := s.queue.Add(context.Background(), job.ReindexJob{})
	require.NoError(t, err)

	w, resp := s.do(t, http.MethodGet, "/api/v1/index/jobs/"+rec.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	var got job.Record
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, job.StateWaiting, got.State)
}

func TestGetJob_Errors(t *testing.T) {
	s := newTestServer(t, "")

	w, resp := s.do(t, http.MethodGet, "/api/v1/index/jobs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)

	w, resp = s.do(t, http.MethodGet, "/api/v1/index/jobs/6f1c1f1e-8d5e-4c3a-9c1b-2a7f9f0e4b11", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestIndexRoutes_ClosedQueue(t *testing.T) {
	s := newTestServer(t, "")
	require.NoError(t, s.queue.Close())

	w, resp := s.do(t, http.MethodPost, "/api/v1/index/reindex", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error.Code)
}

func TestIndexRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t, "secret")

	w, _ := s.do(t, http.MethodPost, "/api/v1/index/reindex", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/index/reindex", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// Search stays open.
	w, _ = s.do(t, http.MethodGet, "/api/v1/search", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Search ---

func TestSearch_ScopedToDefaultChannel(t *testing.T) {
	s := newTestServer(t, "")
	s.seed(t,
		doc("P1", "V1", "C1", "en", "Red Shirt", 1000),
		doc("P1", "V1", "C2", "en", "Red Shirt", 1000),
		doc("P2", "V2", "C1", "en", "Blue Shirt", 2000),
		doc("P2", "V2", "C1", "de", "Blaues Hemd", 2000),
	)

	w, resp := s.do(t, http.MethodGet, "/api/v1/search?term=shirt&sort=price_desc", "")
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.SearchResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	require.Equal(t, 2, result.TotalItems)
	assert.Equal(t, "P2", result.Items[0].ProductID)
	assert.Equal(t, "P1", result.Items[1].ProductID)
	for _, item := range result.Items {
		assert.Equal(t, "C1", item.ChannelID)
		assert.Equal(t, "en", item.LanguageCode)
	}
}

func TestSearch_PriceRangeFilter(t *testing.T) {
	s := newTestServer(t, "")
	s.seed(t,
		doc("P1", "V1", "C1", "en", "Cheap", 500),
		doc("P2", "V2", "C1", "en", "Mid", 1500),
		doc("P3", "V3", "C1", "en", "Dear", 5000),
	)

	w, resp := s.do(t, http.MethodGet, "/api/v1/search?min_price=1000&max_price=2000", "")
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.SearchResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	require.Equal(t, 1, result.TotalItems)
	assert.Equal(t, "P2", result.Items[0].ProductID)
}

func TestSearch_InvalidParameters(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "bad sort", query: "sort=newest"},
		{name: "bad operator", query: "facet_value_operator=XOR"},
		{name: "bad in_stock", query: "in_stock=maybe"},
		{name: "bad group_by_product", query: "group_by_product=yes-please"},
		{name: "negative price", query: "min_price=-1&max_price=10"},
		{name: "half range", query: "min_price=10"},
		{name: "inverted range", query: "min_price_with_tax=20&max_price_with_tax=10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, "")

			w, resp := s.do(t, http.MethodGet, "/api/v1/search?"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
		})
	}
}

func TestSearch_MissingAlias(t *testing.T) {
	s := newTestServer(t, "")
	require.NoError(t, s.engine.DeleteIndex(context.Background(), "catalog_0"))

	w, resp := s.do(t, http.MethodGet, "/api/v1/search", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestSearch_PriceRange(t *testing.T) {
	s := newTestServer(t, "")
	s.seed(t,
		doc("P1", "V1", "C1", "en", "Cheap", 500),
		doc("P2", "V2", "C1", "en", "Dear", 5000),
	)

	w, resp := s.do(t, http.MethodGet, "/api/v1/search/price-range?min_price=0&max_price=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.PriceRangeResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, domain.PriceRange{Min: 500, Max: 5000}, result.Range)
}

func TestParseInput_Defaults(t *testing.T) {
	h := NewSearchHandler(nil, testAlias, domain.RequestContext{ChannelID: "C1", LanguageCode: "en"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/?facet_value_ids=F1,F2&facet_value_ids=F3&facet_value_operator=or&in_stock=false&per_page=500", nil)
	in, err := h.parseInput(req.URL.Query())
	require.NoError(t, err)

	assert.Equal(t, "C1", in.ChannelID)
	assert.Equal(t, []string{"F1", "F2", "F3"}, in.FacetValueIDs)
	assert.Equal(t, domain.OperatorOr, in.FacetValueOperator)
	require.NotNil(t, in.InStock)
	assert.False(t, *in.InStock)
	assert.Equal(t, 1, in.Page)
	assert.Equal(t, 20, in.PerPage)
	assert.Nil(t, in.Sort)
}

func TestParseInput_RequiresChannel(t *testing.T) {
	h := NewSearchHandler(nil, testAlias, domain.RequestContext{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := h.parseInput(req.URL.Query())
	assert.EqualError(t, err, "channel_id is required")
}

package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/engine"
	apperrors "github.com/utafrali/catalog-indexer/pkg/errors"
	"github.com/utafrali/catalog-indexer/pkg/httputil"
	"github.com/utafrali/catalog-indexer/pkg/pagination"
)

// SearchHandler serves storefront queries against the index alias.
type SearchHandler struct {
	searcher engine.Searcher
	alias    string
	defaults domain.RequestContext
	logger   *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(searcher engine.Searcher, alias string, defaults domain.RequestContext, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		searcher: searcher,
		alias:    alias,
		defaults: defaults,
		logger:   logger,
	}
}

// Search handles GET /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	in, err := h.parseInput(r.URL.Query())
	if err != nil {
		writeInvalidParameter(w, r, err)
		return
	}

	result, err := h.searcher.Search(r.Context(), h.alias, in)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

// PriceRange handles GET /api/v1/search/price-range
func (h *SearchHandler) PriceRange(w http.ResponseWriter, r *http.Request) {
	in, err := h.parseInput(r.URL.Query())
	if err != nil {
		writeInvalidParameter(w, r, err)
		return
	}

	result, err := h.searcher.PriceRange(r.Context(), h.alias, in)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	httputil.WriteData(w, http.StatusOK, result)
}

func (h *SearchHandler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, engine.ErrIndexNotFound) {
		err = apperrors.NotFound("index", h.alias)
	}
	httputil.WriteError(w, r, err, h.logger)
}

func writeInvalidParameter(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteFailure(w, r, http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
}

func (h *SearchHandler) parseInput(q url.Values) (domain.SearchInput, error) {
	page := pagination.New(atoi(q.Get("page")), atoi(q.Get("per_page")))

	in := domain.SearchInput{
		Term:           strings.TrimSpace(q.Get("term")),
		ChannelID:      h.defaults.ChannelID,
		LanguageCode:   h.defaults.LanguageCode,
		CollectionID:   q.Get("collection_id"),
		CollectionSlug: q.Get("collection_slug"),
		Page:           page.Page,
		PerPage:        page.PerPage,
	}
	if v := q.Get("channel_id"); v != "" {
		in.ChannelID = v
	}
	if v := q.Get("language_code"); v != "" {
		in.LanguageCode = v
	}
	if in.ChannelID == "" {
		return in, errors.New("channel_id is required")
	}

	for _, raw := range q["facet_value_ids"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				in.FacetValueIDs = append(in.FacetValueIDs, id)
			}
		}
	}
	switch op := domain.LogicalOperator(strings.ToUpper(q.Get("facet_value_operator"))); op {
	case "":
	case domain.OperatorAnd, domain.OperatorOr:
		in.FacetValueOperator = op
	default:
		return in, errors.New("facet_value_operator must be one of: AND, OR")
	}

	var err error
	if in.GroupByProduct, err = parseBool(q, "group_by_product"); err != nil {
		return in, err
	}
	if v := q.Get("in_stock"); v != "" {
		inStock, err := strconv.ParseBool(v)
		if err != nil {
			return in, errors.New("in_stock must be a boolean")
		}
		in.InStock = &inStock
	}
	if in.PriceRange, err = parseRange(q, "min_price", "max_price"); err != nil {
		return in, err
	}
	if in.PriceRangeWithTax, err = parseRange(q, "min_price_with_tax", "max_price_with_tax"); err != nil {
		return in, err
	}

	switch sortBy := q.Get("sort"); sortBy {
	case "", "relevance":
	case "name_asc":
		in.Sort = &domain.SearchSort{Name: domain.SortAsc}
	case "name_desc":
		in.Sort = &domain.SearchSort{Name: domain.SortDesc}
	case "price_asc":
		in.Sort = &domain.SearchSort{Price: domain.SortAsc}
	case "price_desc":
		in.Sort = &domain.SearchSort{Price: domain.SortDesc}
	default:
		return in, errors.New("sort must be one of: relevance, name_asc, name_desc, price_asc, price_desc")
	}

	return in, nil
}

func parseBool(q url.Values, name string) (bool, error) {
	v := q.Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", name)
	}
	return b, nil
}

// parseRange reads an inclusive price range in minor units. Both bounds are
// required once either is given.
func parseRange(q url.Values, minName, maxName string) (*domain.PriceRange, error) {
	rawMin, rawMax := q.Get(minName), q.Get(maxName)
	if rawMin == "" && rawMax == "" {
		return nil, nil
	}
	if rawMin == "" || rawMax == "" {
		return nil, fmt.Errorf("%s and %s must be given together", minName, maxName)
	}

	lo, err := strconv.ParseInt(rawMin, 10, 64)
	if err != nil || lo < 0 {
		return nil, fmt.Errorf("%s must be a non-negative number", minName)
	}
	hi, err := strconv.ParseInt(rawMax, 10, 64)
	if err != nil || hi < 0 {
		return nil, fmt.Errorf("%s must be a non-negative number", maxName)
	}
	if lo > hi {
		return nil, fmt.Errorf("%s must not exceed %s", minName, maxName)
	}
	return &domain.PriceRange{Min: lo, Max: hi}, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

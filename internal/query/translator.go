// Package query translates storefront search input into Elasticsearch query DSL.
package query

import (
	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/pkg/pagination"
)

// Aggregation names shared with the response parser.
const (
	AggFacetValues       = "facet_values"
	AggCollections       = "collections"
	AggTotalProducts     = "total_products"
	AggProducts          = "products"
	AggMinPrice          = "min_price"
	AggMaxPrice          = "max_price"
	AggMinPriceWithTax   = "min_price_with_tax"
	AggMaxPriceWithTax   = "max_price_with_tax"
	AggPrices            = "prices"
	AggPricesWithTax     = "prices_with_tax"
	DefaultPriceInterval = int64(1000)
	termsAggSize         = 100
)

var defaultSearchFields = []string{
	"product_name^5",
	"product_variant_name^3",
	"description",
	"sku^2",
}

// Translator builds query bodies. It holds no per-request state.
type Translator struct {
	fields        []string
	priceInterval int64
}

// Option configures a Translator.
type Option func(*Translator)

// WithSearchFields overrides the boosted multi_match field list.
func WithSearchFields(fields ...string) Option {
	return func(t *Translator) { t.fields = fields }
}

// WithPriceInterval sets the histogram bucket width in minor units.
func WithPriceInterval(interval int64) Option {
	return func(t *Translator) {
		if interval > 0 {
			t.priceInterval = interval
		}
	}
}

// NewTranslator creates a Translator.
func NewTranslator(opts ...Option) *Translator {
	t := &Translator{fields: defaultSearchFields, priceInterval: DefaultPriceInterval}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Build returns the search body for in: the bool query, sort, pagination,
// facet and collection aggregations, and product collapsing when grouped.
func (t *Translator) Build(in domain.SearchInput) map[string]any {
	page := pagination.New(in.Page, in.PerPage)

	body := map[string]any{
		"query":            t.boolQuery(in, true),
		"from":             page.Offset,
		"size":             page.PerPage,
		"track_total_hits": true,
		"sort":             t.sort(in),
		"aggs":             t.countAggs(in.GroupByProduct),
	}
	if in.GroupByProduct {
		body["collapse"] = map[string]any{"field": "product_id"}
	}
	return body
}

// PriceRangeQuery returns a size-0 body with min/max and histogram
// aggregations over the same filters as Build, ignoring the price range.
func (t *Translator) PriceRangeQuery(in domain.SearchInput) map[string]any {
	minField, maxField := "price", "price"
	minTax, maxTax := "price_with_tax", "price_with_tax"
	if in.GroupByProduct {
		minField, maxField = "product_price_min", "product_price_max"
		minTax, maxTax = "product_price_with_tax_min", "product_price_with_tax_max"
	}

	return map[string]any{
		"query": t.boolQuery(in, false),
		"size":  0,
		"aggs": map[string]any{
			AggMinPrice:        map[string]any{"min": map[string]any{"field": minField}},
			AggMaxPrice:        map[string]any{"max": map[string]any{"field": maxField}},
			AggMinPriceWithTax: map[string]any{"min": map[string]any{"field": minTax}},
			AggMaxPriceWithTax: map[string]any{"max": map[string]any{"field": maxTax}},
			AggPrices:          histogram(minField, t.priceInterval),
			AggPricesWithTax:   histogram(minTax, t.priceInterval),
		},
	}
}

func histogram(field string, interval int64) map[string]any {
	return map[string]any{
		"histogram": map[string]any{
			"field":         field,
			"interval":      interval,
			"min_doc_count": 1,
		},
	}
}

func (t *Translator) boolQuery(in domain.SearchInput, withPriceRange bool) map[string]any {
	b := map[string]any{}
	if in.Term != "" {
		b["must"] = []any{
			map[string]any{
				"multi_match": map[string]any{
					"query":     in.Term,
					"fields":    t.fields,
					"type":      "best_fields",
					"fuzziness": "AUTO",
				},
			},
		}
	}

	filters := t.filters(in)
	if withPriceRange {
		filters = append(filters, priceFilters(in)...)
	}
	if len(filters) > 0 {
		b["filter"] = filters
	}
	if len(b) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{"bool": b}
}

func term(field string, value any) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

func (t *Translator) filters(in domain.SearchInput) []any {
	var filters []any
	if in.ChannelID != "" {
		filters = append(filters, term("channel_id", in.ChannelID))
	}
	if in.LanguageCode != "" {
		filters = append(filters, term("language_code", in.LanguageCode))
	}
	if !in.IncludeDisabled {
		field := "enabled"
		if in.GroupByProduct {
			field = "product_enabled"
		}
		filters = append(filters, term(field, true))
	}

	if len(in.FacetValueIDs) > 0 {
		if in.FacetValueOperator == domain.OperatorOr {
			filters = append(filters, map[string]any{
				"terms": map[string]any{"facet_value_ids": in.FacetValueIDs},
			})
		} else {
			for _, id := range in.FacetValueIDs {
				filters = append(filters, term("facet_value_ids", id))
			}
		}
	}

	if in.CollectionID != "" {
		filters = append(filters, term("collection_ids", in.CollectionID))
	}
	if in.CollectionSlug != "" {
		filters = append(filters, term("collection_slugs", in.CollectionSlug))
	}
	if in.InStock != nil {
		field := "in_stock"
		if in.GroupByProduct {
			field = "product_in_stock"
		}
		filters = append(filters, term(field, *in.InStock))
	}
	return filters
}

// priceFilters holds the one grouping-dependent rule: grouped results match
// on the product's rollup bounds, ungrouped results on the variant price.
func priceFilters(in domain.SearchInput) []any {
	var filters []any
	add := func(r *domain.PriceRange, scalar, minField, maxField string) {
		if r == nil {
			return
		}
		if in.GroupByProduct {
			filters = append(filters,
				map[string]any{"range": map[string]any{minField: map[string]any{"gte": r.Min}}},
				map[string]any{"range": map[string]any{maxField: map[string]any{"lte": r.Max}}},
			)
			return
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{scalar: map[string]any{"gte": r.Min, "lte": r.Max}},
		})
	}
	add(in.PriceRange, "price", "product_price_min", "product_price_max")
	add(in.PriceRangeWithTax, "price_with_tax", "product_price_with_tax_min", "product_price_with_tax_max")
	return filters
}

func (t *Translator) sort(in domain.SearchInput) []any {
	var sorts []any
	if in.Sort != nil {
		if in.Sort.Name != "" {
			sorts = append(sorts, map[string]any{"product_name.keyword": map[string]any{"order": in.Sort.Name}})
		}
		if in.Sort.Price != "" {
			field := "price"
			if in.GroupByProduct {
				field = "product_price_min"
			}
			sorts = append(sorts, map[string]any{field: map[string]any{"order": in.Sort.Price}})
		}
	}
	if len(sorts) == 0 {
		sorts = append(sorts, map[string]any{"_score": map[string]any{"order": domain.SortDesc}})
	}
	return sorts
}

func (t *Translator) countAggs(grouped bool) map[string]any {
	terms := func(field string) map[string]any {
		agg := map[string]any{
			"terms": map[string]any{"field": field, "size": termsAggSize},
		}
		if grouped {
			agg["aggs"] = map[string]any{
				AggProducts: map[string]any{"cardinality": map[string]any{"field": "product_id"}},
			}
		}
		return agg
	}

	aggs := map[string]any{
		AggFacetValues: terms("facet_value_ids"),
		AggCollections: terms("collection_ids"),
	}
	if grouped {
		aggs[AggTotalProducts] = map[string]any{"cardinality": map[string]any{"field": "product_id"}}
	}
	return aggs
}

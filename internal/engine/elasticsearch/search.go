package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/engine"
	"github.com/utafrali/catalog-indexer/internal/query"
)

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source domain.SearchDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

type termsAgg struct {
	Buckets []struct {
		Key      string `json:"key"`
		DocCount int    `json:"doc_count"`
		Products *countAgg `json:"products"`
	} `json:"buckets"`
}

type countAgg struct {
	Value int `json:"value"`
}

type valueAgg struct {
	Value *float64 `json:"value"`
}

type histogramAgg struct {
	Buckets []struct {
		Key      float64 `json:"key"`
		DocCount int     `json:"doc_count"`
	} `json:"buckets"`
}

// Search runs the translated query against index.
func (e *Engine) Search(ctx context.Context, index string, in domain.SearchInput) (*domain.SearchResult, error) {
	resp, err := e.search(ctx, "elasticsearch search", index, e.translator.Build(in))
	if err != nil {
		return nil, err
	}

	items := make([]domain.SearchDocument, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		items = append(items, hit.Source)
	}

	result := &domain.SearchResult{
		Items:      items,
		TotalItems: resp.Hits.Total.Value,
		TookMs:     resp.Took,
	}

	if in.GroupByProduct {
		var total valueAgg
		if err := aggregation(resp, query.AggTotalProducts, &total); err != nil {
			return nil, err
		}
		result.TotalItems = int(valueOrZero(total.Value))
	}

	var facets, collections termsAgg
	if err := aggregation(resp, query.AggFacetValues, &facets); err != nil {
		return nil, err
	}
	if err := aggregation(resp, query.AggCollections, &collections); err != nil {
		return nil, err
	}

	result.FacetValues = make([]domain.FacetValueCount, 0, len(facets.Buckets))
	for _, b := range facets.Buckets {
		result.FacetValues = append(result.FacetValues, domain.FacetValueCount{FacetValueID: b.Key, Count: bucketCount(b.DocCount, b.Products, in.GroupByProduct)})
	}
	result.Collections = make([]domain.CollectionCount, 0, len(collections.Buckets))
	for _, b := range collections.Buckets {
		result.Collections = append(result.Collections, domain.CollectionCount{CollectionID: b.Key, Count: bucketCount(b.DocCount, b.Products, in.GroupByProduct)})
	}
	return result, nil
}

// PriceRange returns min/max and histogram buckets for the matching documents.
func (e *Engine) PriceRange(ctx context.Context, index string, in domain.SearchInput) (*domain.PriceRangeResult, error) {
	resp, err := e.search(ctx, "elasticsearch price range", index, e.translator.PriceRangeQuery(in))
	if err != nil {
		return nil, err
	}

	var lo, hi, loTax, hiTax valueAgg
	var prices, pricesTax histogramAgg
	for name, dst := range map[string]any{
		query.AggMinPrice:        &lo,
		query.AggMaxPrice:        &hi,
		query.AggMinPriceWithTax: &loTax,
		query.AggMaxPriceWithTax: &hiTax,
		query.AggPrices:          &prices,
		query.AggPricesWithTax:   &pricesTax,
	} {
		if err := aggregation(resp, name, dst); err != nil {
			return nil, err
		}
	}

	return &domain.PriceRangeResult{
		Range:          domain.PriceRange{Min: int64(valueOrZero(lo.Value)), Max: int64(valueOrZero(hi.Value))},
		RangeWithTax:   domain.PriceRange{Min: int64(valueOrZero(loTax.Value)), Max: int64(valueOrZero(hiTax.Value))},
		Buckets:        toBuckets(prices),
		BucketsWithTax: toBuckets(pricesTax),
	}, nil
}

func (e *Engine) search(ctx context.Context, op, index string, body map[string]any) (*esSearchResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal query: %w", op, err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(index),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer closeBody(res)

	if res.IsError() {
		return nil, decodeError(op, res)
	}

	var resp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	return &resp, nil
}

func aggregation(resp *esSearchResponse, name string, dst any) error {
	raw, ok := resp.Aggregations[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, engine.ErrAggregationMissing)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode aggregation %q: %w", name, err)
	}
	return nil
}

// bucketCount prefers the distinct product count when results are grouped.
func bucketCount(docCount int, products *countAgg, grouped bool) int {
	if grouped && products != nil {
		return products.Value
	}
	return docCount
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func toBuckets(h histogramAgg) []domain.PriceBucket {
	out := make([]domain.PriceBucket, 0, len(h.Buckets))
	for _, b := range h.Buckets {
		out = append(out, domain.PriceBucket{From: int64(b.Key), Count: b.DocCount})
	}
	return out
}

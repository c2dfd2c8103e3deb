package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/engine"
	"github.com/utafrali/catalog-indexer/internal/query"
	"github.com/utafrali/catalog-indexer/pkg/pagination"
)

// Search evaluates in with the same filter, sort and grouping rules the
// query translator encodes for Elasticsearch.
func (e *Engine) Search(_ context.Context, index string, in domain.SearchInput) (*domain.SearchResult, error) {
	start := time.Now()

	matched, err := e.match(index, in, true)
	if err != nil {
		return nil, err
	}
	sortDocs(matched, in)

	hits := matched
	if in.GroupByProduct {
		hits = collapse(matched)
	}

	page := pagination.New(in.Page, in.PerPage)
	from := min(page.Offset, len(hits))
	to := min(from+page.PerPage, len(hits))

	return &domain.SearchResult{
		Items:       slices.Clone(hits[from:to]),
		TotalItems:  len(hits),
		FacetValues: facetCounts(matched, in.GroupByProduct),
		Collections: collectionCounts(matched, in.GroupByProduct),
		TookMs:      time.Since(start).Milliseconds(),
	}, nil
}

// PriceRange returns the price spread of the documents matching in,
// ignoring its price range filters.
func (e *Engine) PriceRange(_ context.Context, index string, in domain.SearchInput) (*domain.PriceRangeResult, error) {
	matched, err := e.match(index, in, false)
	if err != nil {
		return nil, err
	}

	res := &domain.PriceRangeResult{Buckets: []domain.PriceBucket{}, BucketsWithTax: []domain.PriceBucket{}}
	if len(matched) == 0 {
		return res, nil
	}

	lowHigh := func(d domain.SearchDocument) (int64, int64, int64, int64) {
		if in.GroupByProduct {
			return d.ProductPriceMin, d.ProductPriceMax, d.ProductPriceWithTaxMin, d.ProductPriceWithTaxMax
		}
		return d.Price, d.Price, d.PriceWithTax, d.PriceWithTax
	}

	lo, hi, loTax, hiTax := lowHigh(matched[0])
	res.Range = domain.PriceRange{Min: lo, Max: hi}
	res.RangeWithTax = domain.PriceRange{Min: loTax, Max: hiTax}
	buckets := map[int64]int{}
	bucketsTax := map[int64]int{}
	for _, d := range matched {
		lo, hi, loTax, hiTax := lowHigh(d)
		res.Range.Min = min(res.Range.Min, lo)
		res.Range.Max = max(res.Range.Max, hi)
		res.RangeWithTax.Min = min(res.RangeWithTax.Min, loTax)
		res.RangeWithTax.Max = max(res.RangeWithTax.Max, hiTax)
		buckets[bucketOf(lo)]++
		bucketsTax[bucketOf(loTax)]++
	}
	res.Buckets = toBuckets(buckets)
	res.BucketsWithTax = toBuckets(bucketsTax)
	return res, nil
}

func bucketOf(v int64) int64 {
	i := query.DefaultPriceInterval
	b := (v / i) * i
	if v < 0 && v%i != 0 {
		b -= i
	}
	return b
}

func toBuckets(m map[int64]int) []domain.PriceBucket {
	out := make([]domain.PriceBucket, 0, len(m))
	for from, n := range m {
		out = append(out, domain.PriceBucket{From: from, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out
}

func (e *Engine) match(index string, in domain.SearchInput, withPrice bool) ([]domain.SearchDocument, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	name, ok := e.resolve(index)
	if !ok {
		return nil, fmt.Errorf("search %s: %w", index, engine.ErrIndexNotFound)
	}

	term := strings.ToLower(in.Term)
	var out []domain.SearchDocument
	for _, d := range e.indices[name] {
		if matches(d, in, term, withPrice) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func matches(d domain.SearchDocument, in domain.SearchInput, term string, withPrice bool) bool {
	if term != "" && !containsTerm(d, term) {
		return false
	}
	if in.ChannelID != "" && d.ChannelID != in.ChannelID {
		return false
	}
	if in.LanguageCode != "" && d.LanguageCode != in.LanguageCode {
		return false
	}
	if !in.IncludeDisabled {
		if in.GroupByProduct && !d.ProductEnabled || !in.GroupByProduct && !d.Enabled {
			return false
		}
	}
	if len(in.FacetValueIDs) > 0 {
		if in.FacetValueOperator == domain.OperatorOr {
			if !slices.ContainsFunc(in.FacetValueIDs, func(id string) bool { return slices.Contains(d.FacetValueIDs, id) }) {
				return false
			}
		} else {
			for _, id := range in.FacetValueIDs {
				if !slices.Contains(d.FacetValueIDs, id) {
					return false
				}
			}
		}
	}
	if in.CollectionID != "" && !slices.Contains(d.CollectionIDs, in.CollectionID) {
		return false
	}
	if in.CollectionSlug != "" && !slices.Contains(d.CollectionSlugs, in.CollectionSlug) {
		return false
	}
	if in.InStock != nil {
		stock := d.InStock
		if in.GroupByProduct {
			stock = d.ProductInStock
		}
		if stock != *in.InStock {
			return false
		}
	}
	if withPrice {
		if !inRange(in.PriceRange, in.GroupByProduct, d.Price, d.ProductPriceMin, d.ProductPriceMax) {
			return false
		}
		if !inRange(in.PriceRangeWithTax, in.GroupByProduct, d.PriceWithTax, d.ProductPriceWithTaxMin, d.ProductPriceWithTaxMax) {
			return false
		}
	}
	return true
}

func inRange(r *domain.PriceRange, grouped bool, price, lo, hi int64) bool {
	if r == nil {
		return true
	}
	if grouped {
		return lo >= r.Min && hi <= r.Max
	}
	return price >= r.Min && price <= r.Max
}

func containsTerm(d domain.SearchDocument, term string) bool {
	for _, s := range []string{d.ProductName, d.ProductVariantName, d.Description, d.SKU} {
		if strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

func sortDocs(docs []domain.SearchDocument, in domain.SearchInput) {
	if in.Sort == nil {
		return
	}
	switch {
	case in.Sort.Name != "":
		desc := in.Sort.Name == domain.SortDesc
		sort.SliceStable(docs, func(i, j int) bool {
			if desc {
				return docs[i].ProductName > docs[j].ProductName
			}
			return docs[i].ProductName < docs[j].ProductName
		})
	case in.Sort.Price != "":
		desc := in.Sort.Price == domain.SortDesc
		price := func(d domain.SearchDocument) int64 {
			if in.GroupByProduct {
				return d.ProductPriceMin
			}
			return d.Price
		}
		sort.SliceStable(docs, func(i, j int) bool {
			if desc {
				return price(docs[i]) > price(docs[j])
			}
			return price(docs[i]) < price(docs[j])
		})
	}
}

// collapse keeps the first document per product, like a field collapse.
func collapse(docs []domain.SearchDocument) []domain.SearchDocument {
	seen := make(map[string]struct{})
	out := make([]domain.SearchDocument, 0, len(docs))
	for _, d := range docs {
		if _, ok := seen[d.ProductID]; ok {
			continue
		}
		seen[d.ProductID] = struct{}{}
		out = append(out, d)
	}
	return out
}

func countBy(docs []domain.SearchDocument, grouped bool, ids func(domain.SearchDocument) []string) map[string]int {
	products := make(map[string]map[string]struct{})
	counts := make(map[string]int)
	for _, d := range docs {
		for _, id := range ids(d) {
			if !grouped {
				counts[id]++
				continue
			}
			if products[id] == nil {
				products[id] = make(map[string]struct{})
			}
			products[id][d.ProductID] = struct{}{}
		}
	}
	for id, set := range products {
		counts[id] = len(set)
	}
	return counts
}

func facetCounts(docs []domain.SearchDocument, grouped bool) []domain.FacetValueCount {
	counts := countBy(docs, grouped, func(d domain.SearchDocument) []string { return d.FacetValueIDs })
	out := make([]domain.FacetValueCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, domain.FacetValueCount{FacetValueID: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FacetValueID < out[j].FacetValueID })
	return out
}

func collectionCounts(docs []domain.SearchDocument, grouped bool) []domain.CollectionCount {
	counts := countBy(docs, grouped, func(d domain.SearchDocument) []string { return d.CollectionIDs })
	out := make([]domain.CollectionCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, domain.CollectionCount{CollectionID: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollectionID < out[j].CollectionID })
	return out
}

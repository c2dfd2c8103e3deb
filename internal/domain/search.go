package domain

// LogicalOperator combines facet value filters.
type LogicalOperator string

const (
	OperatorAnd LogicalOperator = "AND"
	OperatorOr  LogicalOperator = "OR"
)

// SortOrder is an ascending or descending sort direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SearchSort selects the sort field. At most one of Name and Price should be set.
type SearchSort struct {
	Name  SortOrder `json:"name,omitempty"`
	Price SortOrder `json:"price,omitempty"`
}

// PriceRange is an inclusive range in minor units.
type PriceRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// SearchInput is a storefront search request scoped to one channel and language.
type SearchInput struct {
	Term               string          `json:"term"`
	ChannelID          string          `json:"channel_id"`
	LanguageCode       string          `json:"language_code"`
	FacetValueIDs      []string        `json:"facet_value_ids,omitempty"`
	FacetValueOperator LogicalOperator `json:"facet_value_operator,omitempty"`
	CollectionID       string          `json:"collection_id,omitempty"`
	CollectionSlug     string          `json:"collection_slug,omitempty"`
	GroupByProduct     bool            `json:"group_by_product"`
	InStock            *bool           `json:"in_stock,omitempty"`
	PriceRange         *PriceRange     `json:"price_range,omitempty"`
	PriceRangeWithTax  *PriceRange     `json:"price_range_with_tax,omitempty"`
	Sort               *SearchSort     `json:"sort,omitempty"`
	Page               int             `json:"page"`
	PerPage            int             `json:"per_page"`
	IncludeDisabled    bool            `json:"include_disabled,omitempty"`
}

// FacetValueCount is a facet value with the number of matching results.
type FacetValueCount struct {
	FacetValueID string `json:"facet_value_id"`
	Count        int    `json:"count"`
}

// CollectionCount is a collection with the number of matching results.
type CollectionCount struct {
	CollectionID string `json:"collection_id"`
	Count        int    `json:"count"`
}

// SearchResult is one page of search results with facet and collection counts.
type SearchResult struct {
	Items       []SearchDocument  `json:"items"`
	TotalItems  int               `json:"total_items"`
	FacetValues []FacetValueCount `json:"facet_values"`
	Collections []CollectionCount `json:"collections"`
	TookMs      int64             `json:"took_ms"`
}

// PriceBucket is one histogram bucket starting at From.
type PriceBucket struct {
	From  int64 `json:"from"`
	Count int   `json:"count"`
}

// PriceRangeResult describes the price spread of the matching results.
type PriceRangeResult struct {
	Range          PriceRange    `json:"range"`
	RangeWithTax   PriceRange    `json:"range_with_tax"`
	Buckets        []PriceBucket `json:"buckets"`
	BucketsWithTax []PriceBucket `json:"buckets_with_tax"`
}

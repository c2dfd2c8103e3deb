package engine

import (
	"context"
	"errors"

	"github.com/utafrali/catalog-indexer/internal/bulk"
	"github.com/utafrali/catalog-indexer/internal/domain"
)

var (
	// ErrIndexNotFound is returned when a physical index or alias does not exist.
	ErrIndexNotFound = errors.New("index not found")

	// ErrAggregationMissing is returned when a query that requires an
	// aggregation gets none back. It points at a mapping inconsistency.
	ErrAggregationMissing = errors.New("aggregation missing from search response")
)

// AliasActionType is the kind of an alias update step.
type AliasActionType string

const (
	AliasAdd    AliasActionType = "add"
	AliasRemove AliasActionType = "remove"
	// AliasRemoveIndex deletes a physical index as part of the alias update,
	// which lets a legacy index be replaced by an alias of the same name.
	AliasRemoveIndex AliasActionType = "remove_index"
)

// AliasAction is one step of an atomic alias update.
type AliasAction struct {
	Type  AliasActionType
	Index string
	Alias string
}

// AddAlias points alias at index.
func AddAlias(index, alias string) AliasAction {
	return AliasAction{Type: AliasAdd, Index: index, Alias: alias}
}

// RemoveAlias detaches alias from index.
func RemoveAlias(index, alias string) AliasAction {
	return AliasAction{Type: AliasRemove, Index: index, Alias: alias}
}

// RemoveIndex drops index inside the alias update.
func RemoveIndex(index string) AliasAction {
	return AliasAction{Type: AliasRemoveIndex, Index: index}
}

// AssetPatch updates the preview fields of every document that references
// an asset. A Deleted patch clears them.
type AssetPatch struct {
	AssetID    string
	Preview    string
	FocalPoint *domain.FocalPoint
	Deleted    bool
}

// IndexAdmin manages physical indices and the aliases over them.
type IndexAdmin interface {
	// CreateIndex creates a physical index with the production mapping.
	CreateIndex(ctx context.Context, name string) error
	// DeleteIndex drops a physical index. A missing index is not an error.
	DeleteIndex(ctx context.Context, name string) error
	// IndexExists reports whether a physical index or alias with name exists.
	IndexExists(ctx context.Context, name string) (bool, error)
	// ResolveAlias returns the physical indices behind alias, or none when
	// the alias does not exist.
	ResolveAlias(ctx context.Context, alias string) ([]string, error)
	// UpdateAliases applies all actions in one atomic call.
	UpdateAliases(ctx context.Context, actions []AliasAction) error
	// CopyDocuments copies every document of src into dst and returns the count.
	CopyDocuments(ctx context.Context, src, dst string) (int, error)
}

// DocumentStore reads and writes documents of one index or alias.
type DocumentStore interface {
	bulk.Writer
	// DocumentKeys returns the keys of all documents owned by productID.
	DocumentKeys(ctx context.Context, index, productID string) ([]string, error)
	// PatchAsset rewrites asset preview fields in place and returns the
	// number of updated documents.
	PatchAsset(ctx context.Context, index string, patch AssetPatch) (int, error)
}

// Searcher executes storefront queries.
type Searcher interface {
	Search(ctx context.Context, index string, in domain.SearchInput) (*domain.SearchResult, error)
	PriceRange(ctx context.Context, index string, in domain.SearchInput) (*domain.PriceRangeResult, error)
}

// Engine is a search engine backend.
type Engine interface {
	IndexAdmin
	DocumentStore
	Searcher
	Ping(ctx context.Context) error
}

package memory

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sort"
	"sync"

	"github.com/utafrali/catalog-indexer/internal/bulk"
	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/engine"
)

// Engine is an in-memory implementation of engine.Engine. Physical indices
// and the alias table share one RWMutex so alias updates are atomic.
type Engine struct {
	mu      sync.RWMutex
	indices map[string]map[string]domain.SearchDocument
	aliases map[string]string
}

var _ engine.Engine = (*Engine)(nil)

// New creates an empty in-memory engine.
func New() *Engine {
	return &Engine{
		indices: make(map[string]map[string]domain.SearchDocument),
		aliases: make(map[string]string),
	}
}

// Ping always succeeds.
func (e *Engine) Ping(context.Context) error { return nil }

// resolve maps an alias or index name to a physical index. Caller holds mu.
func (e *Engine) resolve(name string) (string, bool) {
	if idx, ok := e.aliases[name]; ok {
		return idx, true
	}
	if _, ok := e.indices[name]; ok {
		return name, true
	}
	return "", false
}

// CreateIndex creates an empty physical index.
func (e *Engine) CreateIndex(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.resolve(name); ok {
		return fmt.Errorf("create index %s: resource_already_exists_exception", name)
	}
	e.indices[name] = make(map[string]domain.SearchDocument)
	return nil
}

// DeleteIndex drops a physical index and any alias pointing at it.
func (e *Engine) DeleteIndex(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	dropIndex(e.indices, e.aliases, name)
	return nil
}

func dropIndex(indices map[string]map[string]domain.SearchDocument, aliases map[string]string, name string) {
	delete(indices, name)
	for alias, idx := range aliases {
		if idx == name {
			delete(aliases, alias)
		}
	}
}

// IndexExists reports whether name is a physical index or an alias.
func (e *Engine) IndexExists(_ context.Context, name string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, ok := e.resolve(name)
	return ok, nil
}

// ResolveAlias returns the index behind alias, or nil.
func (e *Engine) ResolveAlias(_ context.Context, alias string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if idx, ok := e.aliases[alias]; ok {
		return []string{idx}, nil
	}
	return nil, nil
}

// UpdateAliases applies actions all-or-nothing.
func (e *Engine) UpdateAliases(_ context.Context, actions []engine.AliasAction) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	indices := maps.Clone(e.indices)
	aliases := maps.Clone(e.aliases)

	for _, a := range actions {
		switch a.Type {
		case engine.AliasAdd:
			if _, ok := indices[a.Index]; !ok {
				return fmt.Errorf("alias add %s -> %s: %w", a.Alias, a.Index, engine.ErrIndexNotFound)
			}
			if _, clash := indices[a.Alias]; clash {
				return fmt.Errorf("alias add %s: an index with that name exists", a.Alias)
			}
			aliases[a.Alias] = a.Index
		case engine.AliasRemove:
			if aliases[a.Alias] != a.Index {
				return fmt.Errorf("alias remove %s from %s: aliases_not_found_exception", a.Alias, a.Index)
			}
			delete(aliases, a.Alias)
		case engine.AliasRemoveIndex:
			if _, ok := indices[a.Index]; !ok {
				return fmt.Errorf("remove_index %s: %w", a.Index, engine.ErrIndexNotFound)
			}
			dropIndex(indices, aliases, a.Index)
		default:
			return fmt.Errorf("unknown alias action %q", a.Type)
		}
	}

	e.indices = indices
	e.aliases = aliases
	return nil
}

// CopyDocuments copies every document of src into dst.
func (e *Engine) CopyDocuments(_ context.Context, src, dst string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	from, ok := e.resolve(src)
	if !ok {
		return 0, fmt.Errorf("copy from %s: %w", src, engine.ErrIndexNotFound)
	}
	to, ok := e.resolve(dst)
	if !ok {
		return 0, fmt.Errorf("copy to %s: %w", dst, engine.ErrIndexNotFound)
	}

	for key, doc := range e.indices[from] {
		e.indices[to][key] = doc
	}
	return len(e.indices[from]), nil
}

// Bulk applies ops in order and reports one result per operation.
func (e *Engine) Bulk(_ context.Context, index string, ops []bulk.Operation) ([]bulk.ItemResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name, ok := e.resolve(index)
	if !ok {
		return nil, fmt.Errorf("bulk into %s: %w", index, engine.ErrIndexNotFound)
	}
	docs := e.indices[name]

	items := make([]bulk.ItemResult, 0, len(ops))
	for _, op := range ops {
		item := bulk.ItemResult{Action: op.Action, Key: op.Key}
		_, exists := docs[op.Key]

		switch op.Action {
		case bulk.ActionDelete:
			item.Status = http.StatusOK
			if !exists {
				item.Status = http.StatusNotFound
			}
			delete(docs, op.Key)
		case bulk.ActionUpdate:
			switch {
			case op.Document == nil:
				item.Status, item.ErrorType, item.Reason = http.StatusBadRequest, "action_request_validation_exception", "missing document"
			case !exists && !op.Upsert:
				item.Status, item.ErrorType, item.Reason = http.StatusNotFound, "document_missing_exception", "document missing"
			default:
				item.Status = http.StatusOK
				if !exists {
					item.Status = http.StatusCreated
				}
				docs[op.Key] = *op.Document
			}
		default:
			item.Status, item.ErrorType = http.StatusBadRequest, "illegal_argument_exception"
			item.Reason = fmt.Sprintf("unknown action %q", op.Action)
		}
		items = append(items, item)
	}
	return items, nil
}

// DocumentKeys returns the sorted keys of productID's documents.
func (e *Engine) DocumentKeys(_ context.Context, index, productID string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	name, ok := e.resolve(index)
	if !ok {
		return nil, fmt.Errorf("document keys in %s: %w", index, engine.ErrIndexNotFound)
	}

	var keys []string
	for key, doc := range e.indices[name] {
		if doc.ProductID == productID {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// PatchAsset rewrites the preview fields of documents referencing the asset.
func (e *Engine) PatchAsset(_ context.Context, index string, patch engine.AssetPatch) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name, ok := e.resolve(index)
	if !ok {
		return 0, fmt.Errorf("patch asset in %s: %w", index, engine.ErrIndexNotFound)
	}

	updated := 0
	docs := e.indices[name]
	for key, doc := range docs {
		changed := false
		if doc.ProductAssetID != nil && *doc.ProductAssetID == patch.AssetID {
			doc.ProductAssetID, doc.ProductPreview, doc.ProductPreviewFocalPoint = patchFields(patch)
			changed = true
		}
		if doc.ProductVariantAssetID != nil && *doc.ProductVariantAssetID == patch.AssetID {
			doc.ProductVariantAssetID, doc.ProductVariantPreview, doc.ProductVariantPreviewFocalPoint = patchFields(patch)
			changed = true
		}
		if changed {
			docs[key] = doc
			updated++
		}
	}
	return updated, nil
}

func patchFields(p engine.AssetPatch) (*string, *string, *domain.FocalPoint) {
	if p.Deleted {
		return nil, nil, nil
	}
	id, preview := p.AssetID, p.Preview
	return &id, &preview, p.FocalPoint
}

// Documents returns a snapshot of the documents behind an index or alias,
// sorted by key.
func (e *Engine) Documents(index string) []domain.SearchDocument {
	e.mu.RLock()
	defer e.mu.RUnlock()

	name, ok := e.resolve(index)
	if !ok {
		return nil
	}
	keys := slices.Sorted(maps.Keys(e.indices[name]))
	docs := make([]domain.SearchDocument, 0, len(keys))
	for _, k := range keys {
		docs = append(docs, e.indices[name][k])
	}
	return docs
}

// Indices returns the sorted physical index names.
func (e *Engine) Indices() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return slices.Sorted(maps.Keys(e.indices))
}

package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/utafrali/catalog-indexer/internal/engine"
)

// CreateIndex creates a physical index with the production mapping.
func (e *Engine) CreateIndex(ctx context.Context, name string) error {
	res, err := e.client.Indices.Create(
		name,
		e.client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch create index: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return decodeError("elasticsearch create index", res)
	}
	e.logger.InfoContext(ctx, "elasticsearch index created", "index", name)
	return nil
}

// DeleteIndex removes a physical index. A 404 response is treated as success.
func (e *Engine) DeleteIndex(ctx context.Context, name string) error {
	res, err := e.client.Indices.Delete(
		[]string{name},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer closeBody(res)

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return decodeError("elasticsearch delete index", res)
	}
	e.logger.InfoContext(ctx, "elasticsearch index deleted", "index", name)
	return nil
}

// IndexExists reports whether an index or alias called name exists.
func (e *Engine) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := e.client.Indices.Exists(
		[]string{name},
		e.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("elasticsearch index exists: %w", err)
	}
	defer closeBody(res)

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, decodeError("elasticsearch index exists", res)
	}
}

// ResolveAlias returns the sorted physical indices behind alias. A missing
// alias yields no indices and no error.
func (e *Engine) ResolveAlias(ctx context.Context, alias string) ([]string, error) {
	res, err := e.client.Indices.GetAlias(
		e.client.Indices.GetAlias.WithName(alias),
		e.client.Indices.GetAlias.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch get alias: %w", err)
	}
	defer closeBody(res)

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, decodeError("elasticsearch get alias", res)
	}

	// {"catalog_1700000000000": {"aliases": {"catalog": {}}}}
	var body map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("elasticsearch get alias: decode response: %w", err)
	}
	indices := make([]string, 0, len(body))
	for name := range body {
		indices = append(indices, name)
	}
	sort.Strings(indices)
	return indices, nil
}

// UpdateAliases sends all actions in a single _aliases request, which
// Elasticsearch applies atomically.
func (e *Engine) UpdateAliases(ctx context.Context, actions []engine.AliasAction) error {
	payload := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		spec := map[string]any{"index": a.Index}
		if a.Type != engine.AliasRemoveIndex {
			spec["alias"] = a.Alias
		}
		payload = append(payload, map[string]any{string(a.Type): spec})
	}

	data, err := json.Marshal(map[string]any{"actions": payload})
	if err != nil {
		return fmt.Errorf("elasticsearch update aliases: marshal actions: %w", err)
	}

	res, err := e.client.Indices.UpdateAliases(
		bytes.NewReader(data),
		e.client.Indices.UpdateAliases.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch update aliases: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return decodeError("elasticsearch update aliases", res)
	}
	return nil
}

// CopyDocuments runs a synchronous _reindex from src into dst.
func (e *Engine) CopyDocuments(ctx context.Context, src, dst string) (int, error) {
	data, err := json.Marshal(map[string]any{
		"source": map[string]any{"index": src},
		"dest":   map[string]any{"index": dst},
	})
	if err != nil {
		return 0, fmt.Errorf("elasticsearch reindex: marshal body: %w", err)
	}

	res, err := e.client.Reindex(
		bytes.NewReader(data),
		e.client.Reindex.WithWaitForCompletion(true),
		e.client.Reindex.WithRefresh(true),
		e.client.Reindex.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch reindex: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return 0, decodeError("elasticsearch reindex", res)
	}

	var body struct {
		Total    int               `json:"total"`
		Failures []json.RawMessage `json:"failures"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("elasticsearch reindex: decode response: %w", err)
	}
	if len(body.Failures) > 0 {
		return body.Total, fmt.Errorf("elasticsearch reindex: %d failures copying %s to %s", len(body.Failures), src, dst)
	}
	return body.Total, nil
}

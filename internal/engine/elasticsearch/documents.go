package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/utafrali/catalog-indexer/internal/engine"
)

// maxKeysPerProduct bounds the key lookup. A product has one document per
// variant, channel and language, far below this.
const maxKeysPerProduct = 10000

// patchAssetScript rewrites the preview fields on whichever side of the
// document references the asset. A null preview clears the asset id too.
const patchAssetScript = `
if (ctx._source.product_asset_id == params.asset_id) {
  ctx._source.product_asset_id = params.preview == null ? null : params.asset_id;
  ctx._source.product_preview = params.preview;
  ctx._source.product_preview_focal_point = params.focal_point;
}
if (ctx._source.product_variant_asset_id == params.asset_id) {
  ctx._source.product_variant_asset_id = params.preview == null ? null : params.asset_id;
  ctx._source.product_variant_preview = params.preview;
  ctx._source.product_variant_preview_focal_point = params.focal_point;
}`

// DocumentKeys returns the ids of every document owned by productID.
func (e *Engine) DocumentKeys(ctx context.Context, index, productID string) ([]string, error) {
	data, err := json.Marshal(map[string]any{
		"query":   map[string]any{"term": map[string]any{"product_id": productID}},
		"_source": false,
		"size":    maxKeysPerProduct,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch document keys: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(index),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch document keys: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return nil, decodeError("elasticsearch document keys", res)
	}

	var body struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("elasticsearch document keys: decode response: %w", err)
	}

	keys := make([]string, 0, len(body.Hits.Hits))
	for _, h := range body.Hits.Hits {
		keys = append(keys, h.ID)
	}
	return keys, nil
}

// PatchAsset updates preview fields in place with an update_by_query.
// Version conflicts are skipped; the next sync of the product rewrites them.
func (e *Engine) PatchAsset(ctx context.Context, index string, patch engine.AssetPatch) (int, error) {
	var preview any
	var focal any
	if !patch.Deleted {
		preview = patch.Preview
		if patch.FocalPoint != nil {
			focal = patch.FocalPoint
		}
	}

	data, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"term": map[string]any{"product_asset_id": patch.AssetID}},
					map[string]any{"term": map[string]any{"product_variant_asset_id": patch.AssetID}},
				},
				"minimum_should_match": 1,
			},
		},
		"script": map[string]any{
			"lang":   "painless",
			"source": patchAssetScript,
			"params": map[string]any{
				"asset_id":    patch.AssetID,
				"preview":     preview,
				"focal_point": focal,
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("elasticsearch patch asset: marshal body: %w", err)
	}

	res, err := e.client.UpdateByQuery(
		[]string{index},
		e.client.UpdateByQuery.WithBody(bytes.NewReader(data)),
		e.client.UpdateByQuery.WithConflicts("proceed"),
		e.client.UpdateByQuery.WithRefresh(true),
		e.client.UpdateByQuery.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch patch asset: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return 0, decodeError("elasticsearch patch asset", res)
	}

	var body struct {
		Updated          int `json:"updated"`
		VersionConflicts int `json:"version_conflicts"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("elasticsearch patch asset: decode response: %w", err)
	}
	if body.VersionConflicts > 0 {
		e.logger.WarnContext(ctx, "asset patch skipped conflicting documents",
			"asset_id", patch.AssetID, "conflicts", body.VersionConflicts)
	}
	return body.Updated, nil
}

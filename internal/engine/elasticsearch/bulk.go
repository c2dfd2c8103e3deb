package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/catalog-indexer/internal/bulk"
	"github.com/utafrali/catalog-indexer/internal/domain"
)

type bulkMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

// Documents are always written whole. A partial "doc" update would merge
// objects and keep custom_fields keys the new document no longer has, so an
// upsert is sent as an index action and a plain update replaces _source.
const actionIndex = "index"

const replaceSourceScript = "ctx._source = params.doc"

type bulkReplace struct {
	Script struct {
		Source string         `json:"source"`
		Lang   string         `json:"lang"`
		Params map[string]any `json:"params"`
	} `json:"script"`
}

func replaceSource(doc *domain.SearchDocument) bulkReplace {
	var r bulkReplace
	r.Script.Source = replaceSourceScript
	r.Script.Lang = "painless"
	r.Script.Params = map[string]any{"doc": doc}
	return r
}

// wireAction is the bulk action op is sent as.
func wireAction(op bulk.Operation) string {
	if op.Action == bulk.ActionUpdate && op.Upsert {
		return actionIndex
	}
	return string(op.Action)
}

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
// Each item holds exactly one key, the action name.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// Bulk encodes ops as NDJSON and sends them in one _bulk request.
func (e *Engine) Bulk(ctx context.Context, index string, ops []bulk.Operation) ([]bulk.ItemResult, error) {
	if len(ops) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, op := range ops {
		action := wireAction(op)
		meta := map[string]bulkMeta{action: {Index: index, ID: op.Key}}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk: encode action: %w", err)
		}

		var body any
		switch action {
		case actionIndex:
			body = op.Document
		case string(bulk.ActionUpdate):
			body = replaceSource(op.Document)
		default:
			continue
		}
		if err := enc.Encode(body); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk: encode document: %w", err)
		}
	}

	opts := []func(*esapi.BulkRequest){
		e.client.Bulk.WithIndex(index),
		e.client.Bulk.WithContext(ctx),
	}
	if e.refresh != "" {
		opts = append(opts, e.client.Bulk.WithRefresh(e.refresh))
	}

	res, err := e.client.Bulk(bytes.NewReader(buf.Bytes()), opts...)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch bulk: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return nil, decodeError("elasticsearch bulk", res)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, fmt.Errorf("elasticsearch bulk: decode response: %w", err)
	}

	items := make([]bulk.ItemResult, 0, len(bulkResp.Items))
	for _, item := range bulkResp.Items {
		for action, r := range item {
			if action == actionIndex {
				action = string(bulk.ActionUpdate)
			}
			items = append(items, bulk.ItemResult{
				Action:    bulk.Action(action),
				Key:       r.ID,
				Status:    r.Status,
				ErrorType: r.Error.Type,
				Reason:    r.Error.Reason,
			})
		}
	}
	e.logger.DebugContext(ctx, "bulk request completed", "index", index, "operations", len(ops), "errors", bulkResp.Errors)
	return items, nil
}

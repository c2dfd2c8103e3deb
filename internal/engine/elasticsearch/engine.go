// Package elasticsearch implements the engine interfaces on top of the
// go-elasticsearch v8 client.
package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/catalog-indexer/internal/engine"
	"github.com/utafrali/catalog-indexer/internal/query"
)

// Config holds connection settings for the Elasticsearch cluster.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	// Transport wraps outgoing requests, typically with a circuit breaker.
	Transport http.RoundTripper
	// Refresh is passed to bulk calls ("", "true", "false" or "wait_for").
	Refresh string
}

// Engine is an Elasticsearch-backed implementation of engine.Engine.
type Engine struct {
	client     *elasticsearch.Client
	translator *query.Translator
	refresh    string
	logger     *slog.Logger
}

var _ engine.Engine = (*Engine)(nil)

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates an Elasticsearch engine. It does not touch any index.
func New(cfg Config, translator *query.Translator, logger *slog.Logger) (*Engine, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}
	if translator == nil {
		translator = query.NewTranslator()
	}

	return &Engine{
		client:     client,
		translator: translator,
		refresh:    cfg.Refresh,
		logger:     logger,
	}, nil
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// decodeError turns an error response into a Go error. Missing indices map to
// engine.ErrIndexNotFound.
func decodeError(op string, res *esapi.Response) error {
	var errResp esErrorResponse
	body, _ := io.ReadAll(res.Body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Type != "" {
		if errResp.Error.Type == "index_not_found_exception" {
			return fmt.Errorf("%s: %s: %w", op, errResp.Error.Reason, engine.ErrIndexNotFound)
		}
		return fmt.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, res.Status())
}

func closeBody(res *esapi.Response) {
	_ = res.Body.Close()
}

// Package indexer keeps the search index in step with the relational
// catalog: per-product document fan-out and full alias-swapping reindexes.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/catalog-indexer/internal/bulk"
	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/engine"
	"github.com/utafrali/catalog-indexer/internal/repository"
	"github.com/utafrali/catalog-indexer/pkg/tracing"
)

var tracer = tracing.Tracer("internal/indexer")

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithConcurrency sets how many products are processed in parallel.
func WithConcurrency(n int) Option {
	return func(s *Synchronizer) { s.queue = newWorkQueue(n) }
}

// WithProductMapping adds a custom product field stored as "product-<name>".
func WithProductMapping(name string, fn ProductFieldFunc) Option {
	return func(s *Synchronizer) {
		s.builder.productFields = append(s.builder.productFields, productField{name: name, fn: fn})
	}
}

// WithVariantMapping adds a custom variant field stored as "variant-<name>".
func WithVariantMapping(name string, fn VariantFieldFunc) Option {
	return func(s *Synchronizer) {
		s.builder.variantFields = append(s.builder.variantFields, variantField{name: name, fn: fn})
	}
}

// Synchronizer recomputes the documents of products and writes them to the
// index behind a public alias. Every entry point reduces to "recompute all
// documents for these product ids".
type Synchronizer struct {
	catalog  repository.CatalogRepository
	store    engine.DocumentStore
	executor *bulk.Executor
	index    string
	builder  documentBuilder
	queue    *workQueue
	logger   *slog.Logger
}

// NewSynchronizer creates a synchronizer writing to index, normally the
// public alias.
func NewSynchronizer(catalog repository.CatalogRepository, store engine.DocumentStore, index string, logger *slog.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		catalog:  catalog,
		store:    store,
		executor: bulk.NewExecutor(store, logger),
		index:    index,
		queue:    newWorkQueue(DefaultConcurrency),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Index returns the index or alias the synchronizer writes to.
func (s *Synchronizer) Index() string { return s.index }

// SyncProducts recomputes every document of the given products. Failures of
// single products are joined and returned after all siblings finished.
func (s *Synchronizer) SyncProducts(ctx context.Context, rc domain.RequestContext, productIDs []string) error {
	return s.syncAll(ctx, rc, productIDs, nil, nil)
}

// SyncVariants resyncs the products owning variantIDs.
func (s *Synchronizer) SyncVariants(ctx context.Context, rc domain.RequestContext, variantIDs []string) error {
	productIDs, err := s.catalog.ProductIDsForVariants(ctx, variantIDs)
	if err != nil {
		return fmt.Errorf("resolve products of %d variants: %w", len(variantIDs), err)
	}
	return s.SyncProducts(ctx, rc, productIDs)
}

// DeleteVariants resyncs the owning products so the deleted variants'
// documents are swept.
func (s *Synchronizer) DeleteVariants(ctx context.Context, rc domain.RequestContext, variantIDs []string) error {
	return s.SyncVariants(ctx, rc, variantIDs)
}

// AssignProductToChannel indexes a product into a newly assigned channel.
func (s *Synchronizer) AssignProductToChannel(ctx context.Context, rc domain.RequestContext, productID, channelID string) error {
	s.logger.DebugContext(ctx, "product assigned to channel", slog.String("product_id", productID), slog.String("channel_id", channelID))
	return s.SyncProducts(ctx, rc, []string{productID})
}

// RemoveProductFromChannel drops a product's documents from a channel. The
// channel's keys are swept even when the product no longer lists it.
func (s *Synchronizer) RemoveProductFromChannel(ctx context.Context, rc domain.RequestContext, productID, channelID string) error {
	s.logger.DebugContext(ctx, "product removed from channel", slog.String("product_id", productID), slog.String("channel_id", channelID))
	return s.syncAll(ctx, rc, []string{productID}, []string{channelID}, nil)
}

// AssignVariantToChannel indexes a variant into a newly assigned channel.
func (s *Synchronizer) AssignVariantToChannel(ctx context.Context, rc domain.RequestContext, variantID, channelID string) error {
	s.logger.DebugContext(ctx, "variant assigned to channel", slog.String("variant_id", variantID), slog.String("channel_id", channelID))
	return s.SyncVariants(ctx, rc, []string{variantID})
}

// RemoveVariantFromChannel drops a variant's documents from a channel.
func (s *Synchronizer) RemoveVariantFromChannel(ctx context.Context, rc domain.RequestContext, variantID, channelID string) error {
	s.logger.DebugContext(ctx, "variant removed from channel", slog.String("variant_id", variantID), slog.String("channel_id", channelID))
	productIDs, err := s.catalog.ProductIDsForVariants(ctx, []string{variantID})
	if err != nil {
		return fmt.Errorf("resolve product of variant %s: %w", variantID, err)
	}
	return s.syncAll(ctx, rc, productIDs, []string{channelID}, nil)
}

// DeleteProduct removes every document the products could own.
func (s *Synchronizer) DeleteProduct(ctx context.Context, rc domain.RequestContext, productIDs []string) error {
	ctx, span := s.startSpan(ctx, "indexer.DeleteProduct", rc, len(productIDs))
	defer span.End()

	err := s.queue.run(ctx, productIDs, s.deleteProduct, nil)
	tracing.RecordError(span, err)
	return err
}

// UpdateAsset rewrites the preview fields of documents showing asset.
func (s *Synchronizer) UpdateAsset(ctx context.Context, asset domain.Asset) error {
	n, err := s.store.PatchAsset(ctx, s.index, engine.AssetPatch{
		AssetID:    asset.ID,
		Preview:    asset.Preview,
		FocalPoint: asset.FocalPoint,
	})
	if err != nil {
		return fmt.Errorf("patch asset %s: %w", asset.ID, err)
	}
	s.logger.InfoContext(ctx, "asset previews updated", slog.String("asset_id", asset.ID), slog.Int("documents", n))
	return nil
}

// DeleteAsset clears the preview fields of documents showing the asset.
func (s *Synchronizer) DeleteAsset(ctx context.Context, assetID string) error {
	n, err := s.store.PatchAsset(ctx, s.index, engine.AssetPatch{AssetID: assetID, Deleted: true})
	if err != nil {
		return fmt.Errorf("clear asset %s: %w", assetID, err)
	}
	s.logger.InfoContext(ctx, "asset previews cleared", slog.String("asset_id", assetID), slog.Int("documents", n))
	return nil
}

// syncAll resyncs productIDs. Keys in removedChannels are deletion
// candidates on top of the products' current channels.
func (s *Synchronizer) syncAll(ctx context.Context, rc domain.RequestContext, productIDs, removedChannels []string, done func(string, error)) error {
	ctx, span := s.startSpan(ctx, "indexer.SyncProducts", rc, len(productIDs))
	defer span.End()

	scope := newSyncScope(s.catalog)
	err := s.queue.run(ctx, productIDs, func(ctx context.Context, id string) error {
		return s.syncProduct(ctx, scope, id, removedChannels)
	}, done)
	tracing.RecordError(span, err)
	return err
}

func (s *Synchronizer) syncProduct(ctx context.Context, scope *syncScope, productID string, removedChannels []string) (err error) {
	start := time.Now()
	defer func() {
		productsSynced.WithLabelValues("sync", outcome(err)).Inc()
		productSyncDuration.WithLabelValues("sync").Observe(time.Since(start).Seconds())
	}()

	p, candidates, err := s.loadForWrite(ctx, productID, removedChannels)
	if err != nil {
		return err
	}
	if p == nil {
		s.logger.DebugContext(ctx, "product no longer exists, removing its documents",
			slog.String("product_id", productID), slog.Int("documents", len(candidates)))
		return s.write(ctx, candidates, nil)
	}
	if p.IsDeleted() {
		return s.write(ctx, candidates, nil)
	}

	docs, err := s.buildDocuments(ctx, scope, p)
	if err != nil {
		return err
	}
	return s.write(ctx, candidates, docs)
}

func (s *Synchronizer) deleteProduct(ctx context.Context, productID string) (err error) {
	start := time.Now()
	defer func() {
		productsSynced.WithLabelValues("delete", outcome(err)).Inc()
		productSyncDuration.WithLabelValues("delete").Observe(time.Since(start).Seconds())
	}()

	_, candidates, err := s.loadForWrite(ctx, productID, nil)
	if err != nil {
		return err
	}
	return s.write(ctx, candidates, nil)
}

// loadForWrite returns the product, nil when it is gone for good, and every
// key it may own: the keys found in the index plus the keys derived from the
// catalog. The index lookup is a search and misses unrefreshed writes, so
// the catalog side alone must cover every document the product can have.
func (s *Synchronizer) loadForWrite(ctx context.Context, productID string, removedChannels []string) (*domain.Product, []string, error) {
	products, err := s.catalog.FindProducts(ctx, []string{productID}, true)
	if err != nil {
		return nil, nil, fmt.Errorf("load product: %w", err)
	}
	keys, err := s.store.DocumentKeys(ctx, s.index, productID)
	if err != nil {
		return nil, nil, fmt.Errorf("load document keys: %w", err)
	}
	if len(products) == 0 {
		return nil, keys, nil
	}
	p := &products[0]

	// Soft-deleted variants are gone from p but their documents may not be.
	all, err := s.catalog.FindVariants(ctx, []string{productID}, true)
	if err != nil {
		return nil, nil, fmt.Errorf("load variants: %w", err)
	}
	return p, append(keys, plausibleKeys(p, all, removedChannels)...), nil
}

// plausibleKeys lists channel x language x entity for the product's channels
// and extraChannels, the languages of the product and of every variant, and
// every variant id plus the placeholder id.
func plausibleKeys(p *domain.Product, variants []domain.ProductVariant, extraChannels []string) []string {
	withAll := *p
	withAll.Variants = append(append([]domain.ProductVariant(nil), p.Variants...), variants...)
	langs := withAll.LanguageCodes()
	entities := dedupe(append(withAll.VariantIDs(), domain.SyntheticVariantID(p.ID)))
	channels := dedupe(append(append([]string(nil), p.ChannelIDs...), extraChannels...))

	keys := make([]string, 0, len(channels)*len(langs)*len(entities))
	for _, ch := range channels {
		for _, lang := range langs {
			for _, id := range entities {
				keys = append(keys, domain.DocumentKey(ch, id, lang))
			}
		}
	}
	return keys
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *Synchronizer) buildDocuments(ctx context.Context, scope *syncScope, p *domain.Product) ([]domain.SearchDocument, error) {
	variants := effectiveVariants(p)
	langs := p.LanguageCodes()

	var docs []domain.SearchDocument
	for _, channelID := range p.ChannelIDs {
		ch, ok, err := scope.channel(ctx, channelID)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.logger.WarnContext(ctx, "product assigned to unknown channel",
				slog.String("product_id", p.ID), slog.String("channel_id", channelID))
			continue
		}

		view, err := newChannelView(ctx, scope.prices, ch, variants)
		if err != nil {
			return nil, err
		}
		for _, lang := range langs {
			docs = append(docs, s.builder.build(p, view, lang)...)
		}
	}
	return docs, nil
}

// write deletes every candidate key not rewritten by docs and upserts docs,
// in one bulk call.
func (s *Synchronizer) write(ctx context.Context, candidates []string, docs []domain.SearchDocument) error {
	fresh := make(map[string]struct{}, len(docs))
	for i := range docs {
		fresh[docs[i].Key()] = struct{}{}
	}

	stale := make(map[string]struct{})
	for _, key := range candidates {
		if _, ok := fresh[key]; !ok {
			stale[key] = struct{}{}
		}
	}
	deletes := make([]string, 0, len(stale))
	for key := range stale {
		deletes = append(deletes, key)
	}
	sort.Strings(deletes)

	ops := make([]bulk.Operation, 0, len(deletes)+len(docs))
	for _, key := range deletes {
		ops = append(ops, bulk.Delete(key))
	}
	for i := range docs {
		ops = append(ops, bulk.Update(docs[i].Key(), &docs[i], true))
	}

	_, err := s.executor.Execute(ctx, s.index, ops)
	return err
}

func (s *Synchronizer) startSpan(ctx context.Context, name string, rc domain.RequestContext, n int) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("index", s.index),
		attribute.String("channel_id", rc.ChannelID),
		attribute.String("language_code", rc.LanguageCode),
		attribute.Int("products", n),
	))
}

// syncScope holds the caches of one top-level call. Channels are keyed by
// channel id and tax rates by zone id.
type syncScope struct {
	catalog repository.CatalogRepository
	prices  *PriceCalculator

	mu       sync.Mutex
	channels map[string]domain.Channel
}

func newSyncScope(catalog repository.CatalogRepository) *syncScope {
	return &syncScope{catalog: catalog, prices: NewPriceCalculator(catalog)}
}

func (sc *syncScope) channel(ctx context.Context, id string) (domain.Channel, bool, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.channels == nil {
		list, err := sc.catalog.ListChannels(ctx)
		if err != nil {
			return domain.Channel{}, false, fmt.Errorf("load channels: %w", err)
		}
		sc.channels = make(map[string]domain.Channel, len(list))
		for _, ch := range list {
			sc.channels[ch.ID] = ch
		}
	}
	ch, ok := sc.channels[id]
	return ch, ok, nil
}

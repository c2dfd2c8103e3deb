package indexer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalog-indexer/internal/bulk"
	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/engine"
	memengine "github.com/utafrali/catalog-indexer/internal/engine/memory"
	"github.com/utafrali/catalog-indexer/internal/repository"
	memrepo "github.com/utafrali/catalog-indexer/internal/repository/memory"
)

const testAlias = "catalog"

var rc = domain.RequestContext{ChannelID: "C1", LanguageCode: "en"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	catalog *memrepo.Catalog
	engine  *memengine.Engine
	sync    *Synchronizer
}

// newFixture returns a catalog with channels C1 (en, USD, net prices) and
// C2 (de, EUR, gross prices), a 20% rate for TC1 in both zones, and an
// engine whose alias points at one empty physical index.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	catalog := memrepo.NewCatalog()
	catalog.PutChannel(domain.Channel{ID: "C1", Code: "default", DefaultLanguageCode: "en", DefaultCurrencyCode: "USD", DefaultTaxZoneID: "Z1"})
	catalog.PutChannel(domain.Channel{ID: "C2", Code: "eu", DefaultLanguageCode: "de", DefaultCurrencyCode: "EUR", PricesIncludeTax: true, DefaultTaxZoneID: "Z2"})
	catalog.PutTaxRate(domain.TaxRate{ID: "TR1", CategoryID: "TC1", ZoneID: "Z1", Value: decimal.NewFromInt(20), Enabled: true})
	catalog.PutTaxRate(domain.TaxRate{ID: "TR2", CategoryID: "TC1", ZoneID: "Z2", Value: decimal.NewFromInt(20), Enabled: true})

	eng := memengine.New()
	ctx := context.Background()
	require.NoError(t, eng.CreateIndex(ctx, "catalog_0"))
	require.NoError(t, eng.UpdateAliases(ctx, []engine.AliasAction{engine.AddAlias("catalog_0", testAlias)}))

	return &fixture{
		catalog: catalog,
		engine:  eng,
		sync:    NewSynchronizer(catalog, eng, testAlias, testLogger(), opts...),
	}
}

func (f *fixture) docs() map[string]domain.SearchDocument {
	out := make(map[string]domain.SearchDocument)
	for _, d := range f.engine.Documents(testAlias) {
		out[d.Key()] = d
	}
	return out
}

func (f *fixture) keys() []string {
	var keys []string
	for _, d := range f.engine.Documents(testAlias) {
		keys = append(keys, d.Key())
	}
	return keys
}

func translations(name string, langs ...string) []domain.Translation {
	out := make([]domain.Translation, 0, len(langs))
	for _, l := range langs {
		out = append(out, domain.Translation{LanguageCode: l, Name: name + " " + l, Slug: "slug-" + l, Description: name + " description"})
	}
	return out
}

func variant(id, productID string, price int64, channels ...string) domain.ProductVariant {
	prices := make([]domain.ChannelPrice, 0, len(channels))
	for _, ch := range channels {
		prices = append(prices, domain.ChannelPrice{ChannelID: ch, Amount: price})
	}
	return domain.ProductVariant{
		ID:             id,
		ProductID:      productID,
		SKU:            "SKU-" + id,
		Enabled:        true,
		Translations:   translations("Variant "+id, "en"),
		ChannelIDs:     channels,
		Prices:         prices,
		TaxCategoryID:  "TC1",
		TrackInventory: true,
		StockOnHand:    10,
	}
}

func product(id string, channels []string, langs []string, variants ...domain.ProductVariant) domain.Product {
	return domain.Product{
		ID:           id,
		Enabled:      true,
		Translations: translations("Product "+id, langs...),
		ChannelIDs:   channels,
		Variants:     variants,
	}
}

// recordingStore captures every bulk batch written through it.
type recordingStore struct {
	*memengine.Engine

	mu      sync.Mutex
	batches [][]bulk.Operation
}

func (r *recordingStore) Bulk(ctx context.Context, index string, ops []bulk.Operation) ([]bulk.ItemResult, error) {
	r.mu.Lock()
	r.batches = append(r.batches, append([]bulk.Operation(nil), ops...))
	r.mu.Unlock()
	return r.Engine.Bulk(ctx, index, ops)
}

func (r *recordingStore) deletedKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for _, batch := range r.batches {
		for _, op := range batch {
			if op.Action == bulk.ActionDelete {
				keys = append(keys, op.Key)
			}
		}
	}
	return keys
}

var errCatalogDown = errors.New("catalog unavailable")

// failingCatalog fails FindProducts for the listed product ids.
type failingCatalog struct {
	repository.CatalogRepository
	failFor map[string]bool
}

func (c *failingCatalog) FindProducts(ctx context.Context, ids []string, includeDeleted bool) ([]domain.Product, error) {
	for _, id := range ids {
		if c.failFor[id] {
			return nil, errCatalogDown
		}
	}
	return c.CatalogRepository.FindProducts(ctx, ids, includeDeleted)
}

// countingCatalog counts tax rate and channel lookups.
type countingCatalog struct {
	repository.CatalogRepository

	mu            sync.Mutex
	taxRateCalls  map[string]int
	channelsCalls int
}

func (c *countingCatalog) TaxRatesForZone(ctx context.Context, zoneID string) ([]domain.TaxRate, error) {
	c.mu.Lock()
	if c.taxRateCalls == nil {
		c.taxRateCalls = make(map[string]int)
	}
	c.taxRateCalls[zoneID]++
	c.mu.Unlock()
	return c.CatalogRepository.TaxRatesForZone(ctx, zoneID)
}

func (c *countingCatalog) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	c.mu.Lock()
	c.channelsCalls++
	c.mu.Unlock()
	return c.CatalogRepository.ListChannels(ctx)
}

// unrefreshedStore finds no document keys, like a search against an index
// that has not refreshed since the last writes.
type unrefreshedStore struct {
	*memengine.Engine
}

func (unrefreshedStore) DocumentKeys(context.Context, string, string) ([]string, error) {
	return nil, nil
}

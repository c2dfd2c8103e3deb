// Package memory provides an in-process CatalogRepository for tests and
// local development.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/repository"
)

// Catalog is an in-memory catalog. Products are stored with all of their
// variants; soft-deleted variants are filtered on read.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	channels map[string]domain.Channel
	taxRates []domain.TaxRate
}

var _ repository.CatalogRepository = (*Catalog)(nil)

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		products: make(map[string]domain.Product),
		channels: make(map[string]domain.Channel),
	}
}

// PutProduct inserts or replaces a product and its variants.
func (c *Catalog) PutProduct(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

// RemoveProduct hard-deletes a product.
func (c *Catalog) RemoveProduct(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
}

// UpdateProduct applies fn to a stored product. It reports whether the
// product existed.
func (c *Catalog) UpdateProduct(id string, fn func(*domain.Product)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[id]
	if !ok {
		return false
	}
	fn(&p)
	c.products[id] = p
	return true
}

// PutChannel inserts or replaces a channel.
func (c *Catalog) PutChannel(ch domain.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[ch.ID] = ch
}

// PutTaxRate appends a tax rate.
func (c *Catalog) PutTaxRate(r domain.TaxRate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taxRates = append(c.taxRates, r)
}

func (c *Catalog) FindProducts(_ context.Context, ids []string, includeDeleted bool) ([]domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.Product
	for _, id := range slices.Compact(slices.Sorted(slices.Values(ids))) {
		p, ok := c.products[id]
		if !ok || (p.IsDeleted() && !includeDeleted) {
			continue
		}
		live := make([]domain.ProductVariant, 0, len(p.Variants))
		for _, v := range p.Variants {
			if v.DeletedAt == nil {
				live = append(live, v)
			}
		}
		p.Variants = live
		out = append(out, p)
	}
	return out, nil
}

func (c *Catalog) FindVariants(_ context.Context, productIDs []string, includeDeleted bool) ([]domain.ProductVariant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.ProductVariant
	for _, id := range slices.Compact(slices.Sorted(slices.Values(productIDs))) {
		for _, v := range c.products[id].Variants {
			if v.DeletedAt == nil || includeDeleted {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

func (c *Catalog) ProductIDsForVariants(_ context.Context, variantIDs []string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set := make(map[string]struct{})
	for _, p := range c.products {
		for _, v := range p.Variants {
			if slices.Contains(variantIDs, v.ID) {
				set[p.ID] = struct{}{}
			}
		}
	}
	return sortedKeys(set), nil
}

func (c *Catalog) ListProductIDs(_ context.Context, deleted bool) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set := make(map[string]struct{})
	for id, p := range c.products {
		if p.IsDeleted() == deleted {
			set[id] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func (c *Catalog) ListChannels(_ context.Context) ([]domain.Channel, error) {
	return c.channelsWhere(func(domain.Channel) bool { return true }), nil
}

func (c *Catalog) ChannelsByDefaultTaxZone(_ context.Context, zoneID string) ([]domain.Channel, error) {
	return c.channelsWhere(func(ch domain.Channel) bool { return ch.DefaultTaxZoneID == zoneID }), nil
}

func (c *Catalog) channelsWhere(keep func(domain.Channel) bool) []domain.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.Channel
	for _, ch := range c.channels {
		if keep(ch) {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) TaxRatesForZone(_ context.Context, zoneID string) ([]domain.TaxRate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.TaxRate
	for _, r := range c.taxRates {
		if r.ZoneID == zoneID && r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

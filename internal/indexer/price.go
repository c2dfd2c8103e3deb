package indexer

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/repository"
)

var hundred = decimal.NewFromInt(100)

// Price is a variant price in one channel, in minor units.
type Price struct {
	CurrencyCode string
	Net          int64
	Gross        int64
}

// PriceCalculator derives net and gross prices from stored channel prices.
// Tax rates are loaded once per zone for the lifetime of the calculator,
// which is one sync call.
type PriceCalculator struct {
	catalog repository.CatalogRepository

	mu    sync.Mutex
	rates map[string][]domain.TaxRate
}

// NewPriceCalculator creates a calculator with an empty rate cache.
func NewPriceCalculator(catalog repository.CatalogRepository) *PriceCalculator {
	return &PriceCalculator{catalog: catalog, rates: make(map[string][]domain.TaxRate)}
}

// Price returns v's price in ch using the channel's default tax zone and the
// variant's tax category. A variant without a stored price in ch is priced at
// zero in the channel's default currency.
func (c *PriceCalculator) Price(ctx context.Context, ch domain.Channel, v *domain.ProductVariant) (Price, error) {
	stored, ok := v.PriceIn(ch.ID)
	if !ok {
		return Price{CurrencyCode: ch.DefaultCurrencyCode}, nil
	}
	currency := stored.CurrencyCode
	if currency == "" {
		currency = ch.DefaultCurrencyCode
	}

	rate, err := c.rate(ctx, ch.DefaultTaxZoneID, v.TaxCategoryID)
	if err != nil {
		return Price{}, err
	}
	net, gross := applyTax(stored.Amount, rate, ch.PricesIncludeTax)
	return Price{CurrencyCode: currency, Net: net, Gross: gross}, nil
}

func (c *PriceCalculator) rate(ctx context.Context, zoneID, categoryID string) (decimal.Decimal, error) {
	if zoneID == "" || categoryID == "" {
		return decimal.Zero, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rates, ok := c.rates[zoneID]
	if !ok {
		var err error
		rates, err = c.catalog.TaxRatesForZone(ctx, zoneID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("load tax rates for zone %s: %w", zoneID, err)
		}
		c.rates[zoneID] = rates
	}
	for _, r := range rates {
		if r.CategoryID == categoryID && r.Enabled {
			return r.Value, nil
		}
	}
	return decimal.Zero, nil
}

// applyTax treats amount as gross when includesTax is set and as net
// otherwise. ratePercent is a percentage such as 20 for 20%.
func applyTax(amount int64, ratePercent decimal.Decimal, includesTax bool) (net, gross int64) {
	factor := decimal.NewFromInt(1).Add(ratePercent.Div(hundred))
	stored := decimal.NewFromInt(amount)
	if includesTax {
		return stored.Div(factor).Round(0).IntPart(), amount
	}
	return amount, stored.Mul(factor).Round(0).IntPart()
}

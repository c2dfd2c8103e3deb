package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// RequestContext is the serialized channel/language scope a job was issued in.
type RequestContext struct {
	ChannelID    string `json:"channel_id"`
	LanguageCode string `json:"language_code"`
}

// Translation holds the language-specific text of a product or variant.
type Translation struct {
	LanguageCode string `json:"language_code"`
	Name         string `json:"name"`
	Slug         string `json:"slug,omitempty"`
	Description  string `json:"description,omitempty"`
}

// FocalPoint is the crop anchor of an asset preview.
type FocalPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Asset is a featured image reference.
type Asset struct {
	ID         string      `json:"id"`
	Preview    string      `json:"preview"`
	FocalPoint *FocalPoint `json:"focal_point,omitempty"`
}

// FacetValue links a product or variant to a facet.
type FacetValue struct {
	ID      string `json:"id"`
	FacetID string `json:"facet_id"`
}

// Collection is a channel-scoped grouping of variants.
type Collection struct {
	ID         string   `json:"id"`
	Slug       string   `json:"slug"`
	ChannelIDs []string `json:"channel_ids"`
}

// InChannel reports whether the collection is visible in channelID.
func (c Collection) InChannel(channelID string) bool {
	return slices.Contains(c.ChannelIDs, channelID)
}

// ChannelPrice is a variant's stored price in one channel, in minor units.
type ChannelPrice struct {
	ChannelID    string `json:"channel_id"`
	CurrencyCode string `json:"currency_code"`
	Amount       int64  `json:"price"`
}

// Product is a read-only view of a catalog product with its relations.
type Product struct {
	ID            string           `json:"id"`
	Enabled       bool             `json:"enabled"`
	DeletedAt     *time.Time       `json:"deleted_at,omitempty"`
	Translations  []Translation    `json:"translations"`
	ChannelIDs    []string         `json:"channel_ids"`
	FacetValues   []FacetValue     `json:"facet_values"`
	FeaturedAsset *Asset           `json:"featured_asset,omitempty"`
	CustomFields  map[string]any   `json:"custom_fields,omitempty"`
	Variants      []ProductVariant `json:"variants"`
}

// IsDeleted reports whether the product is soft-deleted.
func (p *Product) IsDeleted() bool {
	return p.DeletedAt != nil
}

// LanguageCodes returns the distinct language codes across the product's and
// its variants' translations, in first-seen order.
func (p *Product) LanguageCodes() []string {
	seen := make(map[string]struct{})
	var codes []string
	add := func(ts []Translation) {
		for _, t := range ts {
			if _, ok := seen[t.LanguageCode]; ok {
				continue
			}
			seen[t.LanguageCode] = struct{}{}
			codes = append(codes, t.LanguageCode)
		}
	}
	add(p.Translations)
	for i := range p.Variants {
		add(p.Variants[i].Translations)
	}
	return codes
}

// VariantIDs returns the ids of the loaded variants.
func (p *Product) VariantIDs() []string {
	ids := make([]string, 0, len(p.Variants))
	for i := range p.Variants {
		ids = append(ids, p.Variants[i].ID)
	}
	return ids
}

// InChannel reports whether the product is assigned to channelID.
func (p *Product) InChannel(channelID string) bool {
	return slices.Contains(p.ChannelIDs, channelID)
}

// ProductVariant is a read-only view of a sellable variant with its relations.
type ProductVariant struct {
	ID                  string         `json:"id"`
	ProductID           string         `json:"product_id"`
	SKU                 string         `json:"sku"`
	Enabled             bool           `json:"enabled"`
	DeletedAt           *time.Time     `json:"deleted_at,omitempty"`
	Translations        []Translation  `json:"translations"`
	ChannelIDs          []string       `json:"channel_ids"`
	Prices              []ChannelPrice `json:"prices"`
	TaxCategoryID       string         `json:"tax_category_id"`
	FacetValues         []FacetValue   `json:"facet_values"`
	Collections         []Collection   `json:"collections"`
	FeaturedAsset       *Asset         `json:"featured_asset,omitempty"`
	TrackInventory      bool           `json:"track_inventory"`
	StockOnHand         int            `json:"stock_on_hand"`
	StockAllocated      int            `json:"stock_allocated"`
	OutOfStockThreshold int            `json:"out_of_stock_threshold"`
	CustomFields        map[string]any `json:"custom_fields,omitempty"`
}

// InChannel reports whether the variant is assigned to channelID.
func (v *ProductVariant) InChannel(channelID string) bool {
	return slices.Contains(v.ChannelIDs, channelID)
}

// SaleableStock is the stock that can still be sold. It is only meaningful
// for tracked variants.
func (v *ProductVariant) SaleableStock() int {
	return v.StockOnHand - v.StockAllocated - v.OutOfStockThreshold
}

// InStock reports whether the variant can be sold. Untracked variants are
// always in stock.
func (v *ProductVariant) InStock() bool {
	if !v.TrackInventory {
		return true
	}
	return v.SaleableStock() > 0
}

// PriceIn returns the variant's stored price for channelID.
func (v *ProductVariant) PriceIn(channelID string) (ChannelPrice, bool) {
	for _, p := range v.Prices {
		if p.ChannelID == channelID {
			return p, true
		}
	}
	return ChannelPrice{}, false
}

// Channel is a sales channel with its defaults.
type Channel struct {
	ID                  string `json:"id"`
	Code                string `json:"code"`
	DefaultLanguageCode string `json:"default_language_code"`
	DefaultCurrencyCode string `json:"default_currency_code"`
	PricesIncludeTax    bool   `json:"prices_include_tax"`
	DefaultTaxZoneID    string `json:"default_tax_zone_id"`
}

// TaxRate is the percentage applied to a tax category within a zone.
type TaxRate struct {
	ID         string          `json:"id"`
	CategoryID string          `json:"category_id"`
	ZoneID     string          `json:"zone_id"`
	Value      decimal.Decimal `json:"value"`
	Enabled    bool            `json:"enabled"`
}

// TranslationFor picks the translation for lang, falling back to the
// fallback language and then to the first translation available.
func TranslationFor(ts []Translation, lang, fallback string) (Translation, bool) {
	if len(ts) == 0 {
		return Translation{}, false
	}
	for _, t := range ts {
		if t.LanguageCode == lang {
			return t, true
		}
	}
	for _, t := range ts {
		if t.LanguageCode == fallback {
			return t, true
		}
	}
	return ts[0], true
}

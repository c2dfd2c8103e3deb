package domain

import "strings"

// syntheticPrefix marks the placeholder entity id of a product without variants.
const syntheticPrefix = "-"

// SearchDocument is one flat record in the search index: a variant (or the
// synthetic placeholder of a variant-less product) in one channel and language.
type SearchDocument struct {
	ProductVariantID string `json:"product_variant_id"`
	ProductID        string `json:"product_id"`
	ChannelID        string `json:"channel_id"`
	LanguageCode     string `json:"language_code"`

	SKU                string `json:"sku"`
	Slug               string `json:"slug"`
	ProductName        string `json:"product_name"`
	ProductVariantName string `json:"product_variant_name"`
	Description        string `json:"description"`
	CurrencyCode       string `json:"currency_code"`
	Price              int64  `json:"price"`
	PriceWithTax       int64  `json:"price_with_tax"`

	FacetIDs               []string `json:"facet_ids"`
	FacetValueIDs          []string `json:"facet_value_ids"`
	CollectionIDs          []string `json:"collection_ids"`
	CollectionSlugs        []string `json:"collection_slugs"`
	ProductFacetIDs        []string `json:"product_facet_ids"`
	ProductFacetValueIDs   []string `json:"product_facet_value_ids"`
	ProductCollectionIDs   []string `json:"product_collection_ids"`
	ProductCollectionSlugs []string `json:"product_collection_slugs"`

	ProductAssetID                  *string     `json:"product_asset_id"`
	ProductPreview                  *string     `json:"product_preview"`
	ProductPreviewFocalPoint        *FocalPoint `json:"product_preview_focal_point"`
	ProductVariantAssetID           *string     `json:"product_variant_asset_id"`
	ProductVariantPreview           *string     `json:"product_variant_preview"`
	ProductVariantPreviewFocalPoint *FocalPoint `json:"product_variant_preview_focal_point"`

	Enabled                bool  `json:"enabled"`
	InStock                bool  `json:"in_stock"`
	ProductEnabled         bool  `json:"product_enabled"`
	ProductInStock         bool  `json:"product_in_stock"`
	ProductPriceMin        int64 `json:"product_price_min"`
	ProductPriceMax        int64 `json:"product_price_max"`
	ProductPriceWithTaxMin int64 `json:"product_price_with_tax_min"`
	ProductPriceWithTaxMax int64 `json:"product_price_with_tax_max"`

	ChannelIDs   []string       `json:"channel_ids"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

// DocumentKey addresses the single live document for an entity in a channel
// and language.
func DocumentKey(channelID, entityID, languageCode string) string {
	return channelID + "_" + entityID + "_" + languageCode
}

// SyntheticVariantID returns the placeholder entity id used for productID
// while it has no variants.
func SyntheticVariantID(productID string) string {
	return syntheticPrefix + productID
}

// IsSynthetic reports whether variantID is a placeholder id.
func IsSynthetic(variantID string) bool {
	return strings.HasPrefix(variantID, syntheticPrefix)
}

// Key returns the document's key.
func (d *SearchDocument) Key() string {
	return DocumentKey(d.ChannelID, d.ProductVariantID, d.LanguageCode)
}

// Custom field key prefixes.
const (
	ProductFieldPrefix = "product-"
	VariantFieldPrefix = "variant-"
)

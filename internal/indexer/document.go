package indexer

import (
	"context"
	"fmt"
	"slices"

	"github.com/utafrali/catalog-indexer/internal/domain"
)

// ProductFieldFunc computes a custom product-level field for one language.
type ProductFieldFunc func(p *domain.Product, languageCode string) any

// VariantFieldFunc computes a custom variant-level field for one language.
type VariantFieldFunc func(v *domain.ProductVariant, languageCode string) any

type productField struct {
	name string
	fn   ProductFieldFunc
}

type variantField struct {
	name string
	fn   VariantFieldFunc
}

// channelView is the slice of a product visible in one channel.
type channelView struct {
	channel  domain.Channel
	variants []domain.ProductVariant
	prices   map[string]Price
}

// rollup holds the product-level aggregates of one channel view.
type rollup struct {
	enabled, inStock         bool
	priceMin, priceMax       int64
	priceTaxMin, priceTaxMax int64
	facetIDs, facetValueIDs  []string
	collectionIDs, collSlugs []string
}

// effectiveVariants returns copies of p's variants with enabled forced to
// false when the product itself is disabled. A variant disabled on its own
// stays disabled after the product is re-enabled.
func effectiveVariants(p *domain.Product) []domain.ProductVariant {
	out := make([]domain.ProductVariant, len(p.Variants))
	copy(out, p.Variants)
	if !p.Enabled {
		for i := range out {
			out[i].Enabled = false
		}
	}
	return out
}

// newChannelView selects the in-channel variants and prices them.
func newChannelView(ctx context.Context, prices *PriceCalculator, ch domain.Channel, variants []domain.ProductVariant) (channelView, error) {
	view := channelView{channel: ch, prices: make(map[string]Price)}
	for i := range variants {
		v := &variants[i]
		if !v.InChannel(ch.ID) {
			continue
		}
		price, err := prices.Price(ctx, ch, v)
		if err != nil {
			return view, fmt.Errorf("price variant %s in channel %s: %w", v.ID, ch.ID, err)
		}
		view.variants = append(view.variants, *v)
		view.prices[v.ID] = price
	}
	return view, nil
}

func (v channelView) rollup(p *domain.Product) rollup {
	var r rollup
	facets := newStringSet()
	values := newStringSet()
	collections := newStringSet()
	slugs := newStringSet()
	for _, fv := range p.FacetValues {
		facets.add(fv.FacetID)
		values.add(fv.ID)
	}

	for i, variant := range v.variants {
		price := v.prices[variant.ID]
		if i == 0 {
			r.priceMin, r.priceMax = price.Net, price.Net
			r.priceTaxMin, r.priceTaxMax = price.Gross, price.Gross
		}
		r.priceMin = min(r.priceMin, price.Net)
		r.priceMax = max(r.priceMax, price.Net)
		r.priceTaxMin = min(r.priceTaxMin, price.Gross)
		r.priceTaxMax = max(r.priceTaxMax, price.Gross)
		r.enabled = r.enabled || variant.Enabled
		r.inStock = r.inStock || variant.InStock()

		for _, fv := range variant.FacetValues {
			facets.add(fv.FacetID)
			values.add(fv.ID)
		}
		for _, c := range variant.Collections {
			if c.InChannel(v.channel.ID) {
				collections.add(c.ID)
				slugs.add(c.Slug)
			}
		}
	}

	r.facetIDs, r.facetValueIDs = facets.items(), values.items()
	r.collectionIDs, r.collSlugs = collections.items(), slugs.items()
	return r
}

// documentBuilder turns a channel view into search documents for one language.
type documentBuilder struct {
	productFields []productField
	variantFields []variantField
}

func (b *documentBuilder) build(p *domain.Product, view channelView, lang string) []domain.SearchDocument {
	if len(view.variants) == 0 {
		return []domain.SearchDocument{b.synthetic(p, view.channel, lang)}
	}

	r := view.rollup(p)
	docs := make([]domain.SearchDocument, 0, len(view.variants))
	for i := range view.variants {
		docs = append(docs, b.variant(p, &view.variants[i], view, r, lang))
	}
	return docs
}

func (b *documentBuilder) base(p *domain.Product, ch domain.Channel, lang string) domain.SearchDocument {
	pt, _ := domain.TranslationFor(p.Translations, lang, ch.DefaultLanguageCode)
	doc := domain.SearchDocument{
		ProductID:    p.ID,
		ChannelID:    ch.ID,
		LanguageCode: lang,
		Slug:         pt.Slug,
		ProductName:  pt.Name,
		Description:  pt.Description,
		CurrencyCode: ch.DefaultCurrencyCode,
		ChannelIDs:   slices.Clone(p.ChannelIDs),
	}
	if a := p.FeaturedAsset; a != nil {
		doc.ProductAssetID, doc.ProductPreview, doc.ProductPreviewFocalPoint = assetFields(a)
	}
	doc.CustomFields = b.customFields(p, nil, lang)
	return doc
}

// synthetic is the placeholder for a product with no variants in the channel.
func (b *documentBuilder) synthetic(p *domain.Product, ch domain.Channel, lang string) domain.SearchDocument {
	doc := b.base(p, ch, lang)
	doc.ProductVariantID = domain.SyntheticVariantID(p.ID)
	doc.ProductVariantName = doc.ProductName

	facets, values := newStringSet(), newStringSet()
	for _, fv := range p.FacetValues {
		facets.add(fv.FacetID)
		values.add(fv.ID)
	}
	doc.FacetIDs, doc.FacetValueIDs = facets.items(), values.items()
	doc.ProductFacetIDs, doc.ProductFacetValueIDs = facets.items(), values.items()
	doc.CollectionIDs, doc.CollectionSlugs = []string{}, []string{}
	doc.ProductCollectionIDs, doc.ProductCollectionSlugs = []string{}, []string{}
	return doc
}

func (b *documentBuilder) variant(p *domain.Product, v *domain.ProductVariant, view channelView, r rollup, lang string) domain.SearchDocument {
	doc := b.base(p, view.channel, lang)
	price := view.prices[v.ID]

	doc.ProductVariantID = v.ID
	doc.SKU = v.SKU
	vt, _ := domain.TranslationFor(v.Translations, lang, view.channel.DefaultLanguageCode)
	doc.ProductVariantName = vt.Name
	doc.CurrencyCode = price.CurrencyCode
	doc.Price = price.Net
	doc.PriceWithTax = price.Gross

	facets, values := newStringSet(), newStringSet()
	for _, fv := range p.FacetValues {
		facets.add(fv.FacetID)
		values.add(fv.ID)
	}
	for _, fv := range v.FacetValues {
		facets.add(fv.FacetID)
		values.add(fv.ID)
	}
	collections, slugs := newStringSet(), newStringSet()
	for _, c := range v.Collections {
		if c.InChannel(view.channel.ID) {
			collections.add(c.ID)
			slugs.add(c.Slug)
		}
	}
	doc.FacetIDs, doc.FacetValueIDs = facets.items(), values.items()
	doc.CollectionIDs, doc.CollectionSlugs = collections.items(), slugs.items()
	doc.ProductFacetIDs, doc.ProductFacetValueIDs = slices.Clone(r.facetIDs), slices.Clone(r.facetValueIDs)
	doc.ProductCollectionIDs, doc.ProductCollectionSlugs = slices.Clone(r.collectionIDs), slices.Clone(r.collSlugs)

	if a := v.FeaturedAsset; a != nil {
		doc.ProductVariantAssetID, doc.ProductVariantPreview, doc.ProductVariantPreviewFocalPoint = assetFields(a)
	}

	doc.Enabled = v.Enabled
	doc.InStock = v.InStock()
	doc.ProductEnabled = r.enabled
	doc.ProductInStock = r.inStock
	doc.ProductPriceMin, doc.ProductPriceMax = r.priceMin, r.priceMax
	doc.ProductPriceWithTaxMin, doc.ProductPriceWithTaxMax = r.priceTaxMin, r.priceTaxMax
	doc.CustomFields = b.customFields(p, v, lang)
	return doc
}

func (b *documentBuilder) customFields(p *domain.Product, v *domain.ProductVariant, lang string) map[string]any {
	if len(b.productFields) == 0 && (v == nil || len(b.variantFields) == 0) {
		return nil
	}
	fields := make(map[string]any, len(b.productFields)+len(b.variantFields))
	for _, f := range b.productFields {
		fields[domain.ProductFieldPrefix+f.name] = f.fn(p, lang)
	}
	if v != nil {
		for _, f := range b.variantFields {
			fields[domain.VariantFieldPrefix+f.name] = f.fn(v, lang)
		}
	}
	return fields
}

func assetFields(a *domain.Asset) (*string, *string, *domain.FocalPoint) {
	id, preview := a.ID, a.Preview
	var focal *domain.FocalPoint
	if a.FocalPoint != nil {
		fp := *a.FocalPoint
		focal = &fp
	}
	return &id, &preview, focal
}

// stringSet keeps insertion order and drops duplicates.
type stringSet struct {
	seen  map[string]struct{}
	order []string
}

func newStringSet() *stringSet {
	return &stringSet{seen: make(map[string]struct{}), order: []string{}}
}

func (s *stringSet) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.order = append(s.order, v)
}

func (s *stringSet) items() []string {
	return slices.Clone(s.order)
}

package repository

import (
	"context"

	"github.com/utafrali/catalog-indexer/internal/domain"
)

// CatalogRepository is the read-only view of the relational catalog the
// indexer builds documents from.
type CatalogRepository interface {
	// FindProducts loads products with their translations, channels, facet
	// values, featured asset and non-deleted variants. Unknown ids are
	// skipped. Soft-deleted products are only returned when includeDeleted
	// is set.
	FindProducts(ctx context.Context, ids []string, includeDeleted bool) ([]domain.Product, error)

	// FindVariants loads the variants of the given products, soft-deleted
	// ones too when includeDeleted is set.
	FindVariants(ctx context.Context, productIDs []string, includeDeleted bool) ([]domain.ProductVariant, error)

	// ProductIDsForVariants returns the distinct owning product ids of the
	// given variants, including soft-deleted variants.
	ProductIDsForVariants(ctx context.Context, variantIDs []string) ([]string, error)

	// ListProductIDs returns the ids of all live products, or of all
	// soft-deleted products when deleted is set.
	ListProductIDs(ctx context.Context, deleted bool) ([]string, error)

	// ListChannels returns every channel.
	ListChannels(ctx context.Context) ([]domain.Channel, error)

	// TaxRatesForZone returns the enabled tax rates of a zone.
	TaxRatesForZone(ctx context.Context, zoneID string) ([]domain.TaxRate, error)

	// ChannelsByDefaultTaxZone returns the channels whose default tax zone is zoneID.
	ChannelsByDefaultTaxZone(ctx context.Context, zoneID string) ([]domain.Channel, error)
}

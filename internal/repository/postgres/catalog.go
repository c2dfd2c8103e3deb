package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/repository"
	"github.com/utafrali/catalog-indexer/pkg/database"
)

// Relations are loaded with correlated JSONB_AGG sub-selects so a batch of
// products costs one query for products and one for their variants.
const findProductsSQL = `
	SELECT
		p.id, p.enabled, p.deleted_at,
		COALESCE(p.custom_fields, '{}'::jsonb),
		COALESCE((
			SELECT JSONB_AGG(JSONB_BUILD_OBJECT(
				'language_code', t.language_code,
				'name', t.name,
				'slug', t.slug,
				'description', t.description
			) ORDER BY t.id)
			FROM product_translation t WHERE t.product_id = p.id
		), '[]'::jsonb) AS translations,
		COALESCE((
			SELECT JSONB_AGG(pc.channel_id ORDER BY pc.channel_id)
			FROM product_channels pc WHERE pc.product_id = p.id
		), '[]'::jsonb) AS channel_ids,
		COALESCE((
			SELECT JSONB_AGG(JSONB_BUILD_OBJECT('id', fv.id, 'facet_id', fv.facet_id) ORDER BY fv.id)
			FROM product_facet_values pfv
			JOIN facet_value fv ON fv.id = pfv.facet_value_id
			WHERE pfv.product_id = p.id
		), '[]'::jsonb) AS facet_values,
		CASE WHEN a.id IS NULL THEN NULL
			ELSE JSONB_BUILD_OBJECT('id', a.id, 'preview', a.preview, 'focal_point', a.focal_point)
		END AS featured_asset
	FROM product p
	LEFT JOIN asset a ON a.id = p.featured_asset_id
	WHERE p.id = ANY($1) AND ($2 OR p.deleted_at IS NULL)
	ORDER BY p.id`

const findVariantsSQL = `
	SELECT JSONB_BUILD_OBJECT(
		'id', v.id,
		'product_id', v.product_id,
		'sku', v.sku,
		'enabled', v.enabled,
		'deleted_at', v.deleted_at,
		'tax_category_id', v.tax_category_id,
		'track_inventory', v.track_inventory,
		'stock_on_hand', v.stock_on_hand,
		'stock_allocated', v.stock_allocated,
		'out_of_stock_threshold', v.out_of_stock_threshold,
		'custom_fields', COALESCE(v.custom_fields, '{}'::jsonb),
		'translations', COALESCE((
			SELECT JSONB_AGG(JSONB_BUILD_OBJECT('language_code', t.language_code, 'name', t.name) ORDER BY t.id)
			FROM product_variant_translation t WHERE t.variant_id = v.id
		), '[]'::jsonb),
		'channel_ids', COALESCE((
			SELECT JSONB_AGG(vc.channel_id ORDER BY vc.channel_id)
			FROM product_variant_channels vc WHERE vc.variant_id = v.id
		), '[]'::jsonb),
		'prices', COALESCE((
			SELECT JSONB_AGG(JSONB_BUILD_OBJECT(
				'channel_id', pr.channel_id,
				'currency_code', pr.currency_code,
				'price', pr.price
			) ORDER BY pr.channel_id)
			FROM product_variant_price pr WHERE pr.variant_id = v.id
		), '[]'::jsonb),
		'facet_values', COALESCE((
			SELECT JSONB_AGG(JSONB_BUILD_OBJECT('id', fv.id, 'facet_id', fv.facet_id) ORDER BY fv.id)
			FROM product_variant_facet_values vfv
			JOIN facet_value fv ON fv.id = vfv.facet_value_id
			WHERE vfv.variant_id = v.id
		), '[]'::jsonb),
		'collections', COALESCE((
			SELECT JSONB_AGG(JSONB_BUILD_OBJECT(
				'id', c.id,
				'slug', c.slug,
				'channel_ids', COALESCE((
					SELECT JSONB_AGG(cc.channel_id ORDER BY cc.channel_id)
					FROM collection_channels cc WHERE cc.collection_id = c.id
				), '[]'::jsonb)
			) ORDER BY c.id)
			FROM collection_product_variants cpv
			JOIN collection c ON c.id = cpv.collection_id
			WHERE cpv.variant_id = v.id
		), '[]'::jsonb),
		'featured_asset', (
			SELECT JSONB_BUILD_OBJECT('id', a.id, 'preview', a.preview, 'focal_point', a.focal_point)
			FROM asset a WHERE a.id = v.featured_asset_id
		)
	)
	FROM product_variant v
	WHERE v.product_id = ANY($1) AND ($2 OR v.deleted_at IS NULL)
	ORDER BY v.product_id, v.id`

const productIDsForVariantsSQL = `
	SELECT DISTINCT product_id FROM product_variant
	WHERE id = ANY($1)
	ORDER BY product_id`

const listProductIDsSQL = `
	SELECT id FROM product
	WHERE (deleted_at IS NOT NULL) = $1
	ORDER BY id`

const channelColumns = `
	SELECT id, code, default_language_code, default_currency_code,
		prices_include_tax, COALESCE(default_tax_zone_id, '')
	FROM channel`

const listChannelsSQL = channelColumns + `
	ORDER BY id`

const channelsByDefaultTaxZoneSQL = channelColumns + `
	WHERE default_tax_zone_id = $1
	ORDER BY id`

const taxRatesForZoneSQL = `
	SELECT id, category_id, zone_id, value::text, enabled
	FROM tax_rate
	WHERE zone_id = $1 AND enabled
	ORDER BY id`

// CatalogRepository implements repository.CatalogRepository using PostgreSQL.
type CatalogRepository struct {
	pool database.DBTX
}

var _ repository.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository creates a new PostgreSQL-backed catalog repository.
func NewCatalogRepository(pool database.DBTX) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// FindProducts loads products and attaches their live variants.
func (r *CatalogRepository) FindProducts(ctx context.Context, ids []string, includeDeleted bool) (_ []domain.Product, err error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, end := database.TraceQuery(ctx, "FindProducts", findProductsSQL)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, findProductsSQL, ids, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	if len(products) == 0 {
		return products, nil
	}

	found := make([]string, 0, len(products))
	for i := range products {
		found = append(found, products[i].ID)
	}
	variants, err := r.findVariants(ctx, found, false)
	if err != nil {
		return nil, err
	}
	byProduct := make(map[string][]domain.ProductVariant, len(found))
	for _, v := range variants {
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
	}
	for i := range products {
		products[i].Variants = byProduct[products[i].ID]
	}
	return products, nil
}

// FindVariants loads the variants of productIDs. Soft-deleted variants are
// included when includeDeleted is set.
func (r *CatalogRepository) FindVariants(ctx context.Context, productIDs []string, includeDeleted bool) ([]domain.ProductVariant, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	return r.findVariants(ctx, productIDs, includeDeleted)
}

func scanProduct(row pgx.CollectableRow) (domain.Product, error) {
	var (
		p                                          domain.Product
		deletedAt                                  *time.Time
		customJSON, translationsJSON, channelsJSON []byte
		facetsJSON, assetJSON                      []byte
	)
	if err := row.Scan(&p.ID, &p.Enabled, &deletedAt, &customJSON, &translationsJSON, &channelsJSON, &facetsJSON, &assetJSON); err != nil {
		return p, err
	}
	p.DeletedAt = deletedAt

	for _, f := range []struct {
		name string
		data []byte
		dst  any
	}{
		{"custom fields", customJSON, &p.CustomFields},
		{"translations", translationsJSON, &p.Translations},
		{"channel ids", channelsJSON, &p.ChannelIDs},
		{"facet values", facetsJSON, &p.FacetValues},
		{"featured asset", assetJSON, &p.FeaturedAsset},
	} {
		if len(f.data) == 0 {
			continue
		}
		if err := json.Unmarshal(f.data, f.dst); err != nil {
			return p, fmt.Errorf("unmarshal product %s %s: %w", p.ID, f.name, err)
		}
	}
	return p, nil
}

func (r *CatalogRepository) findVariants(ctx context.Context, productIDs []string, includeDeleted bool) (_ []domain.ProductVariant, err error) {
	ctx, end := database.TraceQuery(ctx, "FindVariants", findVariantsSQL)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, findVariantsSQL, productIDs, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}
	variants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ProductVariant, error) {
		var (
			v    domain.ProductVariant
			data []byte
		)
		if err := row.Scan(&data); err != nil {
			return v, err
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return v, fmt.Errorf("unmarshal variant: %w", err)
		}
		return v, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan variants: %w", err)
	}
	return variants, nil
}

// ProductIDsForVariants resolves owning products, deleted variants included.
func (r *CatalogRepository) ProductIDsForVariants(ctx context.Context, variantIDs []string) (_ []string, err error) {
	if len(variantIDs) == 0 {
		return nil, nil
	}
	ctx, end := database.TraceQuery(ctx, "ProductIDsForVariants", productIDsForVariantsSQL)
	defer func() { end(err) }()

	return r.collectIDs(ctx, productIDsForVariantsSQL, variantIDs)
}

// ListProductIDs returns live or soft-deleted product ids.
func (r *CatalogRepository) ListProductIDs(ctx context.Context, deleted bool) (_ []string, err error) {
	ctx, end := database.TraceQuery(ctx, "ListProductIDs", listProductIDsSQL)
	defer func() { end(err) }()

	return r.collectIDs(ctx, listProductIDsSQL, deleted)
}

func (r *CatalogRepository) collectIDs(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan ids: %w", err)
	}
	return ids, nil
}

// ListChannels returns every channel.
func (r *CatalogRepository) ListChannels(ctx context.Context) (_ []domain.Channel, err error) {
	ctx, end := database.TraceQuery(ctx, "ListChannels", listChannelsSQL)
	defer func() { end(err) }()

	return r.queryChannels(ctx, listChannelsSQL)
}

// ChannelsByDefaultTaxZone returns channels whose default tax zone is zoneID.
func (r *CatalogRepository) ChannelsByDefaultTaxZone(ctx context.Context, zoneID string) (_ []domain.Channel, err error) {
	ctx, end := database.TraceQuery(ctx, "ChannelsByDefaultTaxZone", channelsByDefaultTaxZoneSQL)
	defer func() { end(err) }()

	return r.queryChannels(ctx, channelsByDefaultTaxZoneSQL, zoneID)
}

func (r *CatalogRepository) queryChannels(ctx context.Context, sql string, args ...any) ([]domain.Channel, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	channels, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Channel, error) {
		var c domain.Channel
		err := row.Scan(&c.ID, &c.Code, &c.DefaultLanguageCode, &c.DefaultCurrencyCode, &c.PricesIncludeTax, &c.DefaultTaxZoneID)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan channels: %w", err)
	}
	return channels, nil
}

// TaxRatesForZone returns the enabled tax rates of zoneID.
func (r *CatalogRepository) TaxRatesForZone(ctx context.Context, zoneID string) (_ []domain.TaxRate, err error) {
	ctx, end := database.TraceQuery(ctx, "TaxRatesForZone", taxRatesForZoneSQL)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, taxRatesForZoneSQL, zoneID)
	if err != nil {
		return nil, fmt.Errorf("query tax rates: %w", err)
	}
	rates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TaxRate, error) {
		var (
			t     domain.TaxRate
			value string
		)
		if err := row.Scan(&t.ID, &t.CategoryID, &t.ZoneID, &value, &t.Enabled); err != nil {
			return t, err
		}
		v, err := decimal.NewFromString(value)
		if err != nil {
			return t, fmt.Errorf("tax rate %s value %q: %w", t.ID, value, err)
		}
		t.Value = v
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan tax rates: %w", err)
	}
	return rates, nil
}

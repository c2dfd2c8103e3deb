package memory

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalog-indexer/internal/bulk"
	"github.com/utafrali/catalog-indexer/internal/domain"
	"github.com/utafrali/catalog-indexer/internal/engine"
)

func ptr[T any](v T) *T { return &v }

func newDoc(product, variant, channel, lang string, price int64) domain.SearchDocument {
	return domain.SearchDocument{
		ProductID:        product,
		ProductVariantID: variant,
		ChannelID:        channel,
		LanguageCode:     lang,
		ProductName:      "Product " + product,
		Price:            price,
		PriceWithTax:     price * 12 / 10,
		ProductPriceMin:  price,
		ProductPriceMax:  price,
		Enabled:          true,
		ProductEnabled:   true,
		InStock:          true,
		ProductInStock:   true,
	}
}

func seed(t *testing.T, e *Engine, index string, docs ...domain.SearchDocument) {
	t.Helper()
	ops := make([]bulk.Operation, 0, len(docs))
	for i := range docs {
		ops = append(ops, bulk.Update(docs[i].Key(), &docs[i], true))
	}
	_, err := e.Bulk(context.Background(), index, ops)
	require.NoError(t, err)
}

func TestEngine_AliasLifecycle(t *testing.T) {
	ctx := context.Background()
	e := New()

	require.NoError(t, e.CreateIndex(ctx, "catalog_1"))
	require.NoError(t, e.UpdateAliases(ctx, []engine.AliasAction{engine.AddAlias("catalog_1", "catalog")}))

	got, err := e.ResolveAlias(ctx, "catalog")
	require.NoError(t, err)
	assert.Equal(t, []string{"catalog_1"}, got)

	seed(t, e, "catalog", newDoc("P1", "V1", "C1", "en", 1000))
	assert.Len(t, e.Documents("catalog_1"), 1)

	require.NoError(t, e.CreateIndex(ctx, "catalog_2"))
	n, err := e.CopyDocuments(ctx, "catalog", "catalog_2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, e.UpdateAliases(ctx, []engine.AliasAction{
		engine.RemoveAlias("catalog_1", "catalog"),
		engine.AddAlias("catalog_2", "catalog"),
	}))
	got, _ = e.ResolveAlias(ctx, "catalog")
	assert.Equal(t, []string{"catalog_2"}, got)

	require.NoError(t, e.DeleteIndex(ctx, "catalog_1"))
	assert.Equal(t, []string{"catalog_2"}, e.Indices())
}

func TestEngine_UpdateAliasesIsAtomic(t *testing.T) {
	ctx := context.Background()
	e := New()
	require.NoError(t, e.CreateIndex(ctx, "catalog_1"))
	require.NoError(t, e.UpdateAliases(ctx, []engine.AliasAction{engine.AddAlias("catalog_1", "catalog")}))

	err := e.UpdateAliases(ctx, []engine.AliasAction{
		engine.RemoveAlias("catalog_1", "catalog"),
		engine.AddAlias("missing", "catalog"),
	})
	require.ErrorIs(t, err, engine.ErrIndexNotFound)

	got, _ := e.ResolveAlias(ctx, "catalog")
	assert.Equal(t, []string{"catalog_1"}, got, "failed update leaves the alias untouched")
}

func TestEngine_LegacyIndexReplacedByAlias(t *testing.T) {
	ctx := context.Background()
	e := New()
	require.NoError(t, e.CreateIndex(ctx, "catalog"))
	require.NoError(t, e.CreateIndex(ctx, "catalog_2"))

	err := e.UpdateAliases(ctx, []engine.AliasAction{engine.AddAlias("catalog_2", "catalog")})
	require.Error(t, err, "alias cannot shadow an existing index")

	require.NoError(t, e.UpdateAliases(ctx, []engine.AliasAction{
		engine.RemoveIndex("catalog"),
		engine.AddAlias("catalog_2", "catalog"),
	}))
	assert.Equal(t, []string{"catalog_2"}, e.Indices())
}

func TestEngine_BulkItemResults(t *testing.T) {
	ctx := context.Background()
	e := New()
	require.NoError(t, e.CreateIndex(ctx, "idx"))
	doc := newDoc("P1", "V1", "C1", "en", 1000)

	items, err := e.Bulk(ctx, "idx", []bulk.Operation{
		bulk.Update(doc.Key(), &doc, true),
		bulk.Update(doc.Key(), &doc, true),
		bulk.Update("C1_V9_en", &doc, false),
		bulk.Delete("C1_V8_en"),
		bulk.Delete(doc.Key()),
	})
	require.NoError(t, err)
	require.Len(t, items, 5)
	assert.Equal(t, http.StatusCreated, items[0].Status)
	assert.Equal(t, http.StatusOK, items[1].Status)
	assert.Equal(t, "document_missing_exception", items[2].ErrorType)
	assert.Equal(t, http.StatusNotFound, items[3].Status)
	assert.False(t, items[3].Failed())
	assert.Equal(t, http.StatusOK, items[4].Status)
	assert.Empty(t, e.Documents("idx"))
}

func TestEngine_BulkUnknownIndex(t *testing.T) {
	_, err := New().Bulk(context.Background(), "nope", []bulk.Operation{bulk.Delete("k")})
	assert.ErrorIs(t, err, engine.ErrIndexNotFound)
}

func TestEngine_DocumentKeys(t *testing.T) {
	ctx := context.Background()
	e := New()
	require.NoError(t, e.CreateIndex(ctx, "idx"))
	seed(t, e, "idx",
		newDoc("P1", "V1", "C1", "en", 1),
		newDoc("P1", "V1", "C1", "fr", 1),
		newDoc("P2", "V2", "C1", "en", 1),
	)

	keys, err := e.DocumentKeys(ctx, "idx", "P1")
	require.NoError(t, err)
	assert.Equal(t, []string{"C1_V1_en", "C1_V1_fr"}, keys)
}

func TestEngine_PatchAsset(t *testing.T) {
	ctx := context.Background()
	e := New()
	require.NoError(t, e.CreateIndex(ctx, "idx"))

	d1 := newDoc("P1", "V1", "C1", "en", 1)
	d1.ProductAssetID, d1.ProductPreview = ptr("A1"), ptr("old.jpg")
	d2 := newDoc("P2", "V2", "C1", "en", 1)
	d2.ProductVariantAssetID, d2.ProductVariantPreview = ptr("A1"), ptr("old.jpg")
	d3 := newDoc("P3", "V3", "C1", "en", 1)
	seed(t, e, "idx", d1, d2, d3)

	n, err := e.PatchAsset(ctx, "idx", engine.AssetPatch{AssetID: "A1", Preview: "new.jpg", FocalPoint: &domain.FocalPoint{X: 0.5, Y: 0.5}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	docs := e.Documents("idx")
	assert.Equal(t, "new.jpg", *docs[0].ProductPreview)
	assert.Equal(t, 0.5, docs[0].ProductPreviewFocalPoint.X)
	assert.Equal(t, "new.jpg", *docs[1].ProductVariantPreview)
	assert.Nil(t, docs[2].ProductPreview)

	n, err = e.PatchAsset(ctx, "idx", engine.AssetPatch{AssetID: "A1", Deleted: true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Nil(t, e.Documents("idx")[0].ProductAssetID)
}

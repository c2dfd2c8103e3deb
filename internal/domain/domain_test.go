package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentKey(t *testing.T) {
	assert.Equal(t, "C1_V1_en", DocumentKey("C1", "V1", "en"))
	assert.Equal(t, "C1_-P1_fr", DocumentKey("C1", SyntheticVariantID("P1"), "fr"))
}

func TestSyntheticVariantID(t *testing.T) {
	id := SyntheticVariantID("P1")
	assert.Equal(t, "-P1", id)
	assert.True(t, IsSynthetic(id))
	assert.False(t, IsSynthetic("V1"))
}

func TestSearchDocument_KeyAndJSON(t *testing.T) {
	doc := SearchDocument{ProductVariantID: "V1", ProductID: "P1", ChannelID: "C1", LanguageCode: "en", Price: 1000}
	assert.Equal(t, "C1_V1_en", doc.Key())

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "V1", raw["product_variant_id"])
	assert.EqualValues(t, 1000, raw["price"])
	assert.Contains(t, raw, "product_preview")
	assert.NotContains(t, raw, "custom_fields")
}

func TestProductVariant_InStock(t *testing.T) {
	tests := []struct {
		name    string
		variant ProductVariant
		want    bool
	}{
		{"untracked", ProductVariant{TrackInventory: false}, true},
		{"tracked with stock", ProductVariant{TrackInventory: true, StockOnHand: 5, StockAllocated: 2}, true},
		{"tracked all allocated", ProductVariant{TrackInventory: true, StockOnHand: 5, StockAllocated: 5}, false},
		{"threshold eats stock", ProductVariant{TrackInventory: true, StockOnHand: 5, OutOfStockThreshold: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.variant.InStock())
		})
	}
}

func TestProductVariant_PriceIn(t *testing.T) {
	v := ProductVariant{Prices: []ChannelPrice{{ChannelID: "C1", CurrencyCode: "USD", Amount: 1000}}}

	p, ok := v.PriceIn("C1")
	require.True(t, ok)
	assert.EqualValues(t, 1000, p.Amount)

	_, ok = v.PriceIn("C2")
	assert.False(t, ok)
}

func TestTranslationFor(t *testing.T) {
	ts := []Translation{
		{LanguageCode: "de", Name: "Hund"},
		{LanguageCode: "en", Name: "Dog"},
	}

	tr, ok := TranslationFor(ts, "en", "de")
	require.True(t, ok)
	assert.Equal(t, "Dog", tr.Name)

	tr, _ = TranslationFor(ts, "fr", "en")
	assert.Equal(t, "Dog", tr.Name, "falls back to the channel default")

	tr, _ = TranslationFor(ts, "fr", "it")
	assert.Equal(t, "Hund", tr.Name, "falls back to the first translation")

	_, ok = TranslationFor(nil, "en", "en")
	assert.False(t, ok)
}

func TestProduct_LanguageCodes(t *testing.T) {
	p := Product{
		Translations: []Translation{{LanguageCode: "en"}, {LanguageCode: "fr"}},
		Variants: []ProductVariant{
			{Translations: []Translation{{LanguageCode: "fr"}, {LanguageCode: "de"}}},
		},
	}
	assert.Equal(t, []string{"en", "fr", "de"}, p.LanguageCodes())
}

func TestProduct_IsDeleted(t *testing.T) {
	now := time.Now()
	assert.False(t, (&Product{}).IsDeleted())
	assert.True(t, (&Product{DeletedAt: &now}).IsDeleted())
}

func TestCollection_InChannel(t *testing.T) {
	c := Collection{ID: "col1", ChannelIDs: []string{"C1"}}
	assert.True(t, c.InChannel("C1"))
	assert.False(t, c.InChannel("C2"))
}

package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_Options(t *testing.T) {
	evt, err := NewEvent("ecommerce.search_index.rebuilt", "catalog", "search_index", "catalog-indexer",
		map[string]int{"total": 3},
		WithCorrelationID("corr-1"),
		WithMetadata("channel_id", "C1"),
		WithMetadata("language_code", ""),
	)
	require.NoError(t, err)

	assert.NotEmpty(t, evt.EventID)
	assert.Equal(t, 1, evt.Version)
	assert.Equal(t, "corr-1", evt.CorrelationID)
	assert.Equal(t, map[string]string{"channel_id": "C1"}, evt.Metadata)
	assert.Empty(t, evt.Meta("language_code"))
}

func TestNewEvent_UnencodablePayload(t *testing.T) {
	_, err := NewEvent("ecommerce.product.updated", "P1", "product", "catalog", make(chan int))
	assert.ErrorContains(t, err, "marshal ecommerce.product.updated payload")
}

func TestDecodeEvent_RoundTrip(t *testing.T) {
	evt, err := NewEvent("ecommerce.variant.deleted", "V1", "variant", "catalog", map[string][]string{"ids": {"V1"}},
		WithMetadata("channel_id", "C2"))
	require.NoError(t, err)
	raw, err := evt.Marshal()
	require.NoError(t, err)

	decoded, err := DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, evt.EventID, decoded.EventID)
	assert.Equal(t, "C2", decoded.Meta("channel_id"))

	var data struct {
		IDs []string `json:"ids"`
	}
	require.NoError(t, decoded.Decode(&data))
	assert.Equal(t, []string{"V1"}, data.IDs)
}

func TestDecodeEvent_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"not json", `{`, "malformed event"},
		{"missing id", `{"event_type":"ecommerce.product.updated"}`, "missing event_id"},
		{"missing type", `{"event_id":"e1"}`, "missing event_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(tt.raw))
			require.ErrorIs(t, err, ErrMalformedEvent)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestEvent_DecodeWithoutData(t *testing.T) {
	evt := &Event{EventID: "e1", EventType: "ecommerce.asset.deleted"}
	var target map[string]any
	assert.ErrorIs(t, evt.Decode(&target), ErrMalformedEvent)
}

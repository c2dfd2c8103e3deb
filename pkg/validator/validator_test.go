package validator

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncRequest struct {
	ProductIDs []string `json:"product_ids" validate:"required,min=1,max=3,dive,required"`
	Channel    string   `json:"channel" validate:"omitempty,max=5"`
	Priority   int      `json:"priority" validate:"gte=0,lte=10"`
}

func TestValidate_Success(t *testing.T) {
	err := Validate(syncRequest{ProductIDs: []string{"p1"}, Priority: 1})
	assert.NoError(t, err)
}

func TestValidate_MissingRequired(t *testing.T) {
	err := Validate(syncRequest{})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "is required", valErr.Fields()["product_ids"])
}

func TestValidate_SliceBounds(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want string
	}{
		{"empty", []string{}, "must contain at least 1 items"},
		{"too many", []string{"a", "b", "c", "d"}, "must contain at most 3 items"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(syncRequest{ProductIDs: tt.ids})
			var valErr *ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, tt.want, valErr.Fields()["product_ids"])
		})
	}
}

func TestValidate_DiveRejectsBlankElement(t *testing.T) {
	err := Validate(syncRequest{ProductIDs: []string{"p1", ""}})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "is required", valErr.Fields()["product_ids[1]"])
}

func TestValidate_StringMaxAndRange(t *testing.T) {
	err := Validate(syncRequest{ProductIDs: []string{"p1"}, Channel: "toolong", Priority: 11})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	fields := valErr.Fields()
	assert.Equal(t, "must be at most 5 characters", fields["channel"])
	assert.Contains(t, fields["priority"], "10")
	assert.Contains(t, err.Error(), "field 'channel'")
}

type variantsRequest struct {
	VariantIDs []string `json:"variant_ids" validate:"required,dive,entity_id"`
	Note       string   `validate:"omitempty,max=3"`
}

func TestValidate_EntityID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		ok   bool
	}{
		{"plain", "V1", true},
		{"uuid", "550e8400-e29b-41d4-a716-446655440000", true},
		{"blank", "", false},
		{"whitespace", "V 1", false},
		{"too long", strings.Repeat("x", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(variantsRequest{VariantIDs: []string{tt.id}})
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var valErr *ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Contains(t, valErr.Fields()["variant_ids[0]"], "non-blank id")
		})
	}
}

func TestValidate_FieldWithoutJSONTagKeepsGoName(t *testing.T) {
	err := Validate(variantsRequest{VariantIDs: []string{"V1"}, Note: "long"})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields(), "Note")
}

type jobLookup struct {
	ID   string `validate:"uuid"`
	Kind string `validate:"oneof=reindex sync"`
}

func TestValidate_UUIDAndOneOf(t *testing.T) {
	err := Validate(jobLookup{ID: "nope", Kind: "other"})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	fields := valErr.Fields()
	assert.Equal(t, "must be a valid UUID", fields["ID"])
	assert.Equal(t, "must be one of: reindex sync", fields["Kind"])

	assert.NoError(t, Validate(jobLookup{ID: "550e8400-e29b-41d4-a716-446655440000", Kind: "sync"}))
}

func TestDecodeAndValidate_Success(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"product_ids":["p1","p2"]}`))

	var s syncRequest
	require.NoError(t, DecodeAndValidate(req, &s))
	assert.Equal(t, []string{"p1", "p2"}, s.ProductIDs)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{invalid"))

	var s syncRequest
	err := DecodeAndValidate(req, &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeAndValidate_UnknownField(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_ids":["p1"],"variant_ids":["v1"]}`))

	var s syncRequest
	err := DecodeAndValidate(req, &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "variant_ids")
}

func TestDecodeAndValidate_ValidationFails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_ids":[]}`))

	var s syncRequest
	err := DecodeAndValidate(req, &s)
	var valErr *ValidationError
	assert.ErrorAs(t, err, &valErr)
}

package bulk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalog-indexer/internal/domain"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) Bulk(ctx context.Context, index string, ops []Operation) ([]ItemResult, error) {
	args := m.Called(ctx, index, ops)
	items, _ := args.Get(0).([]ItemResult)
	return items, args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecute_EmptyBatchSkipsNetwork(t *testing.T) {
	w := &mockWriter{}
	ex := NewExecutor(w, discardLogger())

	res, err := ex.Execute(context.Background(), "catalog_search", nil)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	w.AssertNotCalled(t, "Bulk", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecute_MixedBatchOneCall(t *testing.T) {
	doc := &domain.SearchDocument{ProductVariantID: "V1", ChannelID: "C1", LanguageCode: "en"}
	ops := []Operation{
		Delete("C1_-P1_en"),
		Update(doc.Key(), doc, true),
		Update("C1_V2_en", &domain.SearchDocument{}, true),
	}

	w := &mockWriter{}
	w.On("Bulk", mock.Anything, "catalog_search", ops).Return([]ItemResult{
		{Action: ActionDelete, Key: "C1_-P1_en", Status: http.StatusNotFound},
		{Action: ActionUpdate, Key: "C1_V1_en", Status: http.StatusCreated},
		{Action: ActionUpdate, Key: "C1_V2_en", Status: http.StatusBadRequest, ErrorType: "mapper_parsing_exception", Reason: "bad field"},
	}, nil).Once()

	res, err := NewExecutor(w, discardLogger()).Execute(context.Background(), "catalog_search", ops)
	require.NoError(t, err)
	w.AssertExpectations(t)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "C1_V2_en", res.Failures[0].Key)
	assert.Equal(t, "mapper_parsing_exception", res.Failures[0].ErrorType)
}

func TestExecute_TransportErrorReturned(t *testing.T) {
	w := &mockWriter{}
	w.On("Bulk", mock.Anything, "catalog_search", mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := NewExecutor(w, discardLogger()).Execute(context.Background(), "catalog_search", []Operation{Delete("k")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestItemResult_Failed(t *testing.T) {
	assert.False(t, ItemResult{Action: ActionDelete, Status: http.StatusNotFound}.Failed())
	assert.True(t, ItemResult{Action: ActionUpdate, Status: http.StatusNotFound}.Failed())
	assert.False(t, ItemResult{Action: ActionUpdate, Status: http.StatusOK}.Failed())
	assert.True(t, ItemResult{Action: ActionUpdate, Status: http.StatusConflict}.Failed())
}

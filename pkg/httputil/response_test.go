package httputil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusCreated, map[string]int{"id": 7})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, ContentTypeJSON, w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"id":7}`, w.Body.String())

	w = httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]any{"bad": make(chan int)})
	assert.Equal(t, http.StatusInternalServerError, w.Code, "unencodable data never yields a 200")
}

func TestErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorWithDetails(w, http.StatusUnprocessableEntity, "invalid body", map[string]string{"email": "required"})

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "invalid body", resp.Message)
	assert.Equal(t, map[string]any{"email": "required"}, resp.Details)

	w = httptest.NewRecorder()
	ErrorWithDetails(w, http.StatusBadRequest, "bad", func() {})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "bad", resp.Message)
	assert.Nil(t, resp.Details)
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	_, ok := Logger(ctx)
	assert.False(t, ok)

	logger := zap.NewNop()
	ctx = context.WithValue(ctx, RequestIDCtxKey, "abc")
	ctx = context.WithValue(ctx, LogEntryCtxKey, logger)
	assert.Equal(t, "abc", RequestID(ctx))
	got, ok := Logger(ctx)
	assert.True(t, ok)
	assert.Same(t, logger, got)
}

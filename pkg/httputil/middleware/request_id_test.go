package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/edgeflare/pgsynth/pkg/httputil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		ctxID    string
		wantKeep string
	}{
		{name: "generated"},
		{name: "uuid header kept", header: "0e2a9c1c-7a7e-4f0e-9d55-0c7f6f0f3b1a", wantKeep: "0e2a9c1c-7a7e-4f0e-9d55-0c7f6f0f3b1a"},
		{name: "proxy token kept", header: "edge-01:req.42_a", wantKeep: "edge-01:req.42_a"},
		{name: "unsafe header replaced", header: "a b\r\nX-Evil: 1"},
		{name: "oversized header replaced", header: strings.Repeat("a", maxRequestIDLen+1)},
		{name: "context wins", header: "from-header", ctxID: "from-ctx", wantKeep: "from-ctx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = httputil.RequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			if tt.ctxID != "" {
				req = req.WithContext(context.WithValue(req.Context(), httputil.RequestIDCtxKey, tt.ctxID))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
			if tt.wantKeep != "" {
				assert.Equal(t, tt.wantKeep, seen)
				return
			}
			id, err := uuid.Parse(seen)
			require.NoError(t, err)
			assert.Equal(t, uuid.Version(7), id.Version())
		})
	}
}

func TestRequestIDUnique(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	seen := map[string]bool{}
	for range 50 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		id := rec.Header().Get(RequestIDHeader)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

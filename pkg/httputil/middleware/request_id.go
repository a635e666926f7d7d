package middleware

import (
	"context"
	"net/http"

	"github.com/edgeflare/pgsynth/pkg/httputil"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

const maxRequestIDLen = 128

// RequestID tags each request with an ID, stores it in the context and
// echoes it in the X-Request-Id response header. An incoming header is kept
// when it is a plain token, so IDs from an upstream proxy survive; anything
// else is replaced with a fresh time-ordered UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := httputil.RequestID(r.Context())
		if reqID == "" {
			reqID = r.Header.Get(RequestIDHeader)
			if !validRequestID(reqID) {
				reqID = newRequestID()
			}
			r = r.WithContext(context.WithValue(r.Context(), httputil.RequestIDCtxKey, reqID))
		}
		w.Header().Set(RequestIDHeader, reqID)
		next.ServeHTTP(w, r)
	})
}

func newRequestID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.New().String()
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range []byte(id) {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}

package httputil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func header(name string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Add("X-Seen", name)
			next.ServeHTTP(w, req)
		})
	}
}

func TestRouterHandle(t *testing.T) {
	r := NewRouter()
	r.HandleFunc("GET /test", ok)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRouterHandleAnyMethod(t *testing.T) {
	r := NewRouter()
	r.HandleFunc("/", ok)
	for _, m := range []string{http.MethodGet, http.MethodPatch, http.MethodDelete} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(m, "/anything/here", nil))
		assert.Equal(t, http.StatusOK, w.Code, m)
	}
}

func TestRouterHandleRejectsBadPattern(t *testing.T) {
	assert.Panics(t, func() { NewRouter().HandleFunc("GET test", ok) })
}

func TestRouterMiddlewareAppliedOnce(t *testing.T) {
	r := NewRouter()
	r.Use(header("root"))
	r.HandleFunc("GET /test", ok)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, []string{"root"}, w.Header().Values("X-Seen"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, []string{"root"}, w.Header().Values("X-Seen"))
}

func TestRouterGroup(t *testing.T) {
	r := NewRouter()
	r.Use(header("root"))
	api := r.Group("/api")
	api.Use(header("api"))
	api.HandleFunc("GET /v1/test", ok)
	r.HandleFunc("GET /other", ok)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"root", "api"}, w.Header().Values("X-Seen"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, []string{"root"}, w.Header().Values("X-Seen"))

	nested := api.Group("/v2")
	nested.HandleFunc("GET /x", ok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/x", nil))
	assert.Equal(t, []string{"root", "api"}, w.Header().Values("X-Seen"))
}

func TestRouterListenAndServe(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	r := NewRouter()
	r.HandleFunc("GET /test", ok)

	done := make(chan error, 1)
	go func() { done <- r.ListenAndServe(addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/test", addr))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, r.Shutdown(context.Background()))
	assert.True(t, errors.Is(<-done, http.ErrServerClosed))
}

func TestRouterErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorWithDetails(w, http.StatusUnprocessableEntity, "invalid", map[string]string{"name": "required"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"message":"invalid","code":422,"details":{"name":"required"}}`, w.Body.String())
}

func BenchmarkRouterServeHTTP(b *testing.B) {
	r := NewRouter()
	r.HandleFunc("GET /test", ok)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.ServeHTTP(w, req)
	}
}

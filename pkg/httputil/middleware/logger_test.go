package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgeflare/pgsynth/pkg/httputil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		status int
		level  zapcore.Level
	}{
		{http.StatusOK, zapcore.InfoLevel},
		{http.StatusNotModified, zapcore.InfoLevel},
		{http.StatusNotFound, zapcore.WarnLevel},
		{http.StatusServiceUnavailable, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			h := LoggerWithOptions(&LoggerOptions{Logger: zap.New(core)})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/public/users?limit=1", nil))

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, "response", entry.Message)
			assert.Equal(t, tt.level, entry.Level)
			fields := entry.ContextMap()
			assert.EqualValues(t, tt.status, fields["status"])
			assert.Equal(t, "/public/users", fields["path"])
			assert.Equal(t, "limit=1", fields["query"])
		})
	}
}

func TestLoggerRequestScope(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := RequestID(LoggerWithOptions(&LoggerOptions{Logger: zap.New(core)})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger, ok := httputil.Logger(r.Context())
		require.True(t, ok)
		logger.Debug("inside")
		_, _ = w.Write([]byte("hello"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 2, logs.Len())
	for _, e := range logs.All() {
		assert.Equal(t, "abc", e.ContextMap()["req_id"], e.Message)
	}
	assert.EqualValues(t, 5, logs.FilterMessage("response").All()[0].ContextMap()["bytes"])
}

func TestLoggerSkip(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var scoped bool
	h := LoggerWithOptions(&LoggerOptions{
		Logger: zap.New(core),
		Skip:   func(r *http.Request) bool { return r.URL.Path == "/health" },
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, scoped = httputil.Logger(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.True(t, scoped)
	assert.Zero(t, logs.Len())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/public/users", nil))
	assert.Equal(t, 1, logs.Len())
}

func TestLoggerNested(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mw := LoggerWithOptions(&LoggerOptions{Logger: zap.New(core)})
	h := mw(mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 1, logs.Len())
}

func TestResponseRecorderFirstStatusWins(t *testing.T) {
	w := httptest.NewRecorder()
	rec := NewResponseRecorder(w)
	_, _ = rec.Write([]byte("{}"))
	rec.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusOK, rec.StatusCode)
	assert.Equal(t, 2, rec.Bytes)
}

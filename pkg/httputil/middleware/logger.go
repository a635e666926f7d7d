package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/edgeflare/pgsynth/pkg/httputil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ResponseRecorder captures the status code and body size a handler writes.
type ResponseRecorder struct {
	http.ResponseWriter
	StatusCode int
	Bytes      int
	written    bool
}

func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (rr *ResponseRecorder) WriteHeader(statusCode int) {
	if !rr.written {
		rr.StatusCode = statusCode
		rr.written = true
	}
	rr.ResponseWriter.WriteHeader(statusCode)
}

func (rr *ResponseRecorder) Write(b []byte) (int, error) {
	rr.written = true
	n, err := rr.ResponseWriter.Write(b)
	rr.Bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rr *ResponseRecorder) Unwrap() http.ResponseWriter { return rr.ResponseWriter }

// LoggerOptions configures LoggerWithOptions.
type LoggerOptions struct {
	Logger *zap.Logger
	// Format builds the fields of the access entry.
	Format func(rec *ResponseRecorder, r *http.Request, latency time.Duration) []zap.Field
	// Skip suppresses the access entry, e.g. for health probes. The
	// request-scoped logger is still installed.
	Skip func(r *http.Request) bool
}

func defaultFormat(rec *ResponseRecorder, r *http.Request, latency time.Duration) []zap.Field {
	return []zap.Field{
		zap.Int("status", rec.StatusCode),
		zap.Int("bytes", rec.Bytes),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("query", r.URL.RawQuery),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
		zap.Duration("latency", latency),
	}
}

// levelFor maps a status class to the level of its access entry.
func levelFor(status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// LoggerWithOptions writes one "response" entry per request, leveled by the
// status class, and stores a logger carrying req_id in the context for
// handlers. Nested use is a no-op.
func LoggerWithOptions(options *LoggerOptions) func(http.Handler) http.Handler {
	var o LoggerOptions
	if options != nil {
		o = *options
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Format == nil {
		o.Format = defaultFormat
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := httputil.Logger(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			logger := o.Logger
			if reqID := httputil.RequestID(r.Context()); reqID != "" {
				logger = logger.With(zap.String("req_id", reqID))
			}
			r = r.WithContext(context.WithValue(r.Context(), httputil.LogEntryCtxKey, logger))

			start := time.Now()
			rec := NewResponseRecorder(w)
			next.ServeHTTP(rec, r)

			if o.Skip != nil && o.Skip(r) {
				return
			}
			if ce := logger.Check(levelFor(rec.StatusCode), "response"); ce != nil {
				ce.Write(o.Format(rec, r, time.Since(start))...)
			}
		})
	}
}

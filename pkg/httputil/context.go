package httputil

import (
	"context"

	"go.uber.org/zap"
)

type ContextKey string

const (
	RequestIDCtxKey ContextKey = "RequestID"
	LogEntryCtxKey  ContextKey = "LogEntry"
)

// RequestID returns the ID the request ID middleware assigned, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDCtxKey).(string)
	return id
}

// Logger returns the request-scoped logger stored by the logging middleware.
func Logger(ctx context.Context) (*zap.Logger, bool) {
	logger, ok := ctx.Value(LogEntryCtxKey).(*zap.Logger)
	return logger, ok && logger != nil
}

// Package pgx holds the connection abstractions shared by the catalog reader
// and the request executor.
package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Querier is the read-only subset of a PostgreSQL connection. The catalog
// extractor only ever needs this.
type Querier interface {
	// Query executes a SQL query and returns the resulting rows.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	// QueryRow executes a query that is expected to return at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pinger is implemented by connections that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

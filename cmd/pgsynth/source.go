package pgsynth

import (
	"context"
	"errors"

	"github.com/edgeflare/pgsynth/pkg/catalog"
	"github.com/edgeflare/pgsynth/pkg/config"
	pg "github.com/edgeflare/pgsynth/pkg/pgx"
	"github.com/edgeflare/pgsynth/pkg/registry"
	"github.com/edgeflare/pgsynth/pkg/synth"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// connect opens the pool when a connection string is configured. The pool
// is nil otherwise.
func connect(ctx context.Context, c *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	if c.Database.ConnString == "" {
		return nil, nil
	}
	return pg.NewPool(ctx, c.Database.ConnString,
		pg.WithPoolLogger(logger),
		pg.WithMaxConns(c.Database.MaxConns),
		pg.WithConnectRetries(c.Database.ConnectRetries),
	)
}

// source picks the catalog: a snapshot file, then an inline snapshot, then
// the live database.
func source(c *config.Config, pool *pgxpool.Pool, logger *zap.Logger) (catalog.Source, error) {
	switch {
	case c.Catalog.File != "":
		return catalog.NewFileSource(c.Catalog.File), nil
	case len(c.Catalog.Inline) > 0:
		return catalog.NewInlineSource(c.Catalog.Inline), nil
	case pool != nil:
		return catalog.NewPostgresSource(pool,
			catalog.WithConcurrency(c.Database.ExtractConcurrency),
			catalog.WithLogger(logger),
		), nil
	}
	return nil, errors.New("no catalog source configured")
}

// newRegistry wires the configured source into a registry without running
// a pass.
func newRegistry(c *config.Config, pool *pgxpool.Pool, logger *zap.Logger) (*registry.Registry, error) {
	src, err := source(c, pool, logger)
	if err != nil {
		return nil, err
	}
	gen := synth.NewGenerator(src, c.Synth(), logger)
	return registry.New(gen, registry.WithLogger(logger), registry.WithTimeout(c.Generator.Timeout)), nil
}

// generate runs one pass for the one-shot commands.
func generate(ctx context.Context, c *config.Config, logger *zap.Logger) (*synth.Artifacts, error) {
	pool, err := connect(ctx, c, logger)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		defer pool.Close()
	}
	reg, err := newRegistry(c, pool, logger)
	if err != nil {
		return nil, err
	}
	return reg.Regenerate(ctx)
}

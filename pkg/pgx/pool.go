package pgx

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ApplicationName identifies pgsynth sessions in pg_stat_activity.
const ApplicationName = "pgsynth"

// PoolOption configures NewPool.
type PoolOption func(*poolOptions)

type poolOptions struct {
	maxConns int32
	retries  uint64
	logger   *zap.Logger
}

// WithMaxConns caps the pool size. Zero keeps the pgxpool default.
func WithMaxConns(n int32) PoolOption {
	return func(o *poolOptions) { o.maxConns = n }
}

// WithConnectRetries sets how many times the initial ping is retried.
func WithConnectRetries(n uint64) PoolOption {
	return func(o *poolOptions) { o.retries = n }
}

// WithPoolLogger logs every new physical connection at debug level.
func WithPoolLogger(logger *zap.Logger) PoolOption {
	return func(o *poolOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyPoolOptions(opts []PoolOption) poolOptions {
	o := poolOptions{retries: 3, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// PoolConfig parses connString and applies the pool options. An
// application_name in connString wins over ApplicationName.
func PoolConfig(connString string, opts ...PoolOption) (*pgxpool.Config, error) {
	o := applyPoolOptions(opts)
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("pgx: parsing connection string: %w", err)
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	}
	if o.maxConns > 0 {
		cfg.MaxConns = o.maxConns
	}
	logger := o.logger
	cfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		logger.Debug("opened database connection",
			zap.String("host", conn.Config().Host),
			zap.String("database", conn.Config().Database),
			zap.Uint32("pid", conn.PgConn().PID()),
		)
		return nil
	}
	return cfg, nil
}

// NewPool opens a pool and pings it, retrying with exponential backoff so a
// database that is still starting up does not fail the process.
func NewPool(ctx context.Context, connString string, opts ...PoolOption) (*pgxpool.Pool, error) {
	o := applyPoolOptions(opts)
	cfg, err := PoolConfig(connString, opts...)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgx: creating pool: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	err = backoff.RetryNotify(func() error {
		return pool.Ping(ctx)
	}, backoff.WithContext(backoff.WithMaxRetries(b, o.retries), ctx), func(err error, wait time.Duration) {
		o.logger.Warn("database not reachable, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: ping connection: %w", err)
	}
	return pool, nil
}

package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ReloadPayload is the NOTIFY payload that requests a regeneration, as in
// NOTIFY pgsynth, 'reload schema'.
const ReloadPayload = "reload schema"

// listener is the part of *pgx.Conn a PGNotify uses. Notifications need a
// dedicated session, so it never borrows from the request pool.
type listener interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// PGNotify regenerates when ReloadPayload is sent on a PostgreSQL channel.
// Lost connections are re-established with exponential backoff, and a pass
// runs after each reconnect since notifications sent meanwhile are lost.
type PGNotify struct {
	channel string
	logger  *zap.Logger
	connect func(ctx context.Context) (listener, error)
	backOff func() backoff.BackOff
}

// NewPGNotify listens on channel over its own connection to connString.
func NewPGNotify(connString, channel string, logger *zap.Logger) *PGNotify {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGNotify{
		channel: channel,
		logger:  logger.With(zap.String("channel", channel)),
		connect: func(ctx context.Context) (listener, error) {
			conn, err := pgx.Connect(ctx, connString)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxInterval = time.Minute
			b.MaxElapsedTime = 0
			return b
		},
	}
}

func (t *PGNotify) Name() string { return "notify" }

func (t *PGNotify) Run(ctx context.Context, reg Regenerator) error {
	b := backoff.WithContext(t.backOff(), ctx)
	for connected := false; ; {
		err := t.listen(ctx, reg, b, &connected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("listen on %q: %w", t.channel, err)
		}
		t.logger.Warn("notification listener lost, reconnecting", zap.Error(err), zap.Duration("wait", wait))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// listen holds one session until it fails or ctx is done.
func (t *PGNotify) listen(ctx context.Context, reg Regenerator, b backoff.BackOff, connected *bool) error {
	conn, err := t.connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := conn.Close(closeCtx); err != nil {
			t.logger.Debug("closing listener connection", zap.Error(err))
		}
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{t.channel}.Sanitize()); err != nil {
		return fmt.Errorf("error listening to channel: %w", err)
	}
	b.Reset()
	t.logger.Info("listening for schema reload notifications")
	if *connected {
		fire(ctx, t.Name(), reg, t.logger)
	}
	*connected = true

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Payload != ReloadPayload {
			t.logger.Debug("ignoring notification", zap.String("payload", n.Payload))
			continue
		}
		fire(ctx, t.Name(), reg, t.logger)
	}
}

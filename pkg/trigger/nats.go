package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATS regenerates on every message published to a subject, so one
// publish reloads a fleet of replicas. Message bodies are ignored.
type NATS struct {
	url     string
	subject string
	logger  *zap.Logger
}

// NewNATS subscribes to subject on the server at url.
func NewNATS(url, subject string, logger *zap.Logger) *NATS {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATS{url: url, subject: subject, logger: logger.With(zap.String("subject", subject))}
}

func (t *NATS) Name() string { return "nats" }

func (t *NATS) options() []nats.Option {
	return []nats.Option{
		nats.Name("pgsynth"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				t.logger.Warn("disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			t.logger.Info("reconnected to NATS", zap.String("server", nc.ConnectedUrl()))
		}),
	}
}

func (t *NATS) Run(ctx context.Context, reg Regenerator) error {
	nc, err := nats.Connect(t.url, t.options()...)
	if err != nil {
		return fmt.Errorf("connect to NATS server: %w", err)
	}
	defer nc.Close()
	return t.consume(ctx, nc, reg)
}

// consume fires once per message until ctx is done. Messages arriving while
// a pass runs are coalesced into the next pass.
func (t *NATS) consume(ctx context.Context, nc *nats.Conn, reg Regenerator) error {
	pending := make(chan struct{}, 1)
	sub, err := nc.Subscribe(t.subject, func(*nats.Msg) {
		select {
		case pending <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to %q: %w", t.subject, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			t.logger.Debug("unsubscribing", zap.Error(err))
		}
	}()
	t.logger.Info("subscribed for schema reloads", zap.String("server", nc.ConnectedUrl()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pending:
			fire(ctx, t.Name(), reg, t.logger)
		}
	}
}

// Announce publishes a reload request on subject, for the CLI and for
// replicas that regenerated on their own.
func Announce(url, subject string) error {
	nc, err := nats.Connect(url, nats.Name("pgsynth"))
	if err != nil {
		return fmt.Errorf("connect to NATS server: %w", err)
	}
	defer nc.Close()
	if err := nc.Publish(subject, []byte(ReloadPayload)); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nc.Flush()
}

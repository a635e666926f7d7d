// Package trigger requests regeneration passes when the schema may have
// changed: on a schedule, on a PostgreSQL notification, when the catalog
// snapshot file is written or when a message arrives on a NATS subject.
package trigger

import (
	"context"
	"errors"

	"github.com/edgeflare/pgsynth/pkg/metrics"
	"github.com/edgeflare/pgsynth/pkg/synth"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Regenerator is the part of *registry.Registry triggers drive.
type Regenerator interface {
	Regenerate(ctx context.Context) (*synth.Artifacts, error)
}

// Trigger requests regenerations until ctx is done.
type Trigger interface {
	// Name labels the trigger in logs and metrics.
	Name() string
	// Run blocks until ctx is done or the trigger cannot continue.
	Run(ctx context.Context, reg Regenerator) error
}

// Run starts every trigger and waits for all of them. It returns the first
// error other than cancellation; one failing trigger stops the others.
func Run(ctx context.Context, reg Regenerator, logger *zap.Logger, triggers ...Trigger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range triggers {
		g.Go(func() error {
			logger.Info("starting reload trigger", zap.String("trigger", t.Name()))
			err := t.Run(ctx, reg)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// fire runs one pass on behalf of trigger. Failures are logged and
// otherwise ignored, the registry keeps serving the previous artifacts.
func fire(ctx context.Context, trigger string, reg Regenerator, logger *zap.Logger) {
	metrics.Triggers.WithLabelValues(trigger).Inc()
	a, err := reg.Regenerate(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("triggered regeneration failed", zap.String("trigger", trigger), zap.Error(err))
		}
		return
	}
	logger.Debug("triggered regeneration", zap.String("trigger", trigger), zap.String("fingerprint", a.Fingerprint))
}

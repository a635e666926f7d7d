package trigger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Interval regenerates on a fixed schedule.
type Interval struct {
	every  time.Duration
	logger *zap.Logger
}

// NewInterval returns a trigger firing every d. d must be positive.
func NewInterval(d time.Duration, logger *zap.Logger) *Interval {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interval{every: d, logger: logger.With(zap.Duration("interval", d))}
}

func (t *Interval) Name() string { return "interval" }

func (t *Interval) Run(ctx context.Context, reg Regenerator) error {
	ticker := time.NewTicker(t.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fire(ctx, t.Name(), reg, t.logger)
		}
	}
}

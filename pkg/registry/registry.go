// Package registry holds the live generation artifacts. Readers load them
// without locking; regenerations are collapsed and swapped in atomically.
package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgeflare/pgsynth/pkg/diag"
	"github.com/edgeflare/pgsynth/pkg/metrics"
	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/edgeflare/pgsynth/pkg/route"
	"github.com/edgeflare/pgsynth/pkg/synth"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Generator runs one generation pass. *synth.Generator implements it.
type Generator interface {
	Generate(ctx context.Context) (*synth.Artifacts, error)
}

// Status summarizes the registry's regeneration history.
type Status struct {
	Generation  uint64    `json:"generation"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Passes      uint64    `json:"passes"`
	Failures    uint64    `json:"failures"`
	LastAttempt time.Time `json:"last_attempt,omitzero"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	Routes      int       `json:"routes"`
	Models      int       `json:"models"`
	Warnings    int       `json:"warnings"`
}

// Registry serves the current *synth.Artifacts.
type Registry struct {
	gen     Generator
	timeout time.Duration
	logger  *zap.Logger

	current atomic.Pointer[synth.Artifacts]
	group   singleflight.Group

	mu       sync.Mutex // guards status and watchers, serializes swaps
	status   Status
	watchers map[chan *synth.Artifacts]struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout bounds each pass, independently of callers' contexts.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New returns an empty Registry. Call Regenerate to load the first artifacts.
func New(gen Generator, opts ...Option) *Registry {
	r := &Registry{
		gen:      gen,
		logger:   zap.NewNop(),
		watchers: map[chan *synth.Artifacts]struct{}{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Current returns the live artifacts, or nil before the first successful pass.
func (r *Registry) Current() *synth.Artifacts { return r.current.Load() }

// Regenerate runs a pass and swaps in its result. Concurrent calls share a
// single pass. Cancelling ctx stops the wait but not the pass; a failed pass
// leaves the previous artifacts live.
func (r *Registry) Regenerate(ctx context.Context) (*synth.Artifacts, error) {
	ch := r.group.DoChan("regenerate", func() (any, error) {
		return r.pass(ctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*synth.Artifacts), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) pass(ctx context.Context) (*synth.Artifacts, error) {
	ctx = context.WithoutCancel(ctx)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	a, err := r.gen.Generate(ctx)
	metrics.RegenerationDuration.Observe(time.Since(start).Seconds())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Passes++
	r.status.LastAttempt = start

	if err != nil {
		r.status.Failures++
		r.status.LastError = err.Error()
		metrics.Regenerations.WithLabelValues("failure").Inc()
		r.logger.Error("regeneration failed, keeping previous artifacts", zap.Error(err))
		return nil, err
	}
	metrics.Regenerations.WithLabelValues("success").Inc()
	r.status.LastSuccess = time.Now()
	r.status.LastError = ""

	if prev := r.current.Load(); prev != nil && prev.Fingerprint == a.Fingerprint {
		r.logger.Debug("schema unchanged", zap.String("fingerprint", a.Fingerprint))
		return prev, nil
	}

	r.current.Store(a)
	r.status.Generation++
	r.status.Fingerprint = a.Fingerprint
	r.status.Routes = len(a.Routes)
	r.status.Models = a.Models.Len()
	r.status.Warnings = len(a.Diagnostics)
	record(a)

	for ch := range r.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- a
	}
	r.logger.Info("artifacts swapped",
		zap.Uint64("generation", r.status.Generation),
		zap.String("fingerprint", a.Fingerprint),
		zap.Int("routes", len(a.Routes)),
	)
	return a, nil
}

func record(a *synth.Artifacts) {
	metrics.Routes.Set(float64(len(a.Routes)))
	metrics.Models.Set(float64(a.Models.Len()))
	metrics.Warnings.Reset()
	counts := map[diag.Kind]int{}
	for _, w := range a.Diagnostics {
		counts[w.Kind]++
	}
	for kind, n := range counts {
		metrics.Warnings.WithLabelValues(string(kind)).Set(float64(n))
	}
}

// Watch returns a channel receiving every newly swapped artifacts value. Only
// the latest value is buffered, so slow readers skip intermediate ones. The
// channel is closed when ctx is done.
func (r *Registry) Watch(ctx context.Context) <-chan *synth.Artifacts {
	ch := make(chan *synth.Artifacts, 1)
	r.mu.Lock()
	r.watchers[ch] = struct{}{}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(r.watchers, ch)
		close(ch)
		r.mu.Unlock()
	}()
	return ch
}

// Status returns a snapshot of the regeneration history.
func (r *Registry) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Lookup returns everything generated for entity in the live artifacts.
func (r *Registry) Lookup(entity string) (synth.Entity, bool) {
	a := r.Current()
	if a == nil {
		return synth.Entity{}, false
	}
	return a.Entity(entity)
}

// Models returns the live models of entity.
func (r *Registry) Models(entity string) []*model.Model {
	if a := r.Current(); a != nil {
		return a.Models.Entity(entity)
	}
	return nil
}

// Routes returns the live routes of entity, or every route when entity is empty.
func (r *Registry) Routes(entity string) []route.Route {
	a := r.Current()
	switch {
	case a == nil:
		return nil
	case entity == "":
		return a.Routes
	default:
		return a.RoutesFor(entity)
	}
}

// Package synth runs one generation pass: extract the catalog, build the
// graph, synthesize models and generate routes.
package synth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/edgeflare/pgsynth/pkg/catalog"
	"github.com/edgeflare/pgsynth/pkg/diag"
	"github.com/edgeflare/pgsynth/pkg/graph"
	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/edgeflare/pgsynth/pkg/route"
	"go.uber.org/zap"
)

// Options configures every stage of a pass.
type Options struct {
	Scope   catalog.Scope
	Graph   graph.Options
	Model   model.Options
	Route   route.Options
	Timeout time.Duration
}

// Generator produces Artifacts from a catalog source.
type Generator struct {
	source catalog.Source
	opts   Options
	logger *zap.Logger
}

// NewGenerator returns a Generator reading from source. A nil logger disables logging.
func NewGenerator(source catalog.Source, opts Options, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{source: source, opts: opts, logger: logger}
}

// Generate runs a full pass. A pass exceeding the configured timeout fails
// with a *diag.ExtractionError whose Op is "timeout".
func (g *Generator) Generate(ctx context.Context) (*Artifacts, error) {
	start := time.Now()
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	snap, err := g.source.Extract(ctx, g.opts.Scope)
	if err != nil {
		return nil, timeout(ctx, err)
	}
	snap.Sort()
	if err := ctx.Err(); err != nil {
		return nil, timeout(ctx, err)
	}

	sg, diags, err := graph.Build(snap, g.opts.Graph)
	if err != nil {
		return nil, err
	}
	set, modelDiags, err := model.Synthesize(sg, g.opts.Model)
	diags.Merge(modelDiags)
	if err != nil {
		return nil, err
	}
	routes, err := route.Generate(sg, set, g.opts.Route)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, timeout(ctx, err)
	}

	a := &Artifacts{
		Graph:       sg,
		Models:      set,
		Routes:      routes,
		Diagnostics: diags,
		GeneratedAt: time.Now().UTC(),
	}
	if a.Fingerprint, err = fingerprint(a.Descriptor()); err != nil {
		return nil, fmt.Errorf("fingerprint: %w", err)
	}

	diags.Log(g.logger)
	g.logger.Info("generation pass complete",
		zap.Int("tables", len(sg.Tables())),
		zap.Int("models", set.Len()),
		zap.Int("routes", len(routes)),
		zap.Int("warnings", len(diags)),
		zap.String("fingerprint", a.Fingerprint[:12]),
		zap.Duration("took", time.Since(start)),
	)
	return a, nil
}

func timeout(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		var ee *diag.ExtractionError
		if errors.As(err, &ee) && ee.Op == "timeout" {
			return err
		}
		return &diag.ExtractionError{Op: "timeout", Cause: err}
	}
	return err
}

func fingerprint(d Descriptor) (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

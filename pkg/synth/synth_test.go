package synth

import (
	"context"
	"testing"
	"time"

	"github.com/edgeflare/pgsynth/internal/testutil"
	"github.com/edgeflare/pgsynth/pkg/catalog"
	"github.com/edgeflare/pgsynth/pkg/diag"
	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/edgeflare/pgsynth/pkg/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func shopOptions() Options {
	return Options{
		Scope:   catalog.Scope{Exclude: []string{"internal"}},
		Model:   model.Options{MaxNestedDepth: 1, ExposeRoutines: true},
		Route:   route.Options{DefaultPageSize: 100, MaxPageSize: 1000, ExposeRoutines: true},
		Timeout: 5 * time.Second,
	}
}

type slowSource struct{}

func (slowSource) Extract(ctx context.Context, _ catalog.Scope) (*catalog.Snapshot, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGenerate(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	gen := NewGenerator(catalog.NewFileSource(testutil.Path("shop.yaml")), shopOptions(), zap.New(core))

	a, err := gen.Generate(context.Background())
	require.NoError(t, err)
	assert.Len(t, a.Fingerprint, 64)
	assert.NotEmpty(t, a.Routes)
	assert.True(t, a.Diagnostics.Has(diag.KindHiddenJunction, "public.post_tags"))
	assert.Equal(t, 1, logs.FilterMessage("generation pass complete").Len())

	users, ok := a.Entity("public.users")
	require.True(t, ok)
	assert.NotNil(t, users.Table)
	assert.Len(t, users.Routes, 5)
	assert.Len(t, users.Models, 5)

	add, ok := a.Entity("public.add(integer,integer)")
	require.True(t, ok)
	assert.NotNil(t, add.Routine)
	assert.Len(t, add.Routes, 1)

	_, ok = a.Entity("public.nope")
	assert.False(t, ok)
}

func TestGenerateIsIdempotent(t *testing.T) {
	gen := NewGenerator(catalog.NewFileSource(testutil.Path("shop.yaml")), shopOptions(), nil)
	first, err := gen.Generate(context.Background())
	require.NoError(t, err)
	second, err := gen.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	opts := shopOptions()
	opts.Model.NamingStrategy = model.Camel
	third, err := NewGenerator(catalog.NewFileSource(testutil.Path("shop.yaml")), opts, nil).Generate(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.Fingerprint, third.Fingerprint)
}

func TestGenerateTimeout(t *testing.T) {
	opts := shopOptions()
	opts.Timeout = 10 * time.Millisecond
	_, err := NewGenerator(slowSource{}, opts, nil).Generate(context.Background())
	require.Error(t, err)
	var ee *diag.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "timeout", ee.Op)
}

func TestGenerateAbortsOnCollision(t *testing.T) {
	src := catalog.NewInlineSource(map[string]any{
		"relations": []any{
			map[string]any{"schema": "public", "name": "t", "primary_key": []any{"id"},
				"columns": []any{map[string]any{"name": "id", "native_type": "integer"}}},
			map[string]any{"schema": "public", "name": "t", "primary_key": []any{"id"},
				"columns": []any{map[string]any{"name": "id", "native_type": "integer"}}},
		},
	})
	_, err := NewGenerator(src, Options{}, nil).Generate(context.Background())
	assert.ErrorIs(t, err, diag.ErrNamingCollision)
}

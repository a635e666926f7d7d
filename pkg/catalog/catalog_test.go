package catalog

import (
	"context"
	"testing"

	"github.com/edgeflare/pgsynth/internal/testutil"
	"github.com/edgeflare/pgsynth/pkg/diag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeAllows(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		ns    string
		want  bool
	}{
		{"empty include admits user namespace", Scope{}, "public", true},
		{"system namespace never", Scope{Include: []string{"*"}}, "pg_catalog", false},
		{"information_schema never", Scope{}, "information_schema", false},
		{"include glob", Scope{Include: []string{"app_*"}}, "app_core", true},
		{"include glob miss", Scope{Include: []string{"app_*"}}, "public", false},
		{"exclude wins", Scope{Include: []string{"*"}, Exclude: []string{"internal"}}, "internal", false},
		{"exclude glob", Scope{Exclude: []string{"tmp?"}}, "tmp1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scope.Allows(tt.ns))
		})
	}
}

func TestScopeValidate(t *testing.T) {
	assert.NoError(t, Scope{Include: []string{"a*", "b?"}}.Validate())
	assert.Error(t, Scope{Exclude: []string{"[unterminated"}}.Validate())
}

func TestRoutineSignature(t *testing.T) {
	r := Routine{
		Schema: "public",
		Name:   "search",
		Params: []Param{
			{Name: "q", Type: "TEXT", Mode: ModeIn},
			{Name: "n", Type: "integer", Mode: ModeInOut},
			{Name: "id", Type: "bigint", Mode: ModeTable},
			{Name: "rest", Type: "text[]", Mode: ModeVariadic},
		},
	}
	assert.Equal(t, "public.search(text,integer,text[])", r.Signature())
	assert.Len(t, r.Inputs(), 3)
}

func TestFileSource(t *testing.T) {
	src := NewFileSource(testutil.Path("shop.yaml"))
	snap, err := src.Extract(context.Background(), Scope{Exclude: []string{"internal"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"internal"}, snap.Excluded)
	assert.True(t, snap.IsExcluded("internal.accounts"))
	assert.False(t, snap.IsExcluded("public.users"))

	names := make([]string, 0, len(snap.Relations))
	for _, r := range snap.Relations {
		names = append(names, r.QualifiedName())
	}
	assert.Equal(t, []string{
		"public.active_users",
		"public.audit_log",
		"public.event_log",
		"public.order_items",
		"public.orders",
		"public.post_tags",
		"public.posts",
		"public.tags",
		"public.users",
		"sales.orders",
	}, names)

	users := snap.Relations[8]
	assert.Equal(t, KindTable, users.Kind)
	assert.Equal(t, []string{"id"}, users.PrimaryKey)
	require.Len(t, users.ForeignKeys, 1)
	assert.Equal(t, "public.users", users.ForeignKeys[0].Target())
	assert.Equal(t, "SET NULL", users.ForeignKeys[0].OnDelete)
	assert.Equal(t, "public.user_status", users.Columns[3].EnumRef)

	require.Len(t, snap.Enums, 1)
	assert.Equal(t, []string{"active", "suspended", "deleted"}, snap.Enums[0].Values)

	sigs := make([]string, 0, len(snap.Routines))
	for _, r := range snap.Routines {
		sigs = append(sigs, r.Signature())
	}
	assert.Equal(t, []string{
		"public.add(integer,integer)",
		"public.add(numeric,numeric)",
		"public.archive_user(integer)",
		"public.recent_users(timestamp with time zone)",
		"public.search_posts(text,integer)",
		"public.touch_updated_at()",
	}, sigs)
}

func TestFileSourceMissingFile(t *testing.T) {
	_, err := NewFileSource("does-not-exist.yaml").Extract(context.Background(), Scope{})
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrExtraction)
}

func TestDecodeSnapshotRejectsUnknownKeys(t *testing.T) {
	_, err := DecodeSnapshotYAML([]byte(`
relations:
  - schema: public
    name: t
    colums: []
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colums")
}

func TestInlineSourceDefaults(t *testing.T) {
	src := NewInlineSource(map[string]any{
		"relations": []any{
			map[string]any{
				"schema": "public",
				"name":   "notes",
				"columns": []any{
					map[string]any{"name": "id", "native_type": "int4"},
					map[string]any{"name": "body", "native_type": "text", "nullable": "true"},
				},
				"primary_key": []any{"id"},
			},
		},
	})
	snap, err := src.Extract(context.Background(), Scope{})
	require.NoError(t, err)
	require.Len(t, snap.Relations, 1)
	notes := snap.Relations[0]
	assert.Equal(t, KindTable, notes.Kind)
	assert.Equal(t, 2, notes.Columns[1].Position)
	assert.True(t, notes.Columns[1].Nullable)
}

func TestSnapshotYAMLRoundTrip(t *testing.T) {
	snap, err := DecodeSnapshotYAML(testutil.ReadFile(t, "shop.yaml"))
	require.NoError(t, err)

	data, err := EncodeSnapshotYAML(snap)
	require.NoError(t, err)

	again, err := DecodeSnapshotYAML(data)
	require.NoError(t, err)
	assert.Equal(t, snap, again)
}

func TestFileSourceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFileSource(testutil.Path("shop.yaml")).Extract(ctx, Scope{})
	assert.ErrorIs(t, err, diag.ErrExtraction)
}

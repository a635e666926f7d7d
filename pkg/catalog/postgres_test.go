package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/edgeflare/pgsynth/internal/testutil/pgtest"
	"github.com/edgeflare/pgsynth/pkg/diag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleRelations(t *testing.T) {
	snap := &Snapshot{}
	assembleRelations(snap,
		[]relationRow{
			{Schema: "app", Name: "items", Kind: "r", Readable: true},
			{Schema: "app", Name: "secret", Kind: "r", Readable: false},
			{Schema: "app", Name: "odd", Kind: "x", Readable: true},
		},
		[]columnRow{
			{Schema: "app", Table: "items", Name: "id", Position: 1, Native: "integer", HasDefault: true, Default: "nextval('items_id_seq'::regclass)"},
			{Schema: "app", Table: "items", Name: "name", Position: 2, Native: "text", Nullable: true},
			{Schema: "app", Table: "secret", Name: "x", Position: 1, Native: "text"},
		},
		[]constraintRow{
			{Schema: "app", Table: "items", Name: "items_pkey", Type: "p", Columns: []string{"id"}},
			{Schema: "app", Table: "items", Name: "items_name_key", Type: "u", Columns: []string{"name"}},
			{Schema: "app", Table: "items", Name: "items_parent_fkey", Type: "f", Columns: []string{"id"},
				TargetSchema: "app", TargetTable: "items", TargetColumns: []string{"id"}, OnDelete: "c", OnUpdate: "a"},
		},
	)

	require.Len(t, snap.Relations, 1)
	items := snap.Relations[0]
	assert.Equal(t, KindTable, items.Kind)
	require.Len(t, items.Columns, 2)
	assert.True(t, items.Columns[0].Generated, "nextval default marks the column generated")
	assert.Equal(t, []string{"id"}, items.PrimaryKey)
	assert.Equal(t, []Unique{{Name: "items_name_key", Columns: []string{"name"}}}, items.Uniques)
	require.Len(t, items.ForeignKeys, 1)
	assert.Equal(t, "CASCADE", items.ForeignKeys[0].OnDelete)
	assert.Equal(t, "NO ACTION", items.ForeignKeys[0].OnUpdate)

	assert.Equal(t, []string{"app.secret"}, snap.Omitted)
	require.Len(t, snap.Opaque, 1)
	assert.True(t, snap.Warnings.Has(diag.KindOmittedTable, "app.secret"))
	assert.True(t, snap.Warnings.Has(diag.KindOpaqueObject, "app.odd"))
}

func TestAssembleRoutine(t *testing.T) {
	tests := []struct {
		name string
		row  routineRow
		want Return
	}{
		{
			name: "scalar",
			row:  routineRow{Kind: "f", ReturnType: "integer", ArgTypes: []string{"integer", "integer"}, ArgNames: []string{"a", "b"}},
			want: Return{Kind: ReturnScalar, Type: "integer"},
		},
		{
			name: "void",
			row:  routineRow{Kind: "f", ReturnsVoid: true, ReturnType: "void"},
			want: Return{Kind: ReturnNone},
		},
		{
			name: "returns table",
			row: routineRow{
				Kind: "f", ReturnsSet: true, ReturnType: "record",
				ArgTypes: []string{"text", "bigint", "text"},
				ArgNames: []string{"q", "id", "title"},
				ArgModes: []string{"i", "t", "t"},
			},
			want: Return{Kind: ReturnRowSet, Set: true, Columns: []Param{
				{Name: "id", Type: "bigint", Mode: ModeTable},
				{Name: "title", Type: "text", Mode: ModeTable},
			}},
		},
		{
			name: "setof relation",
			row:  routineRow{Kind: "f", ReturnsSet: true, ReturnType: "users", ReturnRelation: "public.users"},
			want: Return{Kind: ReturnRowSet, Set: true, Type: "users", Relation: "public.users"},
		},
		{
			name: "procedure with inout",
			row: routineRow{
				Kind: "p", ReturnType: "record",
				ArgTypes: []string{"integer"}, ArgNames: []string{"n"}, ArgModes: []string{"b"},
			},
			want: Return{Kind: ReturnRowSet, Columns: []Param{{Name: "n", Type: "integer", Mode: ModeInOut}}},
		},
		{
			name: "trigger",
			row:  routineRow{Kind: "f", IsTrigger: true, ReturnType: "trigger"},
			want: Return{Kind: ReturnNone, Type: "trigger"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.row.Schema, tt.row.Name = "public", "fn"
			snap := &Snapshot{}
			assembleRoutine(snap, tt.row)
			require.Len(t, snap.Routines, 1)
			assert.Equal(t, tt.want, snap.Routines[0].Returns)
		})
	}
}

func TestAssembleRoutineDefaultsAndOpaque(t *testing.T) {
	snap := &Snapshot{}
	assembleRoutine(snap, routineRow{
		Schema: "public", Name: "page", Kind: "f", ReturnType: "integer",
		ArgTypes:  []string{"text", "integer", "integer"},
		ArgNames:  []string{"q", "", "off"},
		NDefaults: 2,
	})
	assembleRoutine(snap, routineRow{Schema: "public", Name: "anon", Kind: "f", ReturnType: "record"})

	require.Len(t, snap.Routines, 1)
	params := snap.Routines[0].Params
	assert.False(t, params[0].HasDefault)
	assert.True(t, params[1].HasDefault)
	assert.True(t, params[2].HasDefault)
	assert.Equal(t, "arg2", params[1].Name)

	require.Len(t, snap.Opaque, 1)
	assert.Equal(t, "anon", snap.Opaque[0].Name)
}

func TestPostgresSourceExtract(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool := pgtest.Pool(ctx, t)

	pgtest.Exec(ctx, t, pool,
		`DROP SCHEMA IF EXISTS pgsynth_extract CASCADE`,
		`CREATE SCHEMA pgsynth_extract`,
		`CREATE TYPE pgsynth_extract.mood AS ENUM ('sad', 'ok', 'happy')`,
		`CREATE TABLE pgsynth_extract.people (
			id serial PRIMARY KEY,
			email varchar(120) NOT NULL UNIQUE,
			mood pgsynth_extract.mood,
			boss_id int REFERENCES pgsynth_extract.people (id) ON DELETE SET NULL
		)`,
		`CREATE TABLE pgsynth_extract.shifts (
			person_id int NOT NULL,
			day date NOT NULL,
			hours numeric(4,2),
			PRIMARY KEY (person_id, day),
			FOREIGN KEY (person_id) REFERENCES pgsynth_extract.people (id)
		)`,
		`CREATE VIEW pgsynth_extract.happy_people AS SELECT id, email FROM pgsynth_extract.people WHERE mood = 'happy'`,
		`CREATE FUNCTION pgsynth_extract.add(a int, b int DEFAULT 1) RETURNS int LANGUAGE sql IMMUTABLE AS 'SELECT a + b'`,
		`CREATE FUNCTION pgsynth_extract.busy(min_hours numeric)
			RETURNS TABLE (person_id int, total numeric) LANGUAGE sql STABLE
			AS 'SELECT person_id, sum(hours) FROM pgsynth_extract.shifts GROUP BY 1 HAVING sum(hours) >= min_hours'`,
	)
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DROP SCHEMA IF EXISTS pgsynth_extract CASCADE`)
	})

	snap, err := NewPostgresSource(pool).Extract(ctx, Scope{Include: []string{"pgsynth_extract"}})
	require.NoError(t, err)

	require.Len(t, snap.Relations, 3)
	people := snap.Relations[1]
	assert.Equal(t, "people", people.Name)
	assert.Equal(t, []string{"id"}, people.PrimaryKey)
	assert.True(t, people.Columns[0].Generated)
	assert.Equal(t, "pgsynth_extract.mood", people.Columns[2].EnumRef)
	require.Len(t, people.ForeignKeys, 1)
	assert.Equal(t, "SET NULL", people.ForeignKeys[0].OnDelete)

	shifts := snap.Relations[2]
	assert.Equal(t, []string{"person_id", "day"}, shifts.PrimaryKey)
	assert.Equal(t, "numeric(4,2)", shifts.Columns[2].NativeType)

	view := snap.Relations[0]
	assert.Equal(t, KindView, view.Kind)
	base, ok := ParseViewBase(view.ViewDefinition)
	require.True(t, ok)
	assert.Equal(t, "people", base.Name)

	require.Len(t, snap.Enums, 1)
	assert.Equal(t, []string{"sad", "ok", "happy"}, snap.Enums[0].Values)

	require.Len(t, snap.Routines, 2)
	assert.Equal(t, "pgsynth_extract.add(integer,integer)", snap.Routines[0].Signature())
	assert.True(t, snap.Routines[0].Params[1].HasDefault)
	assert.Equal(t, ReturnRowSet, snap.Routines[1].Returns.Kind)
	assert.Len(t, snap.Routines[1].Returns.Columns, 2)
	assert.Contains(t, snap.Excluded, "public")
}

package rest

import (
	"fmt"
	"testing"

	"github.com/edgeflare/pgsynth/pkg/catalog"
	"github.com/edgeflare/pgsynth/pkg/graph"
	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/edgeflare/pgsynth/pkg/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(t *testing.T, m *model.Model, names ...string) []model.Field {
	t.Helper()
	out := make([]model.Field, 0, len(names))
	for _, n := range names {
		f, ok := m.Field(n)
		require.True(t, ok, n)
		out = append(out, f)
	}
	return out
}

func shopTable(t *testing.T, a *synth.Artifacts, name string) (*graph.Table, *model.Model) {
	t.Helper()
	tbl, ok := a.Graph.Lookup(name)
	require.True(t, ok, name)
	read, ok := a.Models.For(name, model.Read)
	require.True(t, ok, name)
	return tbl, read
}

func TestListStatement(t *testing.T) {
	a := shopArtifacts(t)
	tags, read := shopTable(t, a, "public.tags")

	st, err := listStatement(a.Graph, tags, Query{Select: fields(t, read, "id", "name"), Limit: 100}, false)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT coalesce(json_agg(to_json(p)), '[]'::json) FROM (SELECT t0."id" AS "id", t0."name" AS "name" FROM "public"."tags" AS t0 ORDER BY t0."id" LIMIT 100) AS p`,
		st.SQL)
	assert.Empty(t, st.Args)
}

func TestListStatementFiltersAndCount(t *testing.T) {
	a := shopArtifacts(t)
	tags, read := shopTable(t, a, "public.tags")

	q := Query{
		Select: fields(t, read, "name"),
		Order:  []OrderParam{{Column: "name", Direction: "desc", Nulls: "last"}},
		Limit:  10,
		Offset: 20,
		Where: Group{
			Filters: []Filter{{Column: "name", Op: "like", Value: "g%"}},
			Groups: []Group{{
				Or: true,
				Filters: []Filter{
					{Column: "id", Op: "in", List: []any{int64(1), int64(2)}},
					{Column: "id", Op: "gt", Value: int64(9), Negate: true},
				},
			}},
		},
	}
	st, err := listStatement(a.Graph, tags, q, true)
	require.NoError(t, err)

	where := `WHERE (t0."name" LIKE $%d AND (t0."id" IN ($%d,$%d) OR NOT (t0."id" > $%d)))`
	assert.Equal(t,
		`SELECT coalesce(json_agg(to_json(p)), '[]'::json), `+
			`(SELECT count(*) FROM "public"."tags" AS t0 `+fmt.Sprintf(where, 1, 2, 3, 4)+`) AS total `+
			`FROM (SELECT t0."name" AS "name" FROM "public"."tags" AS t0 `+fmt.Sprintf(where, 5, 6, 7, 8)+
			` ORDER BY t0."name" DESC NULLS LAST LIMIT 10 OFFSET 20) AS p`,
		st.SQL)
	assert.Equal(t, []any{"g%", int64(1), int64(2), int64(9), "g%", int64(1), int64(2), int64(9)}, st.Args)
}

func TestFilterSQL(t *testing.T) {
	tests := []struct {
		filter Filter
		sql    string
		args   []any
	}{
		{Filter{Column: "a", Op: "eq", Value: 1}, `t0."a" = ?`, []any{1}},
		{Filter{Column: "a", Op: "neq", Value: 1}, `t0."a" <> ?`, []any{1}},
		{Filter{Column: "a", Op: "ilike", Value: "%x"}, `t0."a" ILIKE ?`, []any{"%x"}},
		{Filter{Column: "a", Op: "in"}, `false`, nil},
		{Filter{Column: "a", Op: "notin"}, `true`, nil},
		{Filter{Column: "a", Op: "notin", List: []any{1}}, `t0."a" NOT IN (?)`, []any{1}},
		{Filter{Column: "a", Op: "is", Value: "unknown"}, `t0."a" IS UNKNOWN`, nil},
		{Filter{Column: "a", Op: "isnull", Value: false}, `t0."a" IS NOT NULL`, nil},
		{Filter{Column: "a", Op: "is", Value: "null", Negate: true}, `NOT (t0."a" IS NULL)`, nil},
	}
	for _, tt := range tests {
		sql, args, err := tt.filter.sqlize(baseAlias).ToSql()
		require.NoError(t, err)
		assert.Equal(t, tt.sql, sql)
		assert.Equal(t, tt.args, args)
	}
}

func TestGetStatementWithEmbed(t *testing.T) {
	a := shopArtifacts(t)
	posts, read := shopTable(t, a, "public.posts")

	q := Query{Select: fields(t, read, "id", "title"), Embed: fields(t, read, "tags")}
	st, err := getStatement(a.Graph, posts, q, map[string]any{"id": int64(3)})
	require.NoError(t, err)

	assert.Contains(t, st.SQL, `SELECT to_json(p) FROM (SELECT t0."id" AS "id", t0."title" AS "title", (SELECT coalesce(json_agg(to_json(w)), '[]'::json) FROM (SELECT `)
	assert.Contains(t, st.SQL, `FROM "public"."tags" AS e0 JOIN "public"."post_tags" AS e0j ON e0j."tag_id" = e0."id" WHERE e0j."post_id" = t0."id" ORDER BY e0."id") w) AS "tags"`)
	assert.Contains(t, st.SQL, `FROM "public"."posts" AS t0 WHERE t0."id" = $1) AS p`)
	assert.Equal(t, []any{int64(3)}, st.Args)
}

func TestManyToOneEmbed(t *testing.T) {
	a := shopArtifacts(t)
	_, read := shopTable(t, a, "public.users")
	manager, _ := read.Field("manager")

	sql, _, err := embed(a.Graph, manager, 1).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, `FROM "public"."users" AS e1 WHERE e1."id" = t0."manager_id" ORDER BY e1."id" LIMIT 1) w) AS "manager"`)
	assert.Contains(t, sql, `(SELECT to_json(w) FROM (SELECT e1."id" AS "id"`)
}

func TestMutationStatements(t *testing.T) {
	a := shopArtifacts(t)
	tags, read := shopTable(t, a, "public.tags")
	ret := fields(t, read, "id", "name")
	returning := ` RETURNING "id" AS "id", "name" AS "name") SELECT to_json(m) FROM m`

	st, err := insertStatement(tags, map[string]any{"name": "go"}, ret)
	require.NoError(t, err)
	assert.Equal(t, `WITH m AS (INSERT INTO "public"."tags" ("name") VALUES ($1)`+returning, st.SQL)
	assert.Equal(t, []any{"go"}, st.Args)

	st, err = insertStatement(tags, nil, ret)
	require.NoError(t, err)
	assert.Equal(t, `WITH m AS (INSERT INTO "public"."tags" DEFAULT VALUES`+returning, st.SQL)

	st, err = updateStatement(tags, map[string]any{"id": int64(7)}, map[string]any{"name": "rust"}, ret)
	require.NoError(t, err)
	assert.Equal(t, `WITH m AS (UPDATE "public"."tags" SET "name" = $1 WHERE "id" = $2`+returning, st.SQL)
	assert.Equal(t, []any{"rust", int64(7)}, st.Args)

	st, err = deleteStatement(tags, map[string]any{"id": int64(7)}, ret)
	require.NoError(t, err)
	assert.Equal(t, `WITH m AS (DELETE FROM "public"."tags" WHERE "id" = $1`+returning, st.SQL)
	assert.Equal(t, []any{int64(7)}, st.Args)
}

func TestCallStatements(t *testing.T) {
	a := shopArtifacts(t)
	ix := newIndex(a)

	add := ix.routines["public.add(integer,integer)"]
	require.NotNil(t, add)
	out, _ := a.Models.Get("AddIntegerIntegerOutput")
	st, err := callStatement(add, map[string]any{"a": int64(1), "b": int64(2)}, out)
	require.NoError(t, err)
	assert.Equal(t, `SELECT to_json(p) FROM (SELECT r.v AS "add" FROM "public"."add"($1::integer, $2::integer) AS r(v)) p`, st.SQL)
	assert.Equal(t, []any{int64(1), int64(2)}, st.Args)

	addNumeric := ix.routines["public.add(numeric,numeric)"]
	require.NotNil(t, addNumeric)
	out, _ = a.Models.Get("AddNumericNumericOutput")
	st, err = callStatement(addNumeric, map[string]any{"a": "1.5", "b": "2"}, out)
	require.NoError(t, err)
	assert.Equal(t, `SELECT to_json(p) FROM (SELECT r.v AS "add" FROM "public"."add"($1::numeric, $2::numeric) AS r(v)) p`, st.SQL)

	search := ix.routines["public.search_posts(text,integer)"]
	require.NotNil(t, search)
	out, _ = a.Models.Get("SearchPostsOutput")
	st, err = callStatement(search, map[string]any{"q": "go"}, out)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT coalesce(json_agg(to_json(p)), '[]'::json) FROM (SELECT r."id" AS "id", r."title" AS "title" FROM "public"."search_posts"($1) AS r) p`,
		st.SQL)

	archive := ix.routines["public.archive_user(integer)"]
	require.NotNil(t, archive)
	st, err = callStatement(archive, map[string]any{"user_id": int64(4)}, nil)
	require.NoError(t, err)
	assert.Equal(t, `CALL "public"."archive_user"($1)`, st.SQL)
}

func TestCallArgsSwitchToNamedNotation(t *testing.T) {
	r := &graph.Routine{
		Schema: "public",
		Name:   "f",
		Params: []graph.Param{
			{Name: "a", Mode: catalog.ModeIn},
			{Name: "b", Mode: catalog.ModeIn, HasDefault: true},
			{Name: "c", Mode: catalog.ModeIn, HasDefault: true},
		},
	}
	list, args := callArgs(r, map[string]any{"a": 1, "c": 3})
	assert.Equal(t, `(?, "c" => ?)`, list)
	assert.Equal(t, []any{1, 3}, args)

	r.Overloaded = true
	r.Params[0].Native = "integer"
	r.Params[2].Native = "text"
	list, _ = callArgs(r, map[string]any{"a": 1, "c": 3})
	assert.Equal(t, `(?::integer, "c" => ?::text)`, list)
}

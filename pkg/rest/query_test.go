package rest

import (
	"net/url"
	"testing"

	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/edgeflare/pgsynth/pkg/route"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listQuery(t *testing.T, entity, raw string) (Query, error) {
	t.Helper()
	a := shopArtifacts(t)
	rt := routeFor(t, a, route.List, entity)
	read, ok := a.Models.Get(rt.Output)
	require.True(t, ok)
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	return parseQuery(values, rt, read)
}

func names(fields []model.Field) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.Name)
	}
	return out
}

func TestParseQueryDefaults(t *testing.T) {
	q, err := listQuery(t, "public.users", "")
	require.NoError(t, err)
	assert.Equal(t, 100, q.Limit)
	assert.Zero(t, q.Offset)
	assert.Equal(t, []string{"id", "email", "display_name", "status", "manager_id", "balance", "created_at"}, names(q.Select))
	assert.Empty(t, q.Embed)
	assert.True(t, q.Where.Empty())
}

func TestParseQuerySelectEmbedOrder(t *testing.T) {
	q, err := listQuery(t, "public.users", "select=email,id,email&embed=manager&order=balance.desc.nullslast,id&limit=5000&offset=20")
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "id"}, names(q.Select))
	assert.Equal(t, []string{"manager"}, names(q.Embed))
	assert.Equal(t, []OrderParam{
		{Column: "balance", Direction: "desc", Nulls: "last"},
		{Column: "id", Direction: "asc"},
	}, q.Order)
	assert.Equal(t, 1000, q.Limit, "clamped to the route maximum")
	assert.Equal(t, 20, q.Offset)
}

func TestParseQueryFilters(t *testing.T) {
	q, err := listQuery(t, "public.users", "email=ilike.*@example.com&id=not.in.(1,2)&balance=gte.10.5&display_name=is.null")
	require.NoError(t, err)
	require.Len(t, q.Where.Filters, 4)

	byField := map[string]Filter{}
	for _, f := range q.Where.Filters {
		byField[f.Field] = f
	}
	assert.Equal(t, "%@example.com", byField["email"].Value)
	assert.Equal(t, "ilike", byField["email"].Op)

	id := byField["id"]
	assert.True(t, id.Negate)
	assert.Equal(t, []any{int64(1), int64(2)}, id.List)

	balance := byField["balance"]
	assert.True(t, decimal.RequireFromString("10.5").Equal(balance.Value.(decimal.Decimal)))

	assert.Equal(t, "null", byField["display_name"].Value)
}

func TestParseQueryGroups(t *testing.T) {
	q, err := listQuery(t, "public.users", "or=(status.eq.active,and(balance.gt.0,manager_id.isnull.false))&not.and=(id.lt.10)")
	require.NoError(t, err)
	require.Len(t, q.Where.Groups, 2)

	notAnd, or := q.Where.Groups[0], q.Where.Groups[1]
	assert.True(t, notAnd.Negate)
	assert.False(t, notAnd.Or)
	assert.Equal(t, int64(10), notAnd.Filters[0].Value)

	assert.True(t, or.Or)
	require.Len(t, or.Filters, 1)
	assert.Equal(t, "active", or.Filters[0].Value)
	require.Len(t, or.Groups, 1)
	assert.Len(t, or.Groups[0].Filters, 2)
	assert.Equal(t, false, or.Groups[0].Filters[1].Value)
}

func TestParseQueryRejects(t *testing.T) {
	tests := []struct {
		name  string
		query string
		param string
	}{
		{"unknown filter", "nickname=eq.x", "nickname"},
		{"unsupported operator", "id=like.1*", "id"},
		{"missing operator", "id=1", "id"},
		{"bad integer", "id=eq.one", "id"},
		{"bad is", "display_name=is.maybe", "display_name"},
		{"bad list", "id=in.1,2", "id"},
		{"negative limit", "limit=-1", "limit"},
		{"bad offset", "offset=x", "offset"},
		{"unknown select", "select=id,nope", "select"},
		{"nested select", "select=manager", "select"},
		{"unknown embed", "embed=email", "embed"},
		{"unknown order", "order=nope.desc", "order"},
		{"bad order modifier", "order=id.up", "order"},
		{"unbalanced group", "or=(id.eq.1", "or"},
		{"empty group item", "or=(id.eq.1,)", "or"},
		{"unknown field in group", "and=(nope.eq.1)", "and"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := listQuery(t, "public.users", tt.query)
			var qe *QueryError
			require.ErrorAs(t, err, &qe)
			assert.Equal(t, tt.param, qe.Param)
		})
	}
}

func TestParseQueryItemRouteIgnoresListParams(t *testing.T) {
	a := shopArtifacts(t)
	rt := routeFor(t, a, route.Get, "public.users")
	read, _ := a.Models.Get(rt.Output)
	q, err := parseQuery(url.Values{"select": {"id"}, "nickname": {"eq.x"}}, rt, read)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, names(q.Select))
	assert.True(t, q.Where.Empty())
}

func TestSplitTopLevel(t *testing.T) {
	tests := []struct {
		in   string
		want []string
		err  bool
	}{
		{in: "a,b", want: []string{"a", "b"}},
		{in: "a.eq.1,or(b.gt.2,c.lt.3)", want: []string{"a.eq.1", "or(b.gt.2,c.lt.3)"}},
		{in: `a.in.("x,y",z),b`, want: []string{`a.in.("x,y",z)`, "b"}},
		{in: `"say \"hi\", ok"`, want: []string{`"say \"hi\", ok"`}},
		{in: "a)", err: true},
		{in: "(a", err: true},
		{in: `"open`, err: true},
	}
	for _, tt := range tests {
		got, err := splitTopLevel(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseList(t *testing.T) {
	items, err := parseList(`(1, "a,b", "say \"hi\"")`)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "a,b", `say "hi"`}, items)

	items, err = parseList("()")
	require.NoError(t, err)
	assert.Empty(t, items)
}

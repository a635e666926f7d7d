package catalog

import (
	"maps"
	"slices"

	pg_query "github.com/pganalyze/pg_query_go/v5"
)

// ViewBase describes a view that projects columns of a single relation
// without aggregation, so rows map one-to-one onto the base relation.
type ViewBase struct {
	Schema string // empty when the definition does not qualify the relation
	Name   string
	// Columns maps view output names to base column names.
	Columns map[string]string
	// Star is set when the view selects every base column.
	Star bool
}

// Output returns the view column exposing base column col.
func (b ViewBase) Output(col string) (string, bool) {
	outs := slices.Sorted(maps.Keys(b.Columns))
	for _, out := range outs {
		if b.Columns[out] == col {
			return out, true
		}
	}
	if b.Star {
		return col, true
	}
	return "", false
}

// ParseViewBase inspects a view definition and reports its base relation
// when the view is a plain projection of one relation.
func ParseViewBase(definition string) (ViewBase, bool) {
	if definition == "" {
		return ViewBase{}, false
	}
	res, err := pg_query.Parse(definition)
	if err != nil || len(res.GetStmts()) != 1 {
		return ViewBase{}, false
	}
	sel := res.GetStmts()[0].GetStmt().GetSelectStmt()
	if sel == nil ||
		sel.GetLarg() != nil ||
		len(sel.GetGroupClause()) > 0 ||
		len(sel.GetDistinctClause()) > 0 ||
		sel.GetHavingClause() != nil ||
		len(sel.GetFromClause()) != 1 {
		return ViewBase{}, false
	}
	rv := sel.GetFromClause()[0].GetRangeVar()
	if rv == nil {
		return ViewBase{}, false
	}

	alias := rv.GetRelname()
	if a := rv.GetAlias(); a != nil && a.GetAliasname() != "" {
		alias = a.GetAliasname()
	}

	base := ViewBase{Schema: rv.GetSchemaname(), Name: rv.GetRelname(), Columns: map[string]string{}}
	for _, target := range sel.GetTargetList() {
		rt := target.GetResTarget()
		if rt == nil {
			continue
		}
		ref := rt.GetVal().GetColumnRef()
		if ref == nil || len(ref.GetFields()) == 0 {
			continue
		}
		fields := ref.GetFields()
		if len(fields) > 1 {
			if q := fields[len(fields)-2].GetString_().GetSval(); q != alias && q != rv.GetRelname() {
				continue
			}
		}
		last := fields[len(fields)-1]
		if last.GetAStar() != nil {
			base.Star = true
			continue
		}
		col := last.GetString_().GetSval()
		if col == "" {
			continue
		}
		out := rt.GetName()
		if out == "" {
			out = col
		}
		base.Columns[out] = col
	}
	return base, true
}

// InferViewKey returns the primary key a view inherits from its base relation,
// under the view's output names. primaryKey resolves a qualified relation name
// to its key columns. An unqualified base is taken from the view's namespace.
func InferViewKey(view Relation, primaryKey func(qualified string) ([]string, bool)) ([]string, bool) {
	if !view.Kind.IsView() {
		return nil, false
	}
	vb, ok := ParseViewBase(view.ViewDefinition)
	if !ok {
		return nil, false
	}
	schema := vb.Schema
	if schema == "" {
		schema = view.Schema
	}
	pk, ok := primaryKey(Qualify(schema, vb.Name))
	if !ok || len(pk) == 0 {
		return nil, false
	}
	outputs := make(map[string]bool, len(view.Columns))
	for _, c := range view.Columns {
		outputs[c.Name] = true
	}
	key := make([]string, 0, len(pk))
	for _, col := range pk {
		out, ok := vb.Output(col)
		if !ok || !outputs[out] {
			return nil, false
		}
		key = append(key, out)
	}
	return key, true
}

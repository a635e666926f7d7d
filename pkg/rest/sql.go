package rest

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/edgeflare/pgsynth/pkg/catalog"
	"github.com/edgeflare/pgsynth/pkg/graph"
	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/jackc/pgx/v5"
)

// Nested builders keep the default ? placeholders; only the outermost
// statement is renumbered with $n, otherwise subquery arguments collide.
var psql = sq.StatementBuilder

const baseAlias = "t0"

// Statement is a rendered SQL statement.
type Statement struct {
	SQL  string
	Args []any
}

func render(b sq.Sqlizer) (Statement, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return Statement{}, err
	}
	if sql, err = sq.Dollar.ReplacePlaceholders(sql); err != nil {
		return Statement{}, err
	}
	return Statement{SQL: sql, Args: args}, nil
}

func ident(parts ...string) string { return pgx.Identifier(parts).Sanitize() }

func tableIdent(t *graph.Table) string { return ident(t.Schema, t.Name) }

func column(alias, name string) string {
	if alias == "" {
		return ident(name)
	}
	return alias + "." + ident(name)
}

// projection renders fields as alias."column" AS "wire name".
func projection(alias string, fields []model.Field) []string {
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Nested() {
			continue
		}
		cols = append(cols, column(alias, f.Column)+" AS "+ident(f.Name))
	}
	return cols
}

func (f Filter) sqlize(alias string) sq.Sqlizer {
	col := column(alias, f.Column)
	var pred sq.Sqlizer
	switch f.Op {
	case "eq":
		pred = sq.Expr(col+" = ?", f.Value)
	case "neq":
		pred = sq.Expr(col+" <> ?", f.Value)
	case "gt":
		pred = sq.Expr(col+" > ?", f.Value)
	case "gte":
		pred = sq.Expr(col+" >= ?", f.Value)
	case "lt":
		pred = sq.Expr(col+" < ?", f.Value)
	case "lte":
		pred = sq.Expr(col+" <= ?", f.Value)
	case "like":
		pred = sq.Expr(col+" LIKE ?", f.Value)
	case "ilike":
		pred = sq.Expr(col+" ILIKE ?", f.Value)
	case "in":
		if len(f.List) == 0 {
			pred = sq.Expr("false")
		} else {
			pred = sq.Eq{col: f.List}
		}
	case "notin":
		if len(f.List) == 0 {
			pred = sq.Expr("true")
		} else {
			pred = sq.NotEq{col: f.List}
		}
	case "is":
		pred = sq.Expr(col + " IS " + strings.ToUpper(f.Value.(string)))
	case "isnull":
		if f.Value.(bool) {
			pred = sq.Expr(col + " IS NULL")
		} else {
			pred = sq.Expr(col + " IS NOT NULL")
		}
	default:
		pred = sq.Expr("false")
	}
	if f.Negate {
		return sq.Expr("NOT (?)", pred)
	}
	return pred
}

func (g Group) sqlize(alias string) sq.Sqlizer {
	parts := make([]sq.Sqlizer, 0, len(g.Filters)+len(g.Groups))
	for _, f := range g.Filters {
		parts = append(parts, f.sqlize(alias))
	}
	for _, sub := range g.Groups {
		parts = append(parts, sub.sqlize(alias))
	}
	var pred sq.Sqlizer = sq.And(parts)
	if g.Or {
		pred = sq.Or(parts)
	}
	if g.Negate {
		return sq.Expr("NOT ?", pred)
	}
	return pred
}

func orderBy(alias string, order []OrderParam) []string {
	out := make([]string, 0, len(order))
	for _, o := range order {
		term := column(alias, o.Column) + " " + strings.ToUpper(o.Direction)
		if o.Nulls != "" {
			term += " NULLS " + strings.ToUpper(o.Nulls)
		}
		out = append(out, term)
	}
	return out
}

// embed renders a nested field as a correlated subquery producing JSON.
func embed(g *graph.Graph, f model.Field, n int) sq.Sqlizer {
	rel := f.Relationship
	target := g.Table(rel.To)
	x := fmt.Sprintf("e%d", n)

	sub := psql.Select(projection(x, f.Fields)...).From(tableIdent(target) + " AS " + x)
	switch rel.Kind {
	case graph.ManyToMany:
		jx := x + "j"
		junction := g.Table(rel.Via)
		on := make([]string, len(rel.ViaTo))
		for i := range rel.ViaTo {
			on[i] = column(jx, rel.ViaTo[i]) + " = " + column(x, rel.RefColumns[i])
		}
		sub = sub.Join(tableIdent(junction) + " AS " + jx + " ON " + strings.Join(on, " AND "))
		for i := range rel.ViaFrom {
			sub = sub.Where(column(jx, rel.ViaFrom[i]) + " = " + column(baseAlias, rel.Columns[i]))
		}
	default:
		for i := range rel.Columns {
			sub = sub.Where(column(x, rel.RefColumns[i]) + " = " + column(baseAlias, rel.Columns[i]))
		}
	}
	keys := make([]string, 0, len(target.PrimaryKey))
	for _, k := range target.PrimaryKey {
		keys = append(keys, column(x, k))
	}
	sub = sub.OrderBy(keys...)

	if f.Many {
		return sq.Expr("(SELECT coalesce(json_agg(to_json(w)), '[]'::json) FROM (?) w) AS "+ident(f.Name), sub)
	}
	return sq.Expr("(SELECT to_json(w) FROM (?) w) AS "+ident(f.Name), sub.Limit(1))
}

func readSelect(g *graph.Graph, t *graph.Table, q Query) sq.SelectBuilder {
	b := psql.Select(projection(baseAlias, q.Select)...).From(tableIdent(t) + " AS " + baseAlias)
	for i, f := range q.Embed {
		b = b.Column(embed(g, f, i))
	}
	return b
}

// listStatement returns one row: the JSON array of the page and, when
// count is set, the number of rows matching the filters.
func listStatement(g *graph.Graph, t *graph.Table, q Query, count bool) (Statement, error) {
	page := readSelect(g, t, q)
	if !q.Where.Empty() {
		page = page.Where(q.Where.sqlize(baseAlias))
	}
	order := orderBy(baseAlias, q.Order)
	if len(order) == 0 {
		for _, k := range t.PrimaryKey {
			order = append(order, column(baseAlias, k))
		}
	}
	page = page.OrderBy(order...)
	if q.Limit > 0 {
		page = page.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		page = page.Offset(uint64(q.Offset))
	}

	outer := psql.Select("coalesce(json_agg(to_json(p)), '[]'::json)").FromSelect(page, "p")
	if count {
		total := psql.Select("count(*)").From(tableIdent(t) + " AS " + baseAlias)
		if !q.Where.Empty() {
			total = total.Where(q.Where.sqlize(baseAlias))
		}
		outer = outer.Column(sq.Alias(total, "total"))
	}
	return render(outer)
}

func keyPredicate(alias string, key map[string]any) sq.Eq {
	eq := sq.Eq{}
	for col, v := range key {
		eq[column(alias, col)] = v
	}
	return eq
}

// getStatement returns the JSON object of the row with key, or no row.
func getStatement(g *graph.Graph, t *graph.Table, q Query, key map[string]any) (Statement, error) {
	inner := readSelect(g, t, q).Where(keyPredicate(baseAlias, key))
	return render(psql.Select("to_json(p)").FromSelect(inner, "p"))
}

// mutation wraps a data-modifying statement so that the affected row comes
// back as one JSON object.
func mutation(b sq.Sqlizer) (Statement, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return Statement{}, err
	}
	return render(psql.Select("to_json(m)").From("m").Prefix("WITH m AS ("+sql+")", args...))
}

func returning(fields []model.Field) string {
	return "RETURNING " + strings.Join(projection("", fields), ", ")
}

// insertStatement inserts values, a column to value map.
func insertStatement(t *graph.Table, values map[string]any, ret []model.Field) (Statement, error) {
	if len(values) == 0 {
		return mutation(sq.Expr("INSERT INTO " + tableIdent(t) + " DEFAULT VALUES " + returning(ret)))
	}
	cols := sortedKeys(values)
	vals := make([]any, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		vals[i] = values[c]
		quoted[i] = ident(c)
	}
	return mutation(psql.Insert(tableIdent(t)).Columns(quoted...).Values(vals...).Suffix(returning(ret)))
}

func updateStatement(t *graph.Table, key, values map[string]any, ret []model.Field) (Statement, error) {
	b := psql.Update(tableIdent(t))
	for _, c := range sortedKeys(values) {
		b = b.Set(ident(c), values[c])
	}
	return mutation(b.Where(keyPredicate("", key)).Suffix(returning(ret)))
}

func deleteStatement(t *graph.Table, key map[string]any, ret []model.Field) (Statement, error) {
	return mutation(psql.Delete(tableIdent(t)).Where(keyPredicate("", key)).Suffix(returning(ret)))
}

// callArgs renders the argument list of r. Leading supplied inputs are
// positional; once one is skipped for its default the rest use named notation.
// Arguments of an overloaded routine carry a cast to the declared type so the
// server resolves the same overload the route was generated for.
func callArgs(r *graph.Routine, values map[string]any) (string, []any) {
	var parts []string
	var args []any
	named := false
	for _, p := range r.Params {
		switch {
		case p.Mode.IsInput():
			v, ok := values[p.Name]
			if !ok {
				named = true
				continue
			}
			arg := "?"
			if r.Overloaded && p.Native != "" {
				arg += "::" + p.Native
			}
			if named {
				arg = ident(p.Name) + " => " + arg
			}
			parts = append(parts, arg)
			args = append(args, v)
		case r.Kind == catalog.KindProcedure && p.Mode == catalog.ModeOut:
			parts = append(parts, ident(p.Name)+" => NULL")
		}
	}
	return "(" + strings.Join(parts, ", ") + ")", args
}

// callStatement invokes a function. out is nil for functions without a
// result. Set-returning functions produce a JSON array, others one object.
func callStatement(r *graph.Routine, values map[string]any, out *model.Model) (Statement, error) {
	list, args := callArgs(r, values)
	fn := ident(r.Schema, r.Name) + list
	if r.Kind == catalog.KindProcedure {
		return render(sq.Expr("CALL "+fn, args...))
	}
	if out == nil {
		return render(sq.Expr("SELECT "+fn, args...))
	}

	var inner sq.Sqlizer
	if r.Returns.Kind == catalog.ReturnScalar {
		inner = sq.Expr("SELECT r.v AS "+ident(out.Fields[0].Name)+" FROM "+fn+" AS r(v)", args...)
	} else {
		inner = sq.Expr("SELECT "+strings.Join(projection("r", out.Fields), ", ")+" FROM "+fn+" AS r", args...)
	}
	if r.Returns.Set {
		return render(sq.Expr("SELECT coalesce(json_agg(to_json(p)), '[]'::json) FROM (?) p", inner))
	}
	return render(sq.Expr("SELECT to_json(p) FROM (?) p", inner))
}

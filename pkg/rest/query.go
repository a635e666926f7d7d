package rest

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/edgeflare/pgsynth/pkg/route"
	"github.com/edgeflare/pgsynth/pkg/typemap"
)

// Query is a parsed list or get request.
type Query struct {
	Select []model.Field // scalar read fields, all of them when not narrowed
	Embed  []model.Field // nested read fields
	Order  []OrderParam
	Limit  int
	Offset int
	Where  Group
}

type OrderParam struct {
	Column    string
	Direction string // asc or desc
	Nulls     string // first, last or empty for the database default
}

// Filter is one predicate on a column. Value and List hold arguments
// already converted to the column's type.
type Filter struct {
	Field  string
	Column string
	Op     string
	Negate bool
	Value  any
	List   []any
}

// Group joins filters and nested groups with AND, or with OR when Or is set.
type Group struct {
	Or      bool
	Negate  bool
	Filters []Filter
	Groups  []Group
}

// Empty reports whether the group has no predicates.
func (g Group) Empty() bool { return len(g.Filters) == 0 && len(g.Groups) == 0 }

// QueryError is a malformed request parameter. It maps to 400.
type QueryError struct {
	Param   string
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid query parameter %q: %s", e.Param, e.Message)
}

func queryErr(param, format string, args ...any) error {
	return &QueryError{Param: param, Message: fmt.Sprintf(format, args...)}
}

// filterable resolves filter names of a list route to their read fields.
type filterable struct {
	params map[string]route.QueryParam
	read   *model.Model
}

func (f filterable) lookup(param, name string) (route.QueryParam, model.Field, error) {
	p, ok := f.params[name]
	if !ok {
		return route.QueryParam{}, model.Field{}, queryErr(param, "%q is not a filterable field", name)
	}
	field, _ := f.read.ByColumn(p.Column)
	return p, field, nil
}

// parseQuery parses the query string of rt against its read model. Get
// routes accept only select and embed.
func parseQuery(values url.Values, rt route.Route, read *model.Model) (Query, error) {
	q := Query{Limit: rt.Clamp(0)}
	var err error

	if q.Select, err = parseSelect(values.Get("select"), read); err != nil {
		return Query{}, err
	}
	if q.Embed, err = parseEmbed(values.Get("embed"), read); err != nil {
		return Query{}, err
	}
	if rt.Operation != route.List {
		return q, nil
	}

	if q.Order, err = parseOrder(values.Get("order"), read); err != nil {
		return Query{}, err
	}
	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Query{}, queryErr("limit", "must be a non-negative integer")
		}
		q.Limit = rt.Clamp(n)
	}
	if v := values.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Query{}, queryErr("offset", "must be a non-negative integer")
		}
		q.Offset = n
	}

	fl := filterable{params: map[string]route.QueryParam{}, read: read}
	for _, p := range rt.QueryParams {
		fl.params[p.Name] = p
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, key := range keys {
		switch key {
		case "select", "embed", "order", "limit", "offset":
			continue
		case "and", "or", "not.and", "not.or":
			for _, v := range values[key] {
				g, err := parseGroup(key, key, v, fl)
				if err != nil {
					return Query{}, err
				}
				q.Where.Groups = append(q.Where.Groups, g)
			}
			continue
		}
		for _, v := range values[key] {
			p, field, err := fl.lookup(key, key)
			if err != nil {
				return Query{}, err
			}
			f, err := parseFilter(key, p, field.Type, v)
			if err != nil {
				return Query{}, err
			}
			q.Where.Filters = append(q.Where.Filters, f)
		}
	}
	return q, nil
}

func parseSelect(v string, read *model.Model) ([]model.Field, error) {
	if v == "" || v == "*" {
		var all []model.Field
		for _, f := range read.Fields {
			if !f.Nested() {
				all = append(all, f)
			}
		}
		return all, nil
	}
	var out []model.Field
	seen := map[string]bool{}
	for _, name := range strings.Split(v, ",") {
		name = strings.TrimSpace(name)
		f, ok := read.Field(name)
		if !ok || f.Nested() {
			return nil, queryErr("select", "unknown field %q", name)
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, f)
		}
	}
	return out, nil
}

func parseEmbed(v string, read *model.Model) ([]model.Field, error) {
	if v == "" {
		return nil, nil
	}
	var out []model.Field
	for _, name := range strings.Split(v, ",") {
		name = strings.TrimSpace(name)
		f, ok := read.Field(name)
		if !ok || !f.Nested() {
			return nil, queryErr("embed", "unknown relationship %q", name)
		}
		if !slices.ContainsFunc(out, func(e model.Field) bool { return e.Name == name }) {
			out = append(out, f)
		}
	}
	return out, nil
}

// parseOrder reads comma separated terms of the form field[.asc|.desc][.nullsfirst|.nullslast].
func parseOrder(v string, read *model.Model) ([]OrderParam, error) {
	if v == "" {
		return nil, nil
	}
	var out []OrderParam
	for _, term := range strings.Split(v, ",") {
		parts := strings.Split(strings.TrimSpace(term), ".")
		f, ok := read.Field(parts[0])
		if !ok || f.Nested() {
			return nil, queryErr("order", "unknown field %q", parts[0])
		}
		o := OrderParam{Column: f.Column, Direction: "asc"}
		for _, mod := range parts[1:] {
			switch mod {
			case "asc", "desc":
				o.Direction = mod
			case "nullsfirst":
				o.Nulls = "first"
			case "nullslast":
				o.Nulls = "last"
			default:
				return nil, queryErr("order", "unknown modifier %q", mod)
			}
		}
		out = append(out, o)
	}
	return out, nil
}

// parseFilter reads [not.]op.value for the field bound to p.
func parseFilter(param string, p route.QueryParam, t typemap.Mapping, expr string) (Filter, error) {
	f := Filter{Field: p.Name, Column: p.Column}
	if rest, ok := strings.CutPrefix(expr, "not."); ok {
		f.Negate = true
		expr = rest
	}
	op, val, ok := strings.Cut(expr, ".")
	if !ok {
		return Filter{}, queryErr(param, "expected operator.value, got %q", expr)
	}
	if !slices.Contains(p.Operators, op) {
		return Filter{}, queryErr(param, "operator %q is not supported for %s", op, p.Name)
	}
	f.Op = op

	switch op {
	case "in", "notin":
		items, err := parseList(val)
		if err != nil {
			return Filter{}, queryErr(param, "%v", err)
		}
		for _, item := range items {
			v, err := coerce(t, item)
			if err != nil {
				return Filter{}, queryErr(param, "%v", err)
			}
			f.List = append(f.List, v)
		}
	case "is":
		switch strings.ToLower(val) {
		case "null", "true", "false", "unknown":
			f.Value = strings.ToLower(val)
		default:
			return Filter{}, queryErr(param, "is accepts null, true, false or unknown")
		}
	case "isnull":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return Filter{}, queryErr(param, "isnull accepts true or false")
		}
		f.Value = b
	case "like", "ilike":
		f.Value = strings.ReplaceAll(val, "*", "%")
	default:
		v, err := coerce(t, val)
		if err != nil {
			return Filter{}, queryErr(param, "%v", err)
		}
		f.Value = v
	}
	return f, nil
}

// parseGroup reads a logical group such as or=(a.eq.1,and(b.gt.2,c.is.null)).
func parseGroup(param, key, v string, fl filterable) (Group, error) {
	var g Group
	if rest, ok := strings.CutPrefix(key, "not."); ok {
		g.Negate = true
		key = rest
	}
	g.Or = key == "or"
	if !strings.HasPrefix(v, "(") || !strings.HasSuffix(v, ")") {
		return Group{}, queryErr(param, "expected a parenthesized list")
	}
	items, err := splitTopLevel(v[1 : len(v)-1])
	if err != nil {
		return Group{}, queryErr(param, "%v", err)
	}
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			return Group{}, queryErr(param, "empty condition")
		}
		if name, inner, ok := nestedGroup(item); ok {
			sub, err := parseGroup(param, name, inner, fl)
			if err != nil {
				return Group{}, err
			}
			g.Groups = append(g.Groups, sub)
			continue
		}
		name, expr, ok := strings.Cut(item, ".")
		if !ok {
			return Group{}, queryErr(param, "expected field.operator.value, got %q", item)
		}
		p, field, err := fl.lookup(param, name)
		if err != nil {
			return Group{}, err
		}
		f, err := parseFilter(param, p, field.Type, expr)
		if err != nil {
			return Group{}, err
		}
		g.Filters = append(g.Filters, f)
	}
	return g, nil
}

func nestedGroup(item string) (key, inner string, ok bool) {
	for _, k := range []string{"and", "or", "not.and", "not.or"} {
		if rest, found := strings.CutPrefix(item, k+"("); found && strings.HasSuffix(item, ")") {
			return k, "(" + rest, true
		}
	}
	return "", "", false
}

// parseList reads (a,b,"c,d").
func parseList(v string) ([]string, error) {
	if !strings.HasPrefix(v, "(") || !strings.HasSuffix(v, ")") {
		return nil, fmt.Errorf("expected a parenthesized list, got %q", v)
	}
	inner := v[1 : len(v)-1]
	if strings.TrimSpace(inner) == "" {
		return nil, nil
	}
	items, err := splitTopLevel(inner)
	if err != nil {
		return nil, err
	}
	for i, item := range items {
		item = strings.TrimSpace(item)
		if len(item) >= 2 && item[0] == '"' && item[len(item)-1] == '"' {
			item = strings.ReplaceAll(item[1:len(item)-1], `\"`, `"`)
		}
		items[i] = item
	}
	return items, nil
}

// splitTopLevel splits on commas outside parentheses and double quotes.
func splitTopLevel(s string) ([]string, error) {
	var parts []string
	var current strings.Builder
	depth := 0
	quoted := false
	escaped := false

	for _, char := range s {
		switch {
		case escaped:
			escaped = false
		case char == '\\' && quoted:
			escaped = true
		case char == '"':
			quoted = !quoted
		case quoted:
		case char == '(':
			depth++
		case char == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses")
			}
		case char == ',' && depth == 0:
			parts = append(parts, current.String())
			current.Reset()
			continue
		}
		current.WriteRune(char)
	}
	if depth != 0 || quoted {
		return nil, fmt.Errorf("unbalanced parentheses or quotes")
	}
	return append(parts, current.String()), nil
}

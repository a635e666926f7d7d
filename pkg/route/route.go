// Package route turns a schema graph and its models into HTTP route descriptors.
package route

import (
	"fmt"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/edgeflare/pgsynth/pkg/catalog"
	"github.com/edgeflare/pgsynth/pkg/diag"
	"github.com/edgeflare/pgsynth/pkg/graph"
	"github.com/edgeflare/pgsynth/pkg/model"
)

// Operation is what a route does.
type Operation string

const (
	List   Operation = "list"
	Get    Operation = "get"
	Create Operation = "create"
	Update Operation = "update"
	Delete Operation = "delete"
	Call   Operation = "call"
)

// Cardinality is the shape of a response body.
type Cardinality string

const (
	None Cardinality = "none"
	One  Cardinality = "one"
	Many Cardinality = "many"
)

// Reserved query parameters of list routes. Fields with these names are not
// filterable.
var Reserved = []string{"select", "order", "limit", "offset", "embed", "and", "or", "not"}

// PathParam binds a template segment to a key column.
type PathParam struct {
	Name   string `json:"name"`
	Column string `json:"column"`
}

// QueryParam is a filterable field of a list route.
type QueryParam struct {
	Name      string   `json:"name"`
	Column    string   `json:"column"`
	Operators []string `json:"operators"`
}

// Pagination bounds list responses.
type Pagination struct {
	DefaultLimit int `json:"default_limit"`
	MaxLimit     int `json:"max_limit"`
}

// Clamp returns the effective limit for a requested one. Zero or negative
// requests get the default.
func (p Pagination) Clamp(limit int) int {
	if limit <= 0 {
		limit = p.DefaultLimit
	}
	if p.MaxLimit > 0 && limit > p.MaxLimit {
		return p.MaxLimit
	}
	return limit
}

// Route describes one generated endpoint.
type Route struct {
	Method      string       `json:"method"`
	Path        string       `json:"path"`
	Operation   Operation    `json:"operation"`
	Entity      string       `json:"entity"`
	Input       string       `json:"input,omitempty"`
	Output      string       `json:"output,omitempty"`
	Cardinality Cardinality  `json:"cardinality"`
	PathParams  []PathParam  `json:"path_params,omitempty"`
	QueryParams []QueryParam `json:"query_params,omitempty"`
	Pagination  *Pagination  `json:"pagination,omitempty"`
}

// Pattern renders the route as a net/http ServeMux pattern.
func (r Route) Pattern() string { return r.Method + " " + r.Path }

// Key identifies the route regardless of path parameter names.
func (r Route) Key() string { return r.Method + " " + Normalize(r.Path) }

// Clamp applies the route's pagination to a requested limit. Routes without
// pagination return limit unchanged.
func (r Route) Clamp(limit int) int {
	if r.Pagination == nil {
		return limit
	}
	return r.Pagination.Clamp(limit)
}

// Normalize replaces every {param} segment with {}.
func Normalize(template string) string {
	segs := strings.Split(template, "/")
	for i, s := range segs {
		if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
			segs[i] = "{}"
		}
	}
	return strings.Join(segs, "/")
}

// Options configures Generate.
type Options struct {
	BasePath        string
	DefaultPageSize int
	MaxPageSize     int
	ExposeRoutines  bool
}

func (o Options) pagination() *Pagination {
	p := &Pagination{DefaultLimit: o.DefaultPageSize, MaxLimit: o.MaxPageSize}
	if p.DefaultLimit <= 0 {
		p.DefaultLimit = 100
	}
	if p.MaxLimit > 0 && p.DefaultLimit > p.MaxLimit {
		p.DefaultLimit = p.MaxLimit
	}
	return p
}

// Generate emits routes for every modelled table, view and routine of g.
// Two routes with the same method and normalized template abort the pass.
func Generate(g *graph.Graph, set *model.Set, opts Options) ([]Route, error) {
	base := "/" + strings.Trim(opts.BasePath, "/")
	if base == "/" {
		base = ""
	}
	var routes []Route
	for _, t := range g.Tables() {
		routes = append(routes, tableRoutes(t, set, base, opts)...)
	}
	if opts.ExposeRoutines {
		for _, r := range g.Routines() {
			if rt, ok := routineRoute(r, set, base); ok {
				routes = append(routes, rt)
			}
		}
	}

	seen := map[string]Route{}
	var errs []error
	for _, r := range routes {
		if prev, ok := seen[r.Key()]; ok {
			errs = append(errs, &diag.GenerationError{
				Object: r.Entity,
				Reason: fmt.Sprintf("route %s collides with %s of %s", r.Pattern(), prev.Pattern(), prev.Entity),
			})
			continue
		}
		seen[r.Key()] = r
	}
	if err := diag.Join(errs...); err != nil {
		return nil, err
	}
	return routes, nil
}

func tableRoutes(t *graph.Table, set *model.Set, base string, opts Options) []Route {
	q := t.QualifiedName()
	read, ok := set.For(q, model.Read)
	if !ok {
		return nil
	}
	collection := base + "/" + path.Join(t.Schema, t.Name)

	var query []QueryParam
	if filter, ok := set.For(q, model.Filter); ok {
		for _, f := range filter.Fields {
			if slices.Contains(Reserved, f.Name) {
				continue
			}
			query = append(query, QueryParam{Name: f.Name, Column: f.Column, Operators: f.Operators})
		}
	}
	routes := []Route{{
		Method:      http.MethodGet,
		Path:        collection,
		Operation:   List,
		Entity:      q,
		Output:      read.Name,
		Cardinality: Many,
		QueryParams: query,
		Pagination:  opts.pagination(),
	}}
	create, writable := set.For(q, model.Create)
	if writable {
		routes = append(routes, Route{
			Method:      http.MethodPost,
			Path:        collection,
			Operation:   Create,
			Entity:      q,
			Input:       create.Name,
			Output:      read.Name,
			Cardinality: One,
		})
	}

	key, keyed := set.For(q, model.Key)
	if !keyed {
		return routes
	}
	item := collection
	params := make([]PathParam, 0, len(key.Fields))
	for _, f := range key.Fields {
		item += "/{" + f.Name + "}"
		params = append(params, PathParam{Name: f.Name, Column: f.Column})
	}
	routes = append(routes, Route{
		Method:      http.MethodGet,
		Path:        item,
		Operation:   Get,
		Entity:      q,
		Output:      read.Name,
		Cardinality: One,
		PathParams:  params,
	})
	if update, ok := set.For(q, model.Update); ok && writable {
		routes = append(routes,
			Route{
				Method:      http.MethodPatch,
				Path:        item,
				Operation:   Update,
				Entity:      q,
				Input:       update.Name,
				Output:      read.Name,
				Cardinality: One,
				PathParams:  params,
			},
			Route{
				Method:      http.MethodDelete,
				Path:        item,
				Operation:   Delete,
				Entity:      q,
				Output:      read.Name,
				Cardinality: One,
				PathParams:  params,
			},
		)
	}
	return routes
}

func routineRoute(r *graph.Routine, set *model.Set, base string) (Route, bool) {
	if !r.Callable() {
		return Route{}, false
	}
	in, ok := set.For(r.Signature, model.Input)
	if !ok {
		return Route{}, false
	}
	segment := "fn"
	if r.Kind == catalog.KindProcedure {
		segment = "proc"
	}
	p := base + "/" + path.Join(r.Schema, segment, r.Name)
	if r.Overloaded {
		p += "/" + r.Slug()
	}
	rt := Route{
		Method:      http.MethodPost,
		Path:        p,
		Operation:   Call,
		Entity:      r.Signature,
		Input:       in.Name,
		Cardinality: None,
	}
	if out, ok := set.For(r.Signature, model.Output); ok {
		rt.Output = out.Name
		rt.Cardinality = One
		if r.Returns.Set {
			rt.Cardinality = Many
		}
	}
	return rt, true
}

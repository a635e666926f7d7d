package rest

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/edgeflare/pgsynth/pkg/graph"
	"github.com/edgeflare/pgsynth/pkg/route"
	"github.com/edgeflare/pgsynth/pkg/synth"
)

type entry struct {
	route route.Route
	segs  []string
	// params maps segment positions to path parameter names.
	params map[int]string
}

func (e *entry) literals() []bool {
	out := make([]bool, len(e.segs))
	for i := range e.segs {
		_, wild := e.params[i]
		out[i] = !wild
	}
	return out
}

// index resolves request paths against the routes of one artifacts value.
type index struct {
	artifacts *synth.Artifacts
	bySize    map[int][]*entry
	items     map[string]route.Route
	routines  map[string]*graph.Routine
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func newIndex(a *synth.Artifacts) *index {
	ix := &index{
		artifacts: a,
		bySize:    map[int][]*entry{},
		items:     map[string]route.Route{},
		routines:  map[string]*graph.Routine{},
	}
	for _, r := range a.Graph.Routines() {
		ix.routines[r.Signature] = r
	}
	for _, r := range a.Routes {
		if r.Operation == route.Get {
			ix.items[r.Entity] = r
		}
		e := &entry{route: r, segs: split(r.Path), params: map[int]string{}}
		for i, s := range e.segs {
			if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
				e.params[i] = s[1 : len(s)-1]
			}
		}
		ix.bySize[len(e.segs)] = append(ix.bySize[len(e.segs)], e)
	}
	// A literal segment beats a parameter at the same position, scanning
	// from the left.
	for _, entries := range ix.bySize {
		slices.SortStableFunc(entries, func(a, b *entry) int {
			la, lb := a.literals(), b.literals()
			for i := range la {
				if la[i] != lb[i] {
					if la[i] {
						return -1
					}
					return 1
				}
			}
			return 0
		})
	}
	return ix
}

// itemRoute returns the get route of entity.
func (ix *index) itemRoute(entity string) (route.Route, bool) {
	r, ok := ix.items[entity]
	return r, ok
}

// match finds the route for method and the escaped path. When the path matches routes
// of other methods only, allowed lists them.
func (ix *index) match(method, path string) (rt route.Route, params map[string]string, allowed []string, ok bool) {
	segs := split(path)
	for _, e := range ix.bySize[len(segs)] {
		p, hit := e.bind(segs)
		if !hit {
			continue
		}
		if e.route.Method == method {
			return e.route, p, nil, true
		}
		if !slices.Contains(allowed, e.route.Method) {
			allowed = append(allowed, e.route.Method)
		}
	}
	if method == http.MethodHead && slices.Contains(allowed, http.MethodGet) {
		return ix.match(http.MethodGet, path)
	}
	return route.Route{}, nil, allowed, false
}

// bind matches escaped path segments, unescaping each one.
func (e *entry) bind(segs []string) (map[string]string, bool) {
	params := map[string]string{}
	for i, s := range e.segs {
		seg, err := url.PathUnescape(segs[i])
		if err != nil {
			return nil, false
		}
		if name, wild := e.params[i]; wild {
			if seg == "" {
				return nil, false
			}
			params[name] = seg
			continue
		}
		if s != seg {
			return nil, false
		}
	}
	return params, true
}

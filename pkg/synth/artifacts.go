package synth

import (
	"time"

	"github.com/edgeflare/pgsynth/pkg/diag"
	"github.com/edgeflare/pgsynth/pkg/graph"
	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/edgeflare/pgsynth/pkg/route"
)

// Artifacts is the immutable output of one pass.
type Artifacts struct {
	Graph       *graph.Graph
	Models      *model.Set
	Routes      []route.Route
	Diagnostics diag.Diagnostics
	// Fingerprint is the SHA-256 of the JSON encoded Descriptor. Passes over
	// an unchanged catalog produce the same fingerprint.
	Fingerprint string
	GeneratedAt time.Time
}

// Descriptor is the canonical, serializable form of Artifacts. Its encoding
// is byte-stable for a given catalog and configuration.
type Descriptor struct {
	Tables      []*graph.Table   `json:"tables"`
	Enums       []*graph.Enum    `json:"enums,omitempty"`
	Routines    []*graph.Routine `json:"routines,omitempty"`
	Models      []*model.Model   `json:"models"`
	Routes      []route.Route    `json:"routes"`
	Diagnostics diag.Diagnostics `json:"diagnostics,omitempty"`
}

// Descriptor returns the canonical form of a.
func (a *Artifacts) Descriptor() Descriptor {
	return Descriptor{
		Tables:      a.Graph.Tables(),
		Enums:       a.Graph.Enums(),
		Routines:    a.Graph.Routines(),
		Models:      a.Models.All(),
		Routes:      a.Routes,
		Diagnostics: a.Diagnostics,
	}
}

// Entity groups everything generated for one table, view, enum or routine.
type Entity struct {
	Name    string         `json:"name"`
	Table   *graph.Table   `json:"table,omitempty"`
	Routine *graph.Routine `json:"routine,omitempty"`
	Models  []*model.Model `json:"models"`
	Routes  []route.Route  `json:"routes"`
}

// Entity looks up name, a qualified table or enum name or a routine signature.
func (a *Artifacts) Entity(name string) (Entity, bool) {
	e := Entity{Name: name, Models: a.Models.Entity(name), Routes: a.RoutesFor(name)}
	if t, ok := a.Graph.Lookup(name); ok {
		e.Table = t
	}
	for _, r := range a.Graph.Routines() {
		if r.Signature == name {
			e.Routine = r
		}
	}
	if e.Table == nil && e.Routine == nil && len(e.Models) == 0 {
		return Entity{}, false
	}
	return e, true
}

// RoutesFor returns the routes bound to entity.
func (a *Artifacts) RoutesFor(entity string) []route.Route {
	var out []route.Route
	for _, r := range a.Routes {
		if r.Entity == entity {
			out = append(out, r)
		}
	}
	return out
}

package model

import (
	"fmt"
	"slices"

	"github.com/edgeflare/pgsynth/pkg/catalog"
	"github.com/edgeflare/pgsynth/pkg/diag"
	"github.com/edgeflare/pgsynth/pkg/graph"
	"github.com/edgeflare/pgsynth/pkg/typemap"
	"github.com/go-openapi/inflect"
)

// NamingStrategy selects how column names become field wire names.
type NamingStrategy string

const (
	Verbatim NamingStrategy = "verbatim"
	Snake    NamingStrategy = "snake"
	Camel    NamingStrategy = "camel"
)

// Apply converts a source name to a wire name.
func (n NamingStrategy) Apply(name string) string {
	switch n {
	case Snake:
		return inflect.Underscore(name)
	case Camel:
		return inflect.CamelizeDownFirst(name)
	default:
		return name
	}
}

// Options configures Synthesize.
type Options struct {
	NamingStrategy NamingStrategy
	// MaxNestedDepth bounds relationship expansion in read models; 0 disables it.
	MaxNestedDepth int
	ExposeRoutines bool
}

type synthesizer struct {
	g       *graph.Graph
	opts    Options
	set     *Set
	diags   diag.Diagnostics
	errs    []error
	tables  map[int]string // exposed table id to base model name
	entity  map[string]string
	enumIDs map[string]string
}

// Synthesize derives every model of g. Tables that cannot be modelled are
// left out with a diagnostic; duplicate model names abort with a
// *diag.AggregateError.
func Synthesize(g *graph.Graph, opts Options) (*Set, diag.Diagnostics, error) {
	s := &synthesizer{
		g:       g,
		opts:    opts,
		set:     newSet(),
		tables:  map[int]string{},
		entity:  map[string]string{},
		enumIDs: map[string]string{},
	}
	s.assignTableNames()
	s.enums()
	for _, t := range g.Tables() {
		if _, ok := s.tables[t.ID]; ok {
			s.table(t)
		}
	}
	if opts.ExposeRoutines {
		s.routines()
	}
	if err := diag.Join(s.errs...); err != nil {
		return nil, s.diags, err
	}
	return s.set, s.diags, nil
}

// assignTableNames gives each exposed table its base model name, qualifying
// names shared across namespaces.
func (s *synthesizer) assignTableNames() {
	count := map[string]int{}
	for _, t := range s.g.Tables() {
		if !t.Hidden {
			count[inflect.Camelize(t.Name)]++
		}
	}
	for _, t := range s.g.Tables() {
		if t.Hidden {
			continue
		}
		name := inflect.Camelize(t.Name)
		if count[name] > 1 {
			name = inflect.Camelize(t.Schema + "_" + t.Name)
		}
		s.tables[t.ID] = name
	}
}

func (s *synthesizer) add(m *Model) {
	if prev, ok := s.entity[m.Name]; ok {
		s.errs = append(s.errs, &diag.NamingCollisionError{Kind: "model", Name: m.Name, First: prev, Second: m.Entity})
		return
	}
	s.entity[m.Name] = m.Entity
	s.set.add(m)
}

func (s *synthesizer) enums() {
	count := map[string]int{}
	for _, e := range s.g.Enums() {
		count[inflect.Camelize(e.Name)]++
	}
	for _, e := range s.g.Enums() {
		name := inflect.Camelize(e.Name)
		if count[name] > 1 {
			name = inflect.Camelize(e.Schema + "_" + e.Name)
		}
		s.enumIDs[e.QualifiedName()] = name
		s.add(&Model{Name: name, Entity: e.QualifiedName(), Purpose: Enum, Choices: slices.Clone(e.Values)})
	}
}

func (s *synthesizer) table(t *graph.Table) {
	q := t.QualifiedName()
	base := s.tables[t.ID]
	if len(t.Columns) == 0 {
		err := &diag.GenerationError{Object: q, Reason: "no usable columns"}
		s.diags.Add(diag.KindOmittedTable, q, "%v", err)
		return
	}

	read, err := s.readFields(t, 0)
	if err != nil {
		s.diags.Add(diag.KindOmittedTable, q, "%v", err)
		return
	}
	models := []*Model{{Name: base + Read.suffix(), Entity: q, Purpose: Read, Fields: read}}

	filter := make([]Field, 0, len(t.Columns))
	for _, c := range t.Columns {
		f := s.column(t, c)
		f.Nullable = true
		f.Operators = Operators(c.Type)
		filter = append(filter, f)
	}
	models = append(models, &Model{Name: base + Filter.suffix(), Entity: q, Purpose: Filter, Fields: filter})

	if t.Writable() {
		var create, update []Field
		for _, c := range t.Columns {
			f := s.column(t, c)
			if f.Key {
				u := f
				u.Required = true
				update = append(update, u)
			}
			if c.Generated {
				continue
			}
			f.Required = !f.Nullable && !c.HasDefault
			create = append(create, f)
			if !f.Key {
				f.Required = false
				update = append(update, f)
			}
		}
		models = append(models,
			&Model{Name: base + Create.suffix(), Entity: q, Purpose: Create, Fields: create},
			&Model{Name: base + Update.suffix(), Entity: q, Purpose: Update, Fields: update},
		)
	}

	if t.Keyed() {
		key := make([]Field, 0, len(t.PrimaryKey))
		for _, k := range t.PrimaryKey {
			c, _ := t.Column(k)
			f := s.column(t, c)
			f.Required = true
			key = append(key, f)
		}
		models = append(models, &Model{Name: base + Key.suffix(), Entity: q, Purpose: Key, Fields: key})
	}

	for _, m := range models {
		s.add(m)
	}
}

func (s *synthesizer) column(t *graph.Table, c graph.Column) Field {
	return Field{
		Name:     s.opts.NamingStrategy.Apply(c.Name),
		Column:   c.Name,
		Type:     c.Type,
		Nullable: c.Nullable(),
		Key:      t.IsKey(c.Name),
		ReadOnly: c.Generated,
		Choices:  s.choices(c.Type),
		Comment:  c.Comment,
	}
}

func (s *synthesizer) choices(m typemap.Mapping) []string {
	if m.Kind == typemap.Array && m.Elem != nil {
		m = *m.Elem
	}
	if m.Kind != typemap.Enum {
		return nil
	}
	e, ok := s.g.Enum(m.Constraints.EnumRef)
	if !ok {
		return nil
	}
	return slices.Clone(e.Values)
}

// readFields returns the columns of t followed by its relationships, expanded
// while depth stays below the configured maximum.
func (s *synthesizer) readFields(t *graph.Table, depth int) ([]Field, error) {
	fields := make([]Field, 0, len(t.Columns)+len(t.Relationships))
	seen := map[string]string{}
	for _, c := range t.Columns {
		f := s.column(t, c)
		f.Required = true
		if prev, ok := seen[f.Name]; ok {
			return nil, &diag.NamingCollisionError{Kind: "field", Name: f.Name, First: prev, Second: c.Name}
		}
		seen[f.Name] = c.Name
		fields = append(fields, f)
	}
	if depth >= s.opts.MaxNestedDepth {
		return fields, nil
	}
	for _, rel := range t.Relationships {
		target := s.g.Table(rel.To)
		base, exposed := s.tables[target.ID]
		if !exposed || len(target.Columns) == 0 {
			if depth == 0 {
				s.diags.Add(diag.KindDroppedRelationship, t.QualifiedName(),
					"relationship %q not embedded: %s has no read model", rel.Name, target.QualifiedName())
			}
			continue
		}
		nested, err := s.readFields(target, depth+1)
		if err != nil {
			if depth == 0 {
				s.diags.Add(diag.KindDroppedRelationship, t.QualifiedName(),
					"relationship %q not embedded: %v", rel.Name, err)
			}
			continue
		}
		f := Field{
			Name:         s.opts.NamingStrategy.Apply(rel.Name),
			Column:       rel.Name,
			Relationship: &rel,
			Many:         rel.Kind != graph.ManyToOne,
			Fields:       nested,
			Target:       base + Read.suffix(),
		}
		if !f.Many {
			for _, col := range rel.Columns {
				if c, ok := t.Column(col); ok && c.Nullable() {
					f.Nullable = true
				}
			}
		}
		if prev, ok := seen[f.Name]; ok {
			return nil, &diag.NamingCollisionError{Kind: "field", Name: f.Name, First: prev, Second: rel.Name}
		}
		seen[f.Name] = rel.Name
		fields = append(fields, f)
	}
	return fields, nil
}

func (s *synthesizer) routines() {
	schemas := map[string]map[string]bool{}
	for _, r := range s.g.Routines() {
		if !r.Callable() {
			continue
		}
		name := inflect.Camelize(r.Name)
		if schemas[name] == nil {
			schemas[name] = map[string]bool{}
		}
		schemas[name][r.Schema] = true
	}

	for _, r := range s.g.Routines() {
		if !r.Callable() {
			continue
		}
		base := inflect.Camelize(r.Name)
		if len(schemas[base]) > 1 {
			base = inflect.Camelize(r.Schema + "_" + r.Name)
		}
		if r.Overloaded {
			base += inflect.Camelize(r.Slug())
		}
		in, out, err := s.routineFields(r)
		if err != nil {
			s.diags.Add(diag.KindSkippedRoutine, r.Signature, "%v", err)
			continue
		}
		s.add(&Model{Name: base + Input.suffix(), Entity: r.Signature, Purpose: Input, Fields: in})
		if r.Returns.Kind != catalog.ReturnNone {
			s.add(&Model{Name: base + Output.suffix(), Entity: r.Signature, Purpose: Output, Fields: out})
		}
	}
}

func (s *synthesizer) routineFields(r *graph.Routine) (in, out []Field, err error) {
	param := func(p graph.Param) Field {
		return Field{
			Name:     s.opts.NamingStrategy.Apply(p.Name),
			Column:   p.Name,
			Type:     p.Type,
			Nullable: true,
			Choices:  s.choices(p.Type),
		}
	}
	for _, p := range r.Inputs() {
		f := param(p)
		f.Required = !p.HasDefault
		in = append(in, f)
	}

	switch {
	case r.Returns.Relation >= 0:
		t := s.g.Table(r.Returns.Relation)
		for _, c := range t.Columns {
			f := s.column(t, c)
			f.Required = true
			out = append(out, f)
		}
	case len(r.Returns.Columns) > 0:
		for _, c := range r.Returns.Columns {
			f := param(c)
			f.Required = true
			out = append(out, f)
		}
	case r.Returns.Type != nil:
		out = append(out, Field{
			Name:     s.opts.NamingStrategy.Apply(r.Name),
			Column:   r.Name,
			Type:     *r.Returns.Type,
			Required: true,
			Nullable: true,
			Choices:  s.choices(*r.Returns.Type),
		})
	}

	for _, fields := range [][]Field{in, out} {
		seen := map[string]bool{}
		for _, f := range fields {
			if seen[f.Name] {
				return nil, nil, fmt.Errorf("duplicate field %q", f.Name)
			}
			seen[f.Name] = true
		}
	}
	return in, out, nil
}

// Operators lists the filter operators a column of type m supports.
func Operators(m typemap.Mapping) []string {
	switch m.Kind {
	case typemap.String, typemap.Opaque:
		return []string{"eq", "neq", "gt", "gte", "lt", "lte", "like", "ilike", "in", "notin", "is", "isnull"}
	case typemap.Integer, typemap.Float, typemap.Decimal,
		typemap.Date, typemap.Time, typemap.Timestamp, typemap.Interval:
		return []string{"eq", "neq", "gt", "gte", "lt", "lte", "in", "notin", "is", "isnull"}
	case typemap.Boolean:
		return []string{"eq", "neq", "is", "isnull"}
	case typemap.UUID, typemap.Enum, typemap.Network:
		return []string{"eq", "neq", "in", "notin", "is", "isnull"}
	default:
		return []string{"is", "isnull"}
	}
}

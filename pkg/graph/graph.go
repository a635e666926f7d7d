// Package graph assembles catalog descriptors into an immutable schema graph:
// tables with mapped column types, resolved foreign keys and the
// relationships derived from them, enums and routines.
//
// Tables live in an arena and refer to each other by index, so relationship
// cycles (self references included) never produce pointer cycles.
package graph

import (
	"strings"
	"unicode"

	"github.com/edgeflare/pgsynth/pkg/catalog"
	"github.com/edgeflare/pgsynth/pkg/typemap"
)

// RelationshipKind is the cardinality of a relationship, seen from its owner.
type RelationshipKind string

const (
	ManyToOne  RelationshipKind = "many_to_one"
	OneToMany  RelationshipKind = "one_to_many"
	ManyToMany RelationshipKind = "many_to_many"
)

// Column is a table column with its mapped type.
type Column struct {
	Name       string          `json:"name"`
	Position   int             `json:"position"`
	Native     string          `json:"native"`
	Type       typemap.Mapping `json:"type"`
	HasDefault bool            `json:"has_default,omitempty"`
	Default    string          `json:"default,omitempty"`
	Generated  bool            `json:"generated,omitempty"`
	Comment    string          `json:"comment,omitempty"`
}

// Nullable reports whether the column accepts NULL.
func (c Column) Nullable() bool { return c.Type.Nullable }

// ForeignKey is a foreign key whose target was found in the graph.
type ForeignKey struct {
	Name          string   `json:"name"`
	Columns       []string `json:"columns"`
	Target        int      `json:"target"`
	TargetColumns []string `json:"target_columns"`
	OnDelete      string   `json:"on_delete,omitempty"`
	OnUpdate      string   `json:"on_update,omitempty"`
}

// Relationship is a directed edge from the owning table to a related one.
// For many-to-many edges Via names the junction table, ViaFrom its columns
// referencing the owner and ViaTo its columns referencing the related table.
type Relationship struct {
	Kind       RelationshipKind `json:"kind"`
	Name       string           `json:"name"`
	From       int              `json:"from"`
	To         int              `json:"to"`
	Columns    []string         `json:"columns"`
	RefColumns []string         `json:"ref_columns"`
	Via        int              `json:"via"`
	ViaFrom    []string         `json:"via_from,omitempty"`
	ViaTo      []string         `json:"via_to,omitempty"`
	Constraint string           `json:"constraint"`
}

// Table is a table or view in the graph.
type Table struct {
	ID            int                  `json:"id"`
	Schema        string               `json:"schema"`
	Name          string               `json:"name"`
	Kind          catalog.RelationKind `json:"kind"`
	Columns       []Column             `json:"columns"`
	PrimaryKey    []string             `json:"primary_key,omitempty"`
	AlternateKeys [][]string           `json:"alternate_keys,omitempty"`
	ForeignKeys   []ForeignKey         `json:"foreign_keys,omitempty"`
	Relationships []Relationship       `json:"relationships,omitempty"`
	// Junction marks a many-to-many junction table.
	Junction bool `json:"junction,omitempty"`
	// Hidden tables take part in relationships but are not exposed as resources.
	Hidden          bool   `json:"hidden,omitempty"`
	SelfReferencing bool   `json:"self_referencing,omitempty"`
	KeyInferred     bool   `json:"key_inferred,omitempty"`
	Comment         string `json:"comment,omitempty"`
}

// QualifiedName returns schema.name.
func (t *Table) QualifiedName() string { return catalog.Qualify(t.Schema, t.Name) }

// Column returns the column called name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Keyed reports whether rows can be addressed by identifier.
func (t *Table) Keyed() bool { return len(t.PrimaryKey) > 0 }

// Writable reports whether the relation accepts inserts, updates and deletes.
func (t *Table) Writable() bool { return !t.Kind.IsView() }

// IsKey reports whether column is part of the primary key.
func (t *Table) IsKey(column string) bool {
	for _, k := range t.PrimaryKey {
		if k == column {
			return true
		}
	}
	return false
}

// Enum is an enumerated type.
type Enum struct {
	Schema string   `json:"schema"`
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// QualifiedName returns schema.name.
func (e *Enum) QualifiedName() string { return catalog.Qualify(e.Schema, e.Name) }

// Allows reports whether v is one of the labels.
func (e *Enum) Allows(v string) bool {
	for _, label := range e.Values {
		if label == v {
			return true
		}
	}
	return false
}

// Param is a routine parameter with its mapped type.
type Param struct {
	Name       string            `json:"name"`
	Native     string            `json:"native"`
	Type       typemap.Mapping   `json:"type"`
	Mode       catalog.ParamMode `json:"mode"`
	HasDefault bool              `json:"has_default,omitempty"`
}

// Return is a routine result. Relation is the table whose row type a row set
// mirrors, or -1.
type Return struct {
	Kind     catalog.ReturnKind `json:"kind"`
	Set      bool               `json:"set,omitempty"`
	Type     *typemap.Mapping   `json:"type,omitempty"`
	Columns  []Param            `json:"columns,omitempty"`
	Relation int                `json:"relation"`
}

// Routine is a function or procedure.
type Routine struct {
	Schema     string              `json:"schema"`
	Name       string              `json:"name"`
	Signature  string              `json:"signature"`
	Kind       catalog.RoutineKind `json:"kind"`
	Params     []Param             `json:"params,omitempty"`
	Returns    Return              `json:"returns"`
	Volatility string              `json:"volatility,omitempty"`
	Trigger    bool                `json:"trigger,omitempty"`
	// Overloaded is set when another routine shares schema and name.
	Overloaded bool   `json:"overloaded,omitempty"`
	Comment    string `json:"comment,omitempty"`
}

// QualifiedName returns schema.name.
func (r *Routine) QualifiedName() string { return catalog.Qualify(r.Schema, r.Name) }

// Callable reports whether the routine can be invoked directly by clients.
func (r *Routine) Callable() bool {
	return !r.Trigger && (r.Kind == catalog.KindFunction || r.Kind == catalog.KindProcedure)
}

// Slug renders the input types as an identifier fragment, as in
// "integer_integer" for add(integer, integer). It tells overloads apart.
func (r *Routine) Slug() string {
	var parts []string
	for _, p := range r.Inputs() {
		parts = append(parts, slugify(p.Native))
	}
	if len(parts) == 0 {
		return "noargs"
	}
	return strings.Join(parts, "_")
}

func slugify(s string) string {
	s = strings.ReplaceAll(strings.ToLower(s), "[]", " array")
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, "_")
}

// Inputs returns the parameters callers supply.
func (r *Routine) Inputs() []Param {
	var in []Param
	for _, p := range r.Params {
		if p.Mode.IsInput() {
			in = append(in, p)
		}
	}
	return in
}

// Graph is the immutable result of Build. Values returned by its accessors
// are shared and must not be modified.
type Graph struct {
	tables     []*Table
	byName     map[string]int
	enums      []*Enum
	enumByName map[string]int
	routines   []*Routine
	maxDepth   int
}

// Tables returns every table in qualified-name order.
func (g *Graph) Tables() []*Table { return g.tables }

// Table returns the table with arena index id.
func (g *Graph) Table(id int) *Table { return g.tables[id] }

// Lookup finds a table by qualified name.
func (g *Graph) Lookup(qualified string) (*Table, bool) {
	id, ok := g.byName[qualified]
	if !ok {
		return nil, false
	}
	return g.tables[id], true
}

// Enums returns every enum in qualified-name order.
func (g *Graph) Enums() []*Enum { return g.enums }

// Enum finds an enum by qualified name.
func (g *Graph) Enum(qualified string) (*Enum, bool) {
	id, ok := g.enumByName[qualified]
	if !ok {
		return nil, false
	}
	return g.enums[id], true
}

// Routines returns every routine in signature order.
func (g *Graph) Routines() []*Routine { return g.routines }

// MaxNestedDepth is the relationship expansion depth for read shapes.
func (g *Graph) MaxNestedDepth() int { return g.maxDepth }

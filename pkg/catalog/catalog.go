// Package catalog reads the structural metadata of a PostgreSQL database into
// plain descriptor structs: relations, columns, keys, enums and routines.
//
// A Source produces a Snapshot for a namespace Scope. PostgresSource queries a
// live catalog; FileSource decodes a snapshot previously written to YAML.
package catalog

import (
	"cmp"
	"context"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/edgeflare/pgsynth/pkg/diag"
)

// Source produces raw descriptors for everything visible in scope.
type Source interface {
	Extract(ctx context.Context, scope Scope) (*Snapshot, error)
}

// RelationKind classifies a relation.
type RelationKind string

const (
	KindTable            RelationKind = "table"
	KindPartitionedTable RelationKind = "partitioned_table"
	KindForeignTable     RelationKind = "foreign_table"
	KindView             RelationKind = "view"
	KindMaterializedView RelationKind = "materialized_view"
)

// IsView reports whether rows of the relation are derived from a query.
func (k RelationKind) IsView() bool {
	return k == KindView || k == KindMaterializedView
}

// Relation is a table or view.
type Relation struct {
	Schema         string       `json:"schema" yaml:"schema" mapstructure:"schema"`
	Name           string       `json:"name" yaml:"name" mapstructure:"name"`
	Kind           RelationKind `json:"kind" yaml:"kind" mapstructure:"kind"`
	Columns        []Column     `json:"columns" yaml:"columns" mapstructure:"columns"`
	PrimaryKey     []string     `json:"primary_key,omitempty" yaml:"primary_key,omitempty" mapstructure:"primary_key"`
	Uniques        []Unique     `json:"uniques,omitempty" yaml:"uniques,omitempty" mapstructure:"uniques"`
	ForeignKeys    []ForeignKey `json:"foreign_keys,omitempty" yaml:"foreign_keys,omitempty" mapstructure:"foreign_keys"`
	ViewDefinition string       `json:"view_definition,omitempty" yaml:"view_definition,omitempty" mapstructure:"view_definition"`
	Comment        string       `json:"comment,omitempty" yaml:"comment,omitempty" mapstructure:"comment"`
}

// QualifiedName returns schema.name.
func (r Relation) QualifiedName() string { return Qualify(r.Schema, r.Name) }

// Column describes one attribute of a relation.
type Column struct {
	Name       string `json:"name" yaml:"name" mapstructure:"name"`
	Position   int    `json:"position" yaml:"position" mapstructure:"position"`
	NativeType string `json:"native_type" yaml:"native_type" mapstructure:"native_type"`
	Nullable   bool   `json:"nullable" yaml:"nullable" mapstructure:"nullable"`
	HasDefault bool   `json:"has_default,omitempty" yaml:"has_default,omitempty" mapstructure:"has_default"`
	Default    string `json:"default,omitempty" yaml:"default,omitempty" mapstructure:"default"`
	// Generated marks identity, stored generated and sequence-backed columns.
	Generated bool   `json:"generated,omitempty" yaml:"generated,omitempty" mapstructure:"generated"`
	EnumRef   string `json:"enum_ref,omitempty" yaml:"enum_ref,omitempty" mapstructure:"enum_ref"`
	Array     bool   `json:"array,omitempty" yaml:"array,omitempty" mapstructure:"array"`
	Length    int    `json:"length,omitempty" yaml:"length,omitempty" mapstructure:"length"`
	Precision int    `json:"precision,omitempty" yaml:"precision,omitempty" mapstructure:"precision"`
	Scale     int    `json:"scale,omitempty" yaml:"scale,omitempty" mapstructure:"scale"`
	Comment   string `json:"comment,omitempty" yaml:"comment,omitempty" mapstructure:"comment"`
}

// Unique is a unique constraint.
type Unique struct {
	Name    string   `json:"name" yaml:"name" mapstructure:"name"`
	Columns []string `json:"columns" yaml:"columns" mapstructure:"columns"`
}

// ForeignKey references TargetColumns of TargetSchema.TargetTable.
type ForeignKey struct {
	Name          string   `json:"name" yaml:"name" mapstructure:"name"`
	Columns       []string `json:"columns" yaml:"columns" mapstructure:"columns"`
	TargetSchema  string   `json:"target_schema" yaml:"target_schema" mapstructure:"target_schema"`
	TargetTable   string   `json:"target_table" yaml:"target_table" mapstructure:"target_table"`
	TargetColumns []string `json:"target_columns" yaml:"target_columns" mapstructure:"target_columns"`
	OnDelete      string   `json:"on_delete,omitempty" yaml:"on_delete,omitempty" mapstructure:"on_delete"`
	OnUpdate      string   `json:"on_update,omitempty" yaml:"on_update,omitempty" mapstructure:"on_update"`
}

// Target returns the qualified name of the referenced table.
func (fk ForeignKey) Target() string { return Qualify(fk.TargetSchema, fk.TargetTable) }

// Enum is an enumerated type with its labels in declared order.
type Enum struct {
	Schema string   `json:"schema" yaml:"schema" mapstructure:"schema"`
	Name   string   `json:"name" yaml:"name" mapstructure:"name"`
	Values []string `json:"values" yaml:"values" mapstructure:"values"`
}

// QualifiedName returns schema.name.
func (e Enum) QualifiedName() string { return Qualify(e.Schema, e.Name) }

// RoutineKind classifies a routine.
type RoutineKind string

const (
	KindFunction  RoutineKind = "function"
	KindProcedure RoutineKind = "procedure"
	KindAggregate RoutineKind = "aggregate"
	KindWindow    RoutineKind = "window"
)

// ParamMode is the direction of a routine parameter.
type ParamMode string

const (
	ModeIn       ParamMode = "in"
	ModeOut      ParamMode = "out"
	ModeInOut    ParamMode = "inout"
	ModeVariadic ParamMode = "variadic"
	ModeTable    ParamMode = "table"
)

// IsInput reports whether callers supply a value for the parameter.
func (m ParamMode) IsInput() bool {
	return m == ModeIn || m == ModeInOut || m == ModeVariadic || m == ""
}

// IsOutput reports whether the parameter is part of the result.
func (m ParamMode) IsOutput() bool {
	return m == ModeOut || m == ModeInOut || m == ModeTable
}

// Param is one routine parameter.
type Param struct {
	Name       string    `json:"name" yaml:"name" mapstructure:"name"`
	Type       string    `json:"type" yaml:"type" mapstructure:"type"`
	Mode       ParamMode `json:"mode" yaml:"mode" mapstructure:"mode"`
	HasDefault bool      `json:"has_default,omitempty" yaml:"has_default,omitempty" mapstructure:"has_default"`
}

// ReturnKind is the shape of a routine result.
type ReturnKind string

const (
	ReturnNone   ReturnKind = "none"
	ReturnScalar ReturnKind = "scalar"
	ReturnRowSet ReturnKind = "rowset"
)

// Return describes a routine result. A row set either lists its columns or
// names the relation whose row type it returns.
type Return struct {
	Kind     ReturnKind `json:"kind" yaml:"kind" mapstructure:"kind"`
	Type     string     `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"`
	Set      bool       `json:"set,omitempty" yaml:"set,omitempty" mapstructure:"set"`
	Columns  []Param    `json:"columns,omitempty" yaml:"columns,omitempty" mapstructure:"columns"`
	Relation string     `json:"relation,omitempty" yaml:"relation,omitempty" mapstructure:"relation"`
}

// Routine is a function or procedure.
type Routine struct {
	Schema     string      `json:"schema" yaml:"schema" mapstructure:"schema"`
	Name       string      `json:"name" yaml:"name" mapstructure:"name"`
	Kind       RoutineKind `json:"kind" yaml:"kind" mapstructure:"kind"`
	Params     []Param     `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params"`
	Returns    Return      `json:"returns" yaml:"returns" mapstructure:"returns"`
	Volatility string      `json:"volatility,omitempty" yaml:"volatility,omitempty" mapstructure:"volatility"`
	Trigger    bool        `json:"trigger,omitempty" yaml:"trigger,omitempty" mapstructure:"trigger"`
	Comment    string      `json:"comment,omitempty" yaml:"comment,omitempty" mapstructure:"comment"`
}

// QualifiedName returns schema.name.
func (r Routine) QualifiedName() string { return Qualify(r.Schema, r.Name) }

// Inputs returns the parameters a caller supplies, in declared order.
func (r Routine) Inputs() []Param {
	var in []Param
	for _, p := range r.Params {
		if p.Mode.IsInput() {
			in = append(in, p)
		}
	}
	return in
}

// Signature is the stable key that disambiguates overloads:
// schema.name(type,type).
func (r Routine) Signature() string {
	inputs := r.Inputs()
	types := make([]string, len(inputs))
	for i, p := range inputs {
		types[i] = strings.ToLower(p.Type)
	}
	return fmt.Sprintf("%s(%s)", r.QualifiedName(), strings.Join(types, ","))
}

// Opaque is a catalog object that could not be fully classified.
type Opaque struct {
	Schema string `json:"schema" yaml:"schema" mapstructure:"schema"`
	Name   string `json:"name" yaml:"name" mapstructure:"name"`
	Kind   string `json:"kind" yaml:"kind" mapstructure:"kind"`
	Reason string `json:"reason" yaml:"reason" mapstructure:"reason"`
}

// Snapshot is the raw result of one extraction.
type Snapshot struct {
	Relations []Relation `json:"relations" yaml:"relations" mapstructure:"relations"`
	Enums     []Enum     `json:"enums,omitempty" yaml:"enums,omitempty" mapstructure:"enums"`
	Routines  []Routine  `json:"routines,omitempty" yaml:"routines,omitempty" mapstructure:"routines"`
	Opaque    []Opaque   `json:"opaque,omitempty" yaml:"opaque,omitempty" mapstructure:"opaque"`
	// Excluded lists namespaces filtered out by scope.
	Excluded []string `json:"excluded,omitempty" yaml:"excluded,omitempty" mapstructure:"excluded"`
	// Omitted lists qualified relation names dropped during extraction.
	Omitted  []string         `json:"omitted,omitempty" yaml:"omitted,omitempty" mapstructure:"omitted"`
	Warnings diag.Diagnostics `json:"warnings,omitempty" yaml:"warnings,omitempty" mapstructure:"warnings"`
}

// Namespaces returns the sorted set of namespaces that own at least one object.
func (s *Snapshot) Namespaces() []string {
	seen := map[string]struct{}{}
	for _, r := range s.Relations {
		seen[r.Schema] = struct{}{}
	}
	for _, e := range s.Enums {
		seen[e.Schema] = struct{}{}
	}
	for _, r := range s.Routines {
		seen[r.Schema] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	slices.Sort(out)
	return out
}

// IsExcluded reports whether the qualified relation name was left out on purpose,
// either by namespace scope or during extraction.
func (s *Snapshot) IsExcluded(qualified string) bool {
	schema, _, _ := strings.Cut(qualified, ".")
	return slices.Contains(s.Excluded, schema) || slices.Contains(s.Omitted, qualified)
}

// Scoped returns a copy holding only objects whose namespace scope allows.
// Namespaces filtered out are appended to Excluded.
func (s *Snapshot) Scoped(scope Scope) *Snapshot {
	out := &Snapshot{
		Excluded: slices.Clone(s.Excluded),
		Omitted:  slices.Clone(s.Omitted),
		Warnings: slices.Clone(s.Warnings),
	}
	for _, ns := range s.Namespaces() {
		if !scope.Allows(ns) && !slices.Contains(out.Excluded, ns) {
			out.Excluded = append(out.Excluded, ns)
		}
	}
	for _, r := range s.Relations {
		if scope.Allows(r.Schema) {
			out.Relations = append(out.Relations, r)
		}
	}
	for _, e := range s.Enums {
		if scope.Allows(e.Schema) {
			out.Enums = append(out.Enums, e)
		}
	}
	for _, r := range s.Routines {
		if scope.Allows(r.Schema) {
			out.Routines = append(out.Routines, r)
		}
	}
	for _, o := range s.Opaque {
		if scope.Allows(o.Schema) {
			out.Opaque = append(out.Opaque, o)
		}
	}
	out.Sort()
	return out
}

// Sort orders every collection deterministically.
func (s *Snapshot) Sort() {
	slices.SortFunc(s.Relations, func(a, b Relation) int {
		return cmp.Or(cmp.Compare(a.Schema, b.Schema), cmp.Compare(a.Name, b.Name))
	})
	for i := range s.Relations {
		r := &s.Relations[i]
		slices.SortStableFunc(r.Columns, func(a, b Column) int { return cmp.Compare(a.Position, b.Position) })
		slices.SortFunc(r.Uniques, func(a, b Unique) int { return cmp.Compare(a.Name, b.Name) })
		slices.SortFunc(r.ForeignKeys, func(a, b ForeignKey) int { return cmp.Compare(a.Name, b.Name) })
	}
	slices.SortFunc(s.Enums, func(a, b Enum) int {
		return cmp.Or(cmp.Compare(a.Schema, b.Schema), cmp.Compare(a.Name, b.Name))
	})
	slices.SortFunc(s.Routines, func(a, b Routine) int { return cmp.Compare(a.Signature(), b.Signature()) })
	slices.SortFunc(s.Opaque, func(a, b Opaque) int {
		return cmp.Or(cmp.Compare(a.Schema, b.Schema), cmp.Compare(a.Name, b.Name))
	})
	slices.Sort(s.Excluded)
	slices.Sort(s.Omitted)
}

// Qualify joins a namespace and a name.
func Qualify(schema, name string) string { return schema + "." + name }

// Scope selects namespaces by glob. An empty Include admits every
// non-system namespace; Exclude always wins.
type Scope struct {
	Include []string `mapstructure:"included_namespaces"`
	Exclude []string `mapstructure:"excluded_namespaces"`
}

// Validate checks every pattern for syntax errors.
func (s Scope) Validate() error {
	for _, p := range slices.Concat(s.Include, s.Exclude) {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("invalid namespace pattern %q: %w", p, err)
		}
	}
	return nil
}

// Allows reports whether namespace is in scope.
func (s Scope) Allows(namespace string) bool {
	if IsSystem(namespace) {
		return false
	}
	for _, p := range s.Exclude {
		if ok, _ := path.Match(p, namespace); ok {
			return false
		}
	}
	if len(s.Include) == 0 {
		return true
	}
	for _, p := range s.Include {
		if ok, _ := path.Match(p, namespace); ok {
			return true
		}
	}
	return false
}

// IsSystem reports whether namespace belongs to PostgreSQL itself.
func IsSystem(namespace string) bool {
	return strings.HasPrefix(namespace, "pg_") || namespace == "information_schema"
}

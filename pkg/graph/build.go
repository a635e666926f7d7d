package graph

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/edgeflare/pgsynth/pkg/catalog"
	"github.com/edgeflare/pgsynth/pkg/diag"
	"github.com/edgeflare/pgsynth/pkg/typemap"
)

// Options configures Build.
type Options struct {
	// Mapper maps native types. Defaults to typemap.Default, or a strict
	// mapper when StrictTypes is set.
	Mapper         *typemap.Mapper
	StrictTypes    bool
	MaxNestedDepth int
}

func (o Options) mapper() *typemap.Mapper {
	switch {
	case o.Mapper != nil:
		return o.Mapper
	case o.StrictTypes:
		return typemap.New(typemap.WithStrict(true))
	default:
		return typemap.Default()
	}
}

type builder struct {
	snap    *catalog.Snapshot
	mapper  *typemap.Mapper
	g       *Graph
	diags   diag.Diagnostics
	omitted map[string]bool
}

// Build assembles snap into a Graph. Per-entity problems are downgraded to
// diagnostics and the entity is left out. Naming collisions and unresolvable
// foreign keys abort the build with a *diag.AggregateError.
func Build(snap *catalog.Snapshot, opts Options) (*Graph, diag.Diagnostics, error) {
	if snap == nil {
		return nil, nil, errors.New("graph: nil snapshot")
	}
	b := &builder{
		snap:    snap,
		mapper:  opts.mapper(),
		omitted: map[string]bool{},
		g: &Graph{
			byName:     map[string]int{},
			enumByName: map[string]int{},
			maxDepth:   max(opts.MaxNestedDepth, 0),
		},
	}
	b.diags.Merge(snap.Warnings)

	if err := b.register(); err != nil {
		return nil, b.diags, err
	}
	b.addEnums()
	b.addTables()
	b.inferViewKeys()
	if err := b.resolveForeignKeys(); err != nil {
		return nil, b.diags, err
	}
	b.classifyJunctions()
	b.deriveRelationships()
	b.addRoutines()
	return b.g, b.diags, nil
}

// register checks that qualified names and routine signatures are unique.
func (b *builder) register() error {
	var errs []error
	seen := map[string]string{}
	check := func(kind, key string) {
		if prev, ok := seen[key]; ok {
			errs = append(errs, &diag.NamingCollisionError{Kind: "entity", Name: key, First: prev, Second: kind})
			return
		}
		seen[key] = kind
	}
	for _, r := range b.snap.Relations {
		check(string(r.Kind), r.QualifiedName())
	}
	for _, e := range b.snap.Enums {
		check("enum", e.QualifiedName())
	}
	for _, r := range b.snap.Routines {
		check(string(r.Kind), r.Signature())
	}
	return diag.Join(errs...)
}

func (b *builder) addEnums() {
	for _, e := range b.snap.Enums {
		if dup := duplicateLabel(e.Values); dup != "" {
			b.diags.Add(diag.KindEnumFallback, e.QualifiedName(), "duplicate label %q; enum dropped", dup)
			continue
		}
		b.g.enumByName[e.QualifiedName()] = len(b.g.enums)
		b.g.enums = append(b.g.enums, &Enum{Schema: e.Schema, Name: e.Name, Values: slices.Clone(e.Values)})
	}
}

func duplicateLabel(values []string) string {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			return v
		}
		seen[v] = true
	}
	return ""
}

func (b *builder) addTables() {
	for _, rel := range b.snap.Relations {
		q := rel.QualifiedName()
		cols, ok := b.mapColumns(rel)
		if !ok {
			b.omitted[q] = true
			continue
		}
		t := &Table{
			ID:         len(b.g.tables),
			Schema:     rel.Schema,
			Name:       rel.Name,
			Kind:       rel.Kind,
			Columns:    cols,
			PrimaryKey: slices.Clone(rel.PrimaryKey),
			Comment:    rel.Comment,
		}
		for _, u := range rel.Uniques {
			if !slices.Equal(u.Columns, rel.PrimaryKey) {
				t.AlternateKeys = append(t.AlternateKeys, slices.Clone(u.Columns))
			}
		}
		if !t.Keyed() && !t.Kind.IsView() {
			t.Hidden = true
			b.diags.Add(diag.KindUnkeyedTable, q, "no primary key; not exposed")
		}
		b.g.byName[q] = t.ID
		b.g.tables = append(b.g.tables, t)
	}
}

// mapColumns maps every column of rel. It reports false when the relation
// must be omitted.
func (b *builder) mapColumns(rel catalog.Relation) ([]Column, bool) {
	q := rel.QualifiedName()
	cols := make([]Column, 0, len(rel.Columns))
	for _, c := range rel.Columns {
		object := q + "." + c.Name
		in := typemap.Input{
			Object:    object,
			Native:    c.NativeType,
			Nullable:  c.Nullable,
			Length:    c.Length,
			Precision: c.Precision,
			Scale:     c.Scale,
			EnumRef:   c.EnumRef,
			Array:     c.Array,
		}
		if in.EnumRef != "" {
			if _, ok := b.g.enumByName[in.EnumRef]; !ok {
				b.diags.Add(diag.KindEnumFallback, object, "enum %s not found; mapped as string", in.EnumRef)
				in.EnumRef = ""
				in.Native = "text"
			}
		}
		m, err := b.mapper.Map(in)
		if err != nil {
			b.diags.Add(diag.KindOmittedTable, q, "%v", err)
			return nil, false
		}
		if m.Fallback {
			b.diags.Add(diag.KindUnmappedType, object, "native type %q mapped to opaque string", c.NativeType)
		}
		cols = append(cols, Column{
			Name:       c.Name,
			Position:   c.Position,
			Native:     c.NativeType,
			Type:       m,
			HasDefault: c.HasDefault,
			Default:    c.Default,
			Generated:  c.Generated,
			Comment:    c.Comment,
		})
	}
	return cols, true
}

func (b *builder) inferViewKeys() {
	primaryKey := func(qualified string) ([]string, bool) {
		t, ok := b.g.Lookup(qualified)
		if !ok || t.Kind.IsView() {
			return nil, false
		}
		return t.PrimaryKey, t.Keyed()
	}
	for _, rel := range b.snap.Relations {
		t, ok := b.g.Lookup(rel.QualifiedName())
		if !ok || !t.Kind.IsView() || t.Keyed() {
			continue
		}
		if key, ok := catalog.InferViewKey(rel, primaryKey); ok {
			t.PrimaryKey = key
			t.KeyInferred = true
		}
	}
}

func (b *builder) resolveForeignKeys() error {
	var errs []error
	for _, rel := range b.snap.Relations {
		t, ok := b.g.Lookup(rel.QualifiedName())
		if !ok {
			continue
		}
		for _, fk := range rel.ForeignKeys {
			target := fk.Target()
			tid, ok := b.g.byName[target]
			if !ok {
				if b.snap.IsExcluded(target) || b.omitted[target] {
					b.diags.Add(diag.KindDroppedForeignKey, t.QualifiedName(),
						"foreign key %s references excluded %s", fk.Name, target)
					continue
				}
				errs = append(errs, &diag.RelationshipResolutionError{
					Table: t.QualifiedName(), Constraint: fk.Name, Target: target, Reason: "target not found",
				})
				continue
			}
			if err := checkColumns(t, b.g.tables[tid], fk); err != nil {
				errs = append(errs, err)
				continue
			}
			t.ForeignKeys = append(t.ForeignKeys, ForeignKey{
				Name:          fk.Name,
				Columns:       slices.Clone(fk.Columns),
				Target:        tid,
				TargetColumns: slices.Clone(fk.TargetColumns),
				OnDelete:      fk.OnDelete,
				OnUpdate:      fk.OnUpdate,
			})
			if tid == t.ID {
				t.SelfReferencing = true
			}
		}
	}
	return diag.Join(errs...)
}

func checkColumns(src, dst *Table, fk catalog.ForeignKey) error {
	fail := func(reason string) error {
		return &diag.RelationshipResolutionError{
			Table: src.QualifiedName(), Constraint: fk.Name, Target: dst.QualifiedName(), Reason: reason,
		}
	}
	if len(fk.Columns) == 0 || len(fk.Columns) != len(fk.TargetColumns) {
		return fail("column count mismatch")
	}
	for _, c := range fk.Columns {
		if _, ok := src.Column(c); !ok {
			return fail(fmt.Sprintf("source column %q does not exist", c))
		}
	}
	for _, c := range fk.TargetColumns {
		if _, ok := dst.Column(c); !ok {
			return fail(fmt.Sprintf("target column %q does not exist", c))
		}
	}
	return nil
}

// classifyJunctions marks tables whose primary key is covered by exactly two
// foreign keys to two distinct other tables.
func (b *builder) classifyJunctions() {
	for _, t := range b.g.tables {
		if len(t.ForeignKeys) != 2 || !t.Keyed() || !t.Writable() {
			continue
		}
		a, c := t.ForeignKeys[0], t.ForeignKeys[1]
		if a.Target == c.Target || a.Target == t.ID || c.Target == t.ID {
			continue
		}
		if !subset(a.Columns, t.PrimaryKey) || !subset(c.Columns, t.PrimaryKey) {
			continue
		}
		t.Junction = true
		extra := false
		for _, col := range t.Columns {
			if !slices.Contains(a.Columns, col.Name) && !slices.Contains(c.Columns, col.Name) {
				extra = true
				break
			}
		}
		if !extra {
			t.Hidden = true
			b.diags.Add(diag.KindHiddenJunction, t.QualifiedName(),
				"junction between %s and %s", b.g.tables[a.Target].QualifiedName(), b.g.tables[c.Target].QualifiedName())
		}
	}
}

func subset(cols, of []string) bool {
	for _, c := range cols {
		if !slices.Contains(of, c) {
			return false
		}
	}
	return true
}

// deriveRelationships attaches named edges to both ends of every foreign key,
// and many-to-many edges across junctions. Tables and constraints are visited
// in sorted order so names are stable across passes.
func (b *builder) deriveRelationships() {
	taken := make([]map[string]bool, len(b.g.tables))
	for i, t := range b.g.tables {
		taken[i] = make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			taken[i][c.Name] = true
		}
	}
	claim := func(owner int, candidates ...string) string {
		name := uniqueName(taken[owner], candidates)
		taken[owner][name] = true
		return name
	}

	for _, t := range b.g.tables {
		for _, fk := range t.ForeignKeys {
			dst := b.g.tables[fk.Target]
			by := "_by_" + strings.Join(fk.Columns, "_")

			t.Relationships = append(t.Relationships, Relationship{
				Kind:       ManyToOne,
				Name:       claim(t.ID, manyToOneNames(fk, dst)...),
				From:       t.ID,
				To:         dst.ID,
				Columns:    slices.Clone(fk.Columns),
				RefColumns: slices.Clone(fk.TargetColumns),
				Via:        -1,
				Constraint: fk.Name,
			})

			if t.Hidden && t.Junction {
				continue
			}
			var names []string
			if dst.ID == t.ID {
				names = []string{t.Name + by, fk.Name}
			} else {
				names = []string{t.Name, t.Name + by, t.Schema + "_" + t.Name + by, fk.Name}
			}
			dst.Relationships = append(dst.Relationships, Relationship{
				Kind:       OneToMany,
				Name:       claim(dst.ID, names...),
				From:       dst.ID,
				To:         t.ID,
				Columns:    slices.Clone(fk.TargetColumns),
				RefColumns: slices.Clone(fk.Columns),
				Via:        -1,
				Constraint: fk.Name,
			})
		}
	}

	for _, j := range b.g.tables {
		if !j.Junction {
			continue
		}
		for i, near := range j.ForeignKeys {
			far := j.ForeignKeys[1-i]
			owner, other := b.g.tables[near.Target], b.g.tables[far.Target]
			owner.Relationships = append(owner.Relationships, Relationship{
				Kind:       ManyToMany,
				Name:       claim(owner.ID, other.Name, other.Name+"_via_"+j.Name, far.Name),
				From:       owner.ID,
				To:         other.ID,
				Columns:    slices.Clone(near.TargetColumns),
				RefColumns: slices.Clone(far.TargetColumns),
				Via:        j.ID,
				ViaFrom:    slices.Clone(near.Columns),
				ViaTo:      slices.Clone(far.Columns),
				Constraint: far.Name,
			})
		}
	}

	for _, t := range b.g.tables {
		slices.SortFunc(t.Relationships, func(a, c Relationship) int { return cmp.Compare(a.Name, c.Name) })
	}
}

func manyToOneNames(fk ForeignKey, dst *Table) []string {
	var names []string
	if len(fk.Columns) == 1 {
		if base, ok := strings.CutSuffix(fk.Columns[0], "_id"); ok && base != "" {
			names = append(names, base)
		}
	}
	return append(names, dst.Name, dst.Name+"_by_"+strings.Join(fk.Columns, "_"), fk.Name)
}

// uniqueName returns the first candidate not in taken, or the last candidate
// with the smallest free numeric suffix.
func uniqueName(taken map[string]bool, candidates []string) string {
	for _, c := range candidates {
		if !taken[c] {
			return c
		}
	}
	last := candidates[len(candidates)-1]
	for n := 2; ; n++ {
		if c := last + "_" + strconv.Itoa(n); !taken[c] {
			return c
		}
	}
}

func (b *builder) addRoutines() {
	count := map[string]int{}
	for _, r := range b.snap.Routines {
		count[r.QualifiedName()]++
	}
	for _, r := range b.snap.Routines {
		sig := r.Signature()
		routine, reason := b.mapRoutine(r)
		if reason != "" {
			b.diags.Add(diag.KindSkippedRoutine, sig, "%s", reason)
			continue
		}
		routine.Overloaded = count[r.QualifiedName()] > 1
		b.g.routines = append(b.g.routines, routine)
	}
}

func (b *builder) mapRoutine(r catalog.Routine) (*Routine, string) {
	sig := r.Signature()
	out := &Routine{
		Schema:     r.Schema,
		Name:       r.Name,
		Signature:  sig,
		Kind:       r.Kind,
		Volatility: r.Volatility,
		Trigger:    r.Trigger,
		Comment:    r.Comment,
		Returns:    Return{Kind: r.Returns.Kind, Set: r.Returns.Set, Relation: -1},
	}
	param := func(p catalog.Param) (Param, error) {
		m, err := b.mapType(sig, r.Schema, p.Type)
		return Param{Name: p.Name, Native: p.Type, Type: m, Mode: p.Mode, HasDefault: p.HasDefault}, err
	}
	for _, p := range r.Params {
		mp, err := param(p)
		if err != nil {
			return nil, err.Error()
		}
		out.Params = append(out.Params, mp)
	}
	for _, c := range r.Returns.Columns {
		mc, err := param(c)
		if err != nil {
			return nil, err.Error()
		}
		out.Returns.Columns = append(out.Returns.Columns, mc)
	}

	switch {
	case r.Returns.Relation != "":
		id, ok := b.g.byName[r.Returns.Relation]
		if !ok {
			return nil, fmt.Sprintf("returns rows of %s, which is not in the graph", r.Returns.Relation)
		}
		out.Returns.Relation = id
	case r.Returns.Kind == catalog.ReturnScalar && !r.Trigger:
		m, err := b.mapType(sig, r.Schema, r.Returns.Type)
		if err != nil {
			return nil, err.Error()
		}
		out.Returns.Type = &m
	}
	return out, ""
}

// mapType maps a routine parameter or result type, resolving bare enum
// names against the routine's namespace.
func (b *builder) mapType(object, schema, native string) (typemap.Mapping, error) {
	in := typemap.Input{Object: object, Native: native, Nullable: true}
	name := strings.TrimSuffix(native, "[]")
	if !strings.Contains(name, ".") {
		name = catalog.Qualify(schema, name)
	}
	if _, ok := b.g.enumByName[name]; ok {
		in.EnumRef = name
		in.Array = strings.HasSuffix(native, "[]")
	}
	m, err := b.mapper.Map(in)
	if err != nil {
		return m, err
	}
	if m.Fallback {
		b.diags.Add(diag.KindUnmappedType, object, "native type %q mapped to opaque string", native)
	}
	return m, nil
}

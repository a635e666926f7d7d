// Package typemap converts PostgreSQL native type tags into canonical semantic
// types plus the validation constraints that follow from them.
//
// The mapping is table-driven. Tags outside the table fall back to an opaque
// string unless the mapper runs in strict mode.
package typemap

import (
	"strconv"
	"strings"
	"sync"

	"github.com/edgeflare/pgsynth/pkg/diag"
)

// Kind is a canonical semantic type.
type Kind string

const (
	String    Kind = "string"
	Integer   Kind = "integer"
	Float     Kind = "float"
	Decimal   Kind = "decimal"
	Boolean   Kind = "boolean"
	Date      Kind = "date"
	Time      Kind = "time"
	Timestamp Kind = "timestamp"
	Interval  Kind = "interval"
	UUID      Kind = "uuid"
	JSON      Kind = "json"
	Binary    Kind = "binary"
	Network   Kind = "network"
	Enum      Kind = "enum"
	Array     Kind = "array"
	Opaque    Kind = "opaque"
)

// Constraints are the validation rules implied by a native type.
// Numeric bounds are decimal strings so that int8 limits stay exact.
type Constraints struct {
	MaxLength     int    `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	FixedLength   bool   `json:"fixed_length,omitempty" yaml:"fixed_length,omitempty"`
	Minimum       string `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum       string `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	Precision     int    `json:"precision,omitempty" yaml:"precision,omitempty"`
	Scale         int    `json:"scale,omitempty" yaml:"scale,omitempty"`
	TimezoneAware bool   `json:"timezone_aware,omitempty" yaml:"timezone_aware,omitempty"`
	EnumRef       string `json:"enum_ref,omitempty" yaml:"enum_ref,omitempty"`
}

// Mapping is the result of mapping one native type.
type Mapping struct {
	Kind        Kind        `json:"kind" yaml:"kind"`
	Format      string      `json:"format,omitempty" yaml:"format,omitempty"`
	Nullable    bool        `json:"nullable" yaml:"nullable"`
	Constraints Constraints `json:"constraints,omitzero" yaml:"constraints,omitempty"`
	Elem        *Mapping    `json:"elem,omitempty" yaml:"elem,omitempty"`
	// Fallback is set when the native tag was unknown and mapped to Opaque.
	Fallback bool `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// Input describes one column or parameter type.
type Input struct {
	Object    string // qualified owner, used in errors
	Native    string
	Nullable  bool
	Length    int
	Precision int
	Scale     int
	EnumRef   string
	Array     bool
}

// Mapper maps native tags through a lookup table.
type Mapper struct {
	mu      sync.RWMutex
	table   map[string]Mapping
	aliases map[string]string
	strict  bool
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithStrict makes Map return *diag.TypeMappingError for unknown tags instead of
// falling back to Opaque.
func WithStrict(strict bool) Option {
	return func(m *Mapper) { m.strict = strict }
}

// New returns a Mapper over the built-in PostgreSQL table.
func New(opts ...Option) *Mapper {
	m := &Mapper{
		table:   builtin(),
		aliases: builtinAliases(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var (
	defaultOnce   sync.Once
	defaultMapper *Mapper
)

// Default returns the shared non-strict Mapper.
func Default() *Mapper {
	defaultOnce.Do(func() { defaultMapper = New() })
	return defaultMapper
}

// Register adds or replaces the mapping for a native tag.
func (m *Mapper) Register(native string, mapping Mapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table[strings.ToLower(native)] = mapping
}

// Known reports whether the tag resolves without fallback.
func (m *Mapper) Known(native string) bool {
	tag, _ := m.normalize(native)
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.table[tag]
	return ok
}

// Map resolves in to a Mapping. Enum references take precedence over the tag.
func (m *Mapper) Map(in Input) (Mapping, error) {
	tag, isArray := m.normalize(in.Native)
	isArray = isArray || in.Array

	var base Mapping
	switch {
	case in.EnumRef != "":
		base = Mapping{Kind: Enum, Format: "enum", Constraints: Constraints{EnumRef: in.EnumRef}}
	default:
		m.mu.RLock()
		entry, ok := m.table[tag]
		m.mu.RUnlock()
		if !ok {
			if m.strict {
				return Mapping{}, &diag.TypeMappingError{Object: in.Object, NativeType: in.Native}
			}
			entry = Mapping{Kind: Opaque, Format: "string", Fallback: true}
		}
		base = entry
		base.Constraints = applyModifiers(base, in)
	}

	if isArray {
		elem := base
		elem.Nullable = true
		return Mapping{
			Kind:     Array,
			Nullable: in.Nullable,
			Elem:     &elem,
			Fallback: elem.Fallback,
		}, nil
	}
	base.Nullable = in.Nullable
	return base, nil
}

// normalize lowercases the tag, strips type modifiers and resolves aliases.
// It reports whether the tag denoted an array.
func (m *Mapper) normalize(native string) (string, bool) {
	tag := strings.ToLower(strings.TrimSpace(native))
	isArray := false
	if strings.HasSuffix(tag, "[]") {
		tag = strings.TrimSuffix(tag, "[]")
		isArray = true
	}
	if i := strings.IndexByte(tag, '('); i >= 0 {
		j := strings.LastIndexByte(tag, ')')
		if j > i {
			tag = strings.TrimSpace(tag[:i] + tag[j+1:])
		} else {
			tag = strings.TrimSpace(tag[:i])
		}
	}
	if i := strings.LastIndexByte(tag, '.'); i >= 0 && !strings.Contains(tag, " ") {
		if tag[:i] == "pg_catalog" {
			tag = tag[i+1:]
		}
	}
	if strings.HasPrefix(tag, "_") {
		tag = tag[1:]
		isArray = true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if alias, ok := m.aliases[tag]; ok {
		tag = alias
	}
	return tag, isArray
}

func applyModifiers(base Mapping, in Input) Constraints {
	c := base.Constraints
	switch base.Kind {
	case String:
		if in.Length > 0 {
			c.MaxLength = in.Length
		} else if n := modifier(in.Native); n > 0 {
			c.MaxLength = n
		}
	case Decimal:
		if in.Precision > 0 {
			c.Precision = in.Precision
			c.Scale = in.Scale
		} else if mods := modifiers(in.Native); len(mods) > 0 {
			c.Precision = mods[0]
			if len(mods) > 1 {
				c.Scale = mods[1]
			}
		}
	}
	return c
}

// modifier returns the first type modifier, as in varchar(255).
func modifier(native string) int {
	if mods := modifiers(native); len(mods) > 0 {
		return mods[0]
	}
	return 0
}

// modifiers parses the integer type modifiers of a native tag, as in numeric(10,2).
func modifiers(native string) []int {
	i := strings.IndexByte(native, '(')
	j := strings.IndexByte(native, ')')
	if i < 0 || j <= i {
		return nil
	}
	var mods []int
	for part := range strings.SplitSeq(native[i+1:j], ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil
		}
		mods = append(mods, n)
	}
	return mods
}

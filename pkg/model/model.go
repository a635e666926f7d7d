// Package model synthesizes request and response shapes from a schema graph.
package model

import (
	"github.com/edgeflare/pgsynth/pkg/graph"
	"github.com/edgeflare/pgsynth/pkg/typemap"
)

// Purpose is what a model is used for.
type Purpose string

const (
	Create Purpose = "create"
	Update Purpose = "update"
	Read   Purpose = "read"
	Filter Purpose = "filter"
	Key    Purpose = "key"
	Enum   Purpose = "enum"
	Input  Purpose = "input"
	Output Purpose = "output"
)

func (p Purpose) suffix() string {
	switch p {
	case Create:
		return "Create"
	case Update:
		return "Update"
	case Read:
		return "Read"
	case Filter:
		return "Filter"
	case Key:
		return "Key"
	case Input:
		return "Input"
	case Output:
		return "Output"
	}
	return ""
}

// Field is one property of a model. Fields with a Relationship are nested
// read fields; their shape is given inline by Fields.
type Field struct {
	Name      string          `json:"name"`
	Column    string          `json:"column"`
	Type      typemap.Mapping `json:"type"`
	Required  bool            `json:"required,omitempty"`
	Nullable  bool            `json:"nullable,omitempty"`
	Key       bool            `json:"key,omitempty"`
	ReadOnly  bool            `json:"read_only,omitempty"`
	Choices   []string        `json:"choices,omitempty"`
	Operators []string        `json:"operators,omitempty"`
	Comment   string          `json:"comment,omitempty"`

	Relationship *graph.Relationship `json:"relationship,omitempty"`
	Target       string              `json:"target,omitempty"`
	Many         bool                `json:"many,omitempty"`
	Fields       []Field             `json:"fields,omitempty"`
}

// Nested reports whether the field embeds related rows.
func (f Field) Nested() bool { return f.Relationship != nil }

// Model is a named shape bound to one entity and purpose.
type Model struct {
	Name    string   `json:"name"`
	Entity  string   `json:"entity"`
	Purpose Purpose  `json:"purpose"`
	Fields  []Field  `json:"fields,omitempty"`
	Choices []string `json:"choices,omitempty"`
}

// Field returns the field with wire name name.
func (m *Model) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ByColumn returns the field bound to column.
func (m *Model) ByColumn(column string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Column == column && !f.Nested() {
			return f, true
		}
	}
	return Field{}, false
}

// Set is the immutable collection of models produced by Synthesize.
type Set struct {
	models   []*Model
	byName   map[string]int
	byEntity map[string]map[Purpose]int
}

func newSet() *Set {
	return &Set{byName: map[string]int{}, byEntity: map[string]map[Purpose]int{}}
}

func (s *Set) add(m *Model) {
	i := len(s.models)
	s.models = append(s.models, m)
	s.byName[m.Name] = i
	if s.byEntity[m.Entity] == nil {
		s.byEntity[m.Entity] = map[Purpose]int{}
	}
	s.byEntity[m.Entity][m.Purpose] = i
}

// All returns every model in generation order.
func (s *Set) All() []*Model { return s.models }

// Len returns the number of models.
func (s *Set) Len() int { return len(s.models) }

// Get finds a model by name.
func (s *Set) Get(name string) (*Model, bool) {
	i, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return s.models[i], true
}

// For finds the model serving purpose for entity, a qualified table or enum
// name or a routine signature.
func (s *Set) For(entity string, purpose Purpose) (*Model, bool) {
	i, ok := s.byEntity[entity][purpose]
	if !ok {
		return nil, false
	}
	return s.models[i], true
}

// Entity returns every model bound to entity.
func (s *Set) Entity(entity string) []*Model {
	var out []*Model
	for _, m := range s.models {
		if m.Entity == entity {
			out = append(out, m)
		}
	}
	return out
}

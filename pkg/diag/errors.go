// Package diag defines the error taxonomy of a generation pass and the
// warnings that accompany every successful one.
package diag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExtraction is matched by errors raised while reading the catalog.
	ErrExtraction = errors.New("extraction failed")
	// ErrTypeMapping is matched by native types the type mapper refuses.
	ErrTypeMapping = errors.New("type mapping failed")
	// ErrNamingCollision is matched by duplicate entity, model or route names.
	ErrNamingCollision = errors.New("naming collision")
	// ErrRelationshipResolution is matched by foreign keys whose target is unknown.
	ErrRelationshipResolution = errors.New("relationship resolution failed")
	// ErrGeneration is matched by synthesis failures.
	ErrGeneration = errors.New("generation failed")
)

// ExtractionError reports a catalog that is unreachable, a missing permission
// or a pass that exceeded its deadline.
type ExtractionError struct {
	Op    string // connect, permission, timeout, query
	Cause error
}

func (e *ExtractionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("extraction %s failed", e.Op)
	}
	return fmt.Sprintf("extraction %s failed: %v", e.Op, e.Cause)
}

func (e *ExtractionError) Unwrap() error        { return e.Cause }
func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// TypeMappingError reports a native type with no mapping and no fallback.
type TypeMappingError struct {
	Object     string
	NativeType string
}

func (e *TypeMappingError) Error() string {
	return fmt.Sprintf("%s: cannot map native type %q", e.Object, e.NativeType)
}

func (e *TypeMappingError) Is(target error) bool { return target == ErrTypeMapping }

// NamingCollisionError reports two objects resolving to the same name.
type NamingCollisionError struct {
	Kind   string // entity, model, route, field
	Name   string
	First  string
	Second string
}

func (e *NamingCollisionError) Error() string {
	if e.First == "" && e.Second == "" {
		return fmt.Sprintf("duplicate %s name %q", e.Kind, e.Name)
	}
	return fmt.Sprintf("duplicate %s name %q (%s, %s)", e.Kind, e.Name, e.First, e.Second)
}

func (e *NamingCollisionError) Is(target error) bool { return target == ErrNamingCollision }

// RelationshipResolutionError reports a foreign key whose target is neither
// present in the graph nor intentionally excluded.
type RelationshipResolutionError struct {
	Table      string
	Constraint string
	Target     string
	Reason     string
}

func (e *RelationshipResolutionError) Error() string {
	msg := fmt.Sprintf("%s: foreign key %s references %s", e.Table, e.Constraint, e.Target)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *RelationshipResolutionError) Is(target error) bool {
	return target == ErrRelationshipResolution
}

// GenerationError reports a model or route that cannot be synthesized.
type GenerationError struct {
	Object string
	Reason string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Object, e.Reason)
}

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// AggregateError collects every root cause of an aborted pass.
type AggregateError struct {
	Errs []error
}

func (e *AggregateError) Error() string {
	switch len(e.Errs) {
	case 0:
		return "generation aborted"
	case 1:
		return e.Errs[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "generation aborted with %d errors:", len(e.Errs))
	for _, err := range e.Errs {
		sb.WriteString("\n\t")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

func (e *AggregateError) Unwrap() []error { return e.Errs }

// Join returns nil for no errors, and an *AggregateError otherwise.
// Nested aggregates are flattened.
func Join(errs ...error) error {
	var flat []error
	for _, err := range errs {
		if err == nil {
			continue
		}
		var agg *AggregateError
		if errors.As(err, &agg) {
			flat = append(flat, agg.Errs...)
			continue
		}
		flat = append(flat, err)
	}
	if len(flat) == 0 {
		return nil
	}
	return &AggregateError{Errs: flat}
}

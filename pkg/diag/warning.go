package diag

import (
	"fmt"

	"go.uber.org/zap"
)

// Kind classifies a warning.
type Kind string

const (
	KindOmittedTable        Kind = "omitted_table"
	KindDroppedForeignKey   Kind = "dropped_foreign_key"
	KindUnmappedType        Kind = "unmapped_type"
	KindOpaqueObject        Kind = "opaque_object"
	KindUnkeyedTable        Kind = "unkeyed_table"
	KindEnumFallback        Kind = "enum_fallback"
	KindHiddenJunction      Kind = "hidden_junction"
	KindSkippedRoutine      Kind = "skipped_routine"
	KindDroppedRelationship Kind = "dropped_relationship"
)

// Warning is a non-fatal finding of a generation pass.
type Warning struct {
	Kind    Kind   `json:"kind" yaml:"kind" mapstructure:"kind"`
	Object  string `json:"object" yaml:"object" mapstructure:"object"`
	Message string `json:"message" yaml:"message" mapstructure:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s: %s", w.Kind, w.Object, w.Message)
}

// Diagnostics is an ordered list of warnings. It is not safe for concurrent
// use; concurrent producers collect their own lists and Merge them.
type Diagnostics []Warning

// Add appends a warning.
func (d *Diagnostics) Add(kind Kind, object, format string, args ...any) {
	*d = append(*d, Warning{Kind: kind, Object: object, Message: fmt.Sprintf(format, args...)})
}

// Merge appends all warnings of other.
func (d *Diagnostics) Merge(other Diagnostics) {
	*d = append(*d, other...)
}

// Count returns the number of warnings of the given kind.
func (d Diagnostics) Count(kind Kind) int {
	n := 0
	for _, w := range d {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

// Has reports whether a warning of kind was recorded for object.
func (d Diagnostics) Has(kind Kind, object string) bool {
	for _, w := range d {
		if w.Kind == kind && w.Object == object {
			return true
		}
	}
	return false
}

// Log writes every warning to logger at warn level.
func (d Diagnostics) Log(logger *zap.Logger) {
	for _, w := range d {
		logger.Warn("generation warning",
			zap.String("kind", string(w.Kind)),
			zap.String("object", w.Object),
			zap.String("message", w.Message),
		)
	}
}

package model

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/edgeflare/pgsynth/pkg/typemap"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// FieldError is one problem found by Validate.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every problem of a payload, sorted by field.
type ValidationError struct {
	Model    string       `json:"model"`
	Problems []FieldError `json:"problems"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Field+": "+p.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Model, strings.Join(parts, "; "))
}

// Validate checks a decoded JSON object against the model. Numbers may be
// float64, json.Number or Go integers; decimals may also be strings.
func (m *Model) Validate(values map[string]any) error {
	verr := &ValidationError{Model: m.Name}
	problem := func(field, format string, args ...any) {
		verr.Problems = append(verr.Problems, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	for name := range values {
		f, ok := m.Field(name)
		if !ok || f.Nested() {
			problem(name, "unknown field")
		}
	}
	for _, f := range m.Fields {
		if f.Nested() {
			continue
		}
		v, ok := values[f.Name]
		switch {
		case !ok:
			if f.Required {
				problem(f.Name, "required")
			}
		case v == nil:
			if !f.Nullable {
				problem(f.Name, "must not be null")
			}
		default:
			if err := checkValue(f.Type, f.Choices, v); err != nil {
				problem(f.Name, "%v", err)
			}
		}
	}

	if len(verr.Problems) == 0 {
		return nil
	}
	slices.SortStableFunc(verr.Problems, func(a, b FieldError) int { return strings.Compare(a.Field, b.Field) })
	return verr
}

func checkValue(t typemap.Mapping, choices []string, v any) error {
	switch t.Kind {
	case typemap.String, typemap.Opaque:
		s, ok := v.(string)
		if !ok {
			return kindError("string", v)
		}
		if n := t.Constraints.MaxLength; n > 0 {
			if err := validate.Var(s, "max="+strconv.Itoa(n)); err != nil {
				return fmt.Errorf("longer than %d characters", n)
			}
		}
	case typemap.Integer:
		d, err := number(v)
		if err != nil {
			return err
		}
		if !d.IsInteger() {
			return fmt.Errorf("%s is not an integer", d)
		}
		if err := checkRange(d, t.Constraints); err != nil {
			return err
		}
	case typemap.Float:
		d, err := number(v)
		if err != nil {
			return err
		}
		if f, _ := d.Float64(); math.IsInf(f, 0) {
			return fmt.Errorf("%s is out of range", d)
		}
	case typemap.Decimal:
		d, err := number(v)
		if err != nil {
			return err
		}
		if err := checkPrecision(d, t.Constraints); err != nil {
			return err
		}
	case typemap.Boolean:
		if _, ok := v.(bool); !ok {
			return kindError("boolean", v)
		}
	case typemap.UUID:
		s, ok := v.(string)
		if !ok {
			return kindError("uuid string", v)
		}
		if err := validate.Var(s, "uuid"); err != nil {
			return fmt.Errorf("%q is not a uuid", s)
		}
	case typemap.Date:
		return checkTime(v, "date", "2006-01-02")
	case typemap.Time:
		return checkTime(v, "time", "15:04:05", "15:04", "15:04:05Z07:00", "15:04:05.999999", "15:04:05.999999Z07:00")
	case typemap.Timestamp:
		return checkTime(v, "timestamp", time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999", "2006-01-02 15:04:05Z07:00", "2006-01-02")
	case typemap.Interval, typemap.Binary:
		if _, ok := v.(string); !ok {
			return kindError("string", v)
		}
	case typemap.Network:
		s, ok := v.(string)
		if !ok {
			return kindError("string", v)
		}
		tag := "ip|cidr"
		if t.Format == "mac" {
			tag = "mac"
		}
		if err := validate.Var(s, tag); err != nil {
			return fmt.Errorf("%q is not a valid %s address", s, t.Format)
		}
	case typemap.Enum:
		s, ok := v.(string)
		if !ok {
			return kindError("string", v)
		}
		if !slices.Contains(choices, s) {
			return fmt.Errorf("%q is not one of %s", s, strings.Join(choices, ", "))
		}
	case typemap.Array:
		items, ok := v.([]any)
		if !ok {
			return kindError("array", v)
		}
		if t.Elem == nil {
			return nil
		}
		for i, item := range items {
			if item == nil {
				continue
			}
			if err := checkValue(*t.Elem, choices, item); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	}
	return nil
}

func kindError(want string, v any) error {
	return fmt.Errorf("expected %s, got %T", want, v)
}

func number(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%q is not a number", n)
		}
		return d, nil
	case decimal.Decimal:
		return n, nil
	}
	return decimal.Decimal{}, kindError("number", v)
}

func checkRange(d decimal.Decimal, c typemap.Constraints) error {
	if c.Minimum != "" {
		if lo, err := decimal.NewFromString(c.Minimum); err == nil && d.LessThan(lo) {
			return fmt.Errorf("%s is below minimum %s", d, lo)
		}
	}
	if c.Maximum != "" {
		if hi, err := decimal.NewFromString(c.Maximum); err == nil && d.GreaterThan(hi) {
			return fmt.Errorf("%s is above maximum %s", d, hi)
		}
	}
	return nil
}

// checkPrecision rejects values whose integer part does not fit
// numeric(precision, scale). Extra fractional digits are rounded by the
// database and are accepted.
func checkPrecision(d decimal.Decimal, c typemap.Constraints) error {
	if c.Precision == 0 {
		return nil
	}
	whole := d.Abs().Truncate(0).String()
	digits := len(whole)
	if whole == "0" {
		digits = 0
	}
	if limit := c.Precision - c.Scale; digits > limit {
		return fmt.Errorf("%s exceeds numeric(%d,%d)", d, c.Precision, c.Scale)
	}
	return nil
}

func checkTime(v any, kind string, layouts ...string) error {
	s, ok := v.(string)
	if !ok {
		return kindError(kind+" string", v)
	}
	for _, layout := range layouts {
		if _, err := time.Parse(layout, s); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%q is not a valid %s", s, kind)
}

package rest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/edgeflare/pgsynth/pkg/typemap"
	"github.com/shopspring/decimal"
)

// coerce converts a query string or path value to the Go type pgx should
// encode for a column of type t. Values of types the database parses best
// from text are passed through as strings; for json columns that text is
// already a JSON document.
func coerce(t typemap.Mapping, v any) (any, error) {
	return convert(t, v, false)
}

// coerceBody is coerce for values decoded from a request body. A json
// column takes the value itself, so a string becomes a JSON string.
func coerceBody(t typemap.Mapping, v any) (any, error) {
	return convert(t, v, true)
}

func convert(t typemap.Mapping, v any, decoded bool) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t.Kind {
	case typemap.Integer:
		switch n := v.(type) {
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("%s is not an integer", n)
			}
			return i, nil
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not an integer", n)
			}
			return i, nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("%v is not an integer", n)
			}
			return int64(n), nil
		}
	case typemap.Float:
		switch n := v.(type) {
		case json.Number:
			return n.Float64()
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number", n)
			}
			return f, nil
		case float64:
			return n, nil
		}
	case typemap.Decimal:
		switch n := v.(type) {
		case json.Number:
			return decimal.NewFromString(n.String())
		case string:
			d, err := decimal.NewFromString(n)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number", n)
			}
			return d, nil
		case float64:
			return decimal.NewFromFloat(n), nil
		}
	case typemap.Boolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("%q is not a boolean", b)
			}
			return parsed, nil
		}
	case typemap.JSON:
		if s, ok := v.(string); ok && !decoded {
			return s, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	case typemap.Array:
		items, ok := v.([]any)
		if !ok {
			break
		}
		elem := typemap.Mapping{Kind: typemap.Opaque}
		if t.Elem != nil {
			elem = *t.Elem
		}
		out := make([]any, len(items))
		for i, item := range items {
			c, err := convert(elem, item, decoded)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	}
	if n, ok := v.(json.Number); ok {
		return n.String(), nil
	}
	return v, nil
}

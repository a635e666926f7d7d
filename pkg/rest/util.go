package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/edgeflare/pgsynth/pkg/route"
)

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// columnValues converts a validated body, keyed by wire name, into column
// values of the types pgx encodes.
func columnValues(m *model.Model, body map[string]any) (map[string]any, error) {
	values := make(map[string]any, len(body))
	for name, v := range body {
		f, ok := m.Field(name)
		if !ok || f.Nested() {
			return nil, &QueryError{Param: name, Message: "unknown field"}
		}
		c, err := coerceBody(f.Type, v)
		if err != nil {
			return nil, &model.ValidationError{Model: m.Name, Problems: []model.FieldError{{Field: name, Message: err.Error()}}}
		}
		values[f.Column] = c
	}
	return values, nil
}

func scalarFields(m *model.Model) []model.Field {
	var out []model.Field
	for _, f := range m.Fields {
		if !f.Nested() {
			out = append(out, f)
		}
	}
	return out
}

// location fills the item route template of get with the key values of a
// returned row.
func location(get route.Route, row []byte) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(row))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return "", false
	}
	path := get.Path
	for _, p := range get.PathParams {
		v, ok := obj[p.Name]
		if !ok || v == nil {
			return "", false
		}
		path = strings.Replace(path, "{"+p.Name+"}", url.PathEscape(fmt.Sprint(v)), 1)
	}
	return path, true
}

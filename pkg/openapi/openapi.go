// Package openapi renders generation artifacts as an OpenAPI 3.1 document.
package openapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/edgeflare/pgsynth/pkg/httputil"
	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/edgeflare/pgsynth/pkg/route"
	"github.com/edgeflare/pgsynth/pkg/synth"
	"github.com/edgeflare/pgsynth/pkg/typemap"
	"github.com/go-openapi/inflect"
)

// Info contains API metadata for the document.
type Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// Document builds the OpenAPI document of a. serverURL may be empty.
func Document(a *synth.Artifacts, info Info, serverURL string) map[string]any {
	schemas := map[string]any{errorSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
			"code":    map[string]any{"type": "integer"},
			"details": map[string]any{},
		},
		"required": []string{"message", "code"},
	}}
	for _, m := range a.Models.All() {
		schemas[m.Name] = modelSchema(m)
	}
	paths := map[string]map[string]any{}
	for _, r := range a.Routes {
		if paths[r.Path] == nil {
			paths[r.Path] = map[string]any{}
		}
		paths[r.Path][strings.ToLower(r.Method)] = operation(a, r)
	}

	doc := map[string]any{
		"openapi":    "3.1.0",
		"info":       info,
		"paths":      paths,
		"components": map[string]any{"schemas": schemas},
	}
	if serverURL != "" {
		doc["servers"] = []map[string]any{{"url": strings.TrimSuffix(serverURL, "/")}}
	}
	return doc
}

// Marshal encodes the document of a. The output is byte-stable for equal
// artifacts.
func Marshal(a *synth.Artifacts, info Info, serverURL string) ([]byte, error) {
	return json.MarshalIndent(Document(a, info, serverURL), "", "  ")
}

func ref(name string) map[string]any {
	return map[string]any{"$ref": "#/components/schemas/" + name}
}

func jsonBody(schema any) map[string]any {
	return map[string]any{"application/json": map[string]any{"schema": schema}}
}

func response(description string, schema any) map[string]any {
	r := map[string]any{"description": description}
	if schema != nil {
		r["content"] = jsonBody(schema)
	}
	return r
}

// errorSchema names the error body. Model names are CamelCase words and
// never contain an underscore.
const errorSchema = "Error_Response"

var errorResponses = map[string]string{
	"400": "Malformed request",
	"403": "Forbidden",
	"404": "Not found",
	"409": "Conflict",
	"422": "Payload failed validation",
}

func operationID(r route.Route) string {
	name := r.Output
	if r.Operation == route.Call || name == "" {
		name = strings.TrimSuffix(r.Input, "Input")
	}
	return string(r.Operation) + strings.TrimSuffix(name, "Read")
}

func operation(a *synth.Artifacts, r route.Route) map[string]any {
	op := map[string]any{
		"operationId": operationID(r),
		"summary":     fmt.Sprintf("%s %s", inflect.Capitalize(string(r.Operation)), r.Entity),
		"tags":        []string{strings.SplitN(r.Entity, ".", 2)[0]},
	}
	var params []map[string]any
	if key, ok := a.Models.For(r.Entity, model.Key); ok {
		for _, p := range r.PathParams {
			f, _ := key.Field(p.Name)
			params = append(params, map[string]any{
				"name":     p.Name,
				"in":       "path",
				"required": true,
				"schema":   typeSchema(f.Type, f.Choices),
			})
		}
	}
	if r.Operation == route.List {
		params = append(params, listParameters(r)...)
	}
	if len(params) > 0 {
		op["parameters"] = params
	}
	if r.Input != "" {
		op["requestBody"] = map[string]any{"required": r.Operation != route.Call, "content": jsonBody(ref(r.Input))}
	}

	responses := map[string]any{}
	switch r.Operation {
	case route.List:
		responses["200"] = response("Page of rows", map[string]any{"type": "array", "items": ref(r.Output)})
	case route.Get:
		responses["200"] = response("Row", ref(r.Output))
	case route.Create:
		responses["201"] = response("Created; the row is returned with Prefer: return=representation", ref(r.Output))
	case route.Update, route.Delete:
		responses["200"] = response("Affected row, with Prefer: return=representation", ref(r.Output))
		responses["204"] = response("Done", nil)
	case route.Call:
		switch r.Cardinality {
		case route.Many:
			responses["200"] = response("Result rows", map[string]any{"type": "array", "items": ref(r.Output)})
		case route.One:
			responses["200"] = response("Result", ref(r.Output))
		default:
			responses["204"] = response("Done", nil)
		}
	}
	for code, description := range errorResponses {
		responses[code] = response(description, ref(errorSchema))
	}
	op["responses"] = responses
	return op
}

func listParameters(r route.Route) []map[string]any {
	query := func(name, description string, schema map[string]any) map[string]any {
		return map[string]any{"name": name, "in": "query", "description": description, "schema": schema}
	}
	str := map[string]any{"type": "string"}
	params := []map[string]any{
		query("select", "Comma separated fields to return", str),
		query("embed", "Comma separated relationships to include", str),
		query("order", "Ordering terms, as in field.desc.nullslast", str),
		query("or", "Filters joined with OR, as in (a.eq.1,b.lt.2)", str),
		query("and", "Filters joined with AND", str),
	}
	if p := r.Pagination; p != nil {
		params = append(params,
			query("limit", "Page size", map[string]any{"type": "integer", "minimum": 0, "maximum": p.MaxLimit, "default": p.DefaultLimit}),
			query("offset", "Rows to skip", map[string]any{"type": "integer", "minimum": 0}),
		)
	}
	for _, q := range r.QueryParams {
		params = append(params, query(q.Name, "Filter as operator.value; operators: "+strings.Join(q.Operators, ", "), str))
	}
	return params
}

func modelSchema(m *model.Model) map[string]any {
	if m.Purpose == model.Enum {
		return map[string]any{"type": "string", "enum": m.Choices}
	}
	return objectSchema(m.Fields)
}

func objectSchema(fields []model.Field) map[string]any {
	props := map[string]any{}
	var required []string
	for _, f := range fields {
		props[f.Name] = fieldSchema(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	s := map[string]any{"type": "object", "properties": props, "additionalProperties": false}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func fieldSchema(f model.Field) map[string]any {
	var s map[string]any
	switch {
	case f.Nested() && f.Many:
		s = map[string]any{"type": "array", "items": objectSchema(f.Fields)}
	case f.Nested():
		s = objectSchema(f.Fields)
	default:
		s = typeSchema(f.Type, f.Choices)
	}
	if f.Nullable {
		s = nullable(s)
	}
	if f.ReadOnly {
		s["readOnly"] = true
	}
	if f.Comment != "" {
		s["description"] = f.Comment
	}
	return s
}

func nullable(s map[string]any) map[string]any {
	switch t := s["type"].(type) {
	case string:
		s["type"] = []string{t, "null"}
	case []string:
		s["type"] = append(t, "null")
	case nil:
		return map[string]any{"oneOf": []any{s, map[string]any{"type": "null"}}}
	}
	return s
}

// typeSchema maps a canonical type to a JSON schema.
func typeSchema(t typemap.Mapping, choices []string) map[string]any {
	s := map[string]any{}
	c := t.Constraints
	switch t.Kind {
	case typemap.Integer:
		s["type"] = "integer"
		if c.Minimum != "" {
			s["minimum"] = json.Number(c.Minimum)
		}
		if c.Maximum != "" {
			s["maximum"] = json.Number(c.Maximum)
		}
	case typemap.Float:
		s["type"] = "number"
	case typemap.Decimal:
		// Decimals are accepted as numbers or strings to keep precision.
		s["type"] = []string{"number", "string"}
	case typemap.Boolean:
		s["type"] = "boolean"
	case typemap.JSON:
		// any JSON value
	case typemap.Array:
		s["type"] = "array"
		if t.Elem != nil {
			s["items"] = typeSchema(*t.Elem, choices)
		}
	case typemap.Enum:
		s["type"] = "string"
		s["enum"] = choices
	default:
		s["type"] = "string"
		if c.MaxLength > 0 {
			s["maxLength"] = c.MaxLength
		}
	}
	if t.Format != "" && t.Kind != typemap.Array {
		s["format"] = t.Format
	}
	return s
}

// Registry is the part of *registry.Registry the handler reads.
type Registry interface {
	Current() *synth.Artifacts
}

// Handler serves the document of the current artifacts, re-rendering it
// only when their fingerprint changes.
type Handler struct {
	reg       Registry
	info      Info
	serverURL string

	mu          sync.Mutex
	fingerprint string
	doc         []byte
}

// NewHandler returns a Handler for reg.
func NewHandler(reg Registry, info Info, serverURL string) *Handler {
	return &Handler{reg: reg, info: info, serverURL: serverURL}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a := h.reg.Current()
	if a == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "schema not loaded")
		return
	}
	doc, err := h.document(a)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.Blob(w, http.StatusOK, doc, httputil.ContentTypeJSON)
}

func (h *Handler) document(a *synth.Artifacts) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.doc != nil && h.fingerprint == a.Fingerprint {
		return h.doc, nil
	}
	doc, err := Marshal(a, h.info, h.serverURL)
	if err != nil {
		return nil, err
	}
	h.fingerprint, h.doc = a.Fingerprint, doc
	return doc, nil
}

package rest

import (
	"encoding/json"
	"testing"

	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/edgeflare/pgsynth/pkg/typemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceJSON(t *testing.T) {
	jsonb := typemap.Mapping{Kind: typemap.JSON, Format: "json"}

	tests := []struct {
		name string
		in   any
		body bool
		want any
	}{
		{name: "query text is a document", in: `{"a":1}`, want: `{"a":1}`},
		{name: "body string", in: "hello", body: true, want: `"hello"`},
		{name: "body object", in: map[string]any{"a": json.Number("1")}, body: true, want: `{"a":1}`},
		{name: "body number", in: json.Number("2.5"), body: true, want: `2.5`},
		{name: "body null", in: nil, body: true, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got any
			var err error
			if tt.body {
				got, err = coerceBody(jsonb, tt.in)
			} else {
				got, err = coerce(jsonb, tt.in)
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	arr := typemap.Mapping{Kind: typemap.Array, Elem: &jsonb}
	got, err := coerceBody(arr, []any{"x", map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, []any{`"x"`, `{}`}, got)
}

func TestColumnValuesEncodesJSONStrings(t *testing.T) {
	m := &model.Model{Name: "EventsCreate", Fields: []model.Field{
		{Name: "payload", Column: "payload", Type: typemap.Mapping{Kind: typemap.JSON, Format: "json"}},
		{Name: "id", Column: "id", Type: typemap.Mapping{Kind: typemap.Integer, Format: "int64"}},
	}}
	values, err := columnValues(m, map[string]any{"payload": "hello", "id": json.Number("3")})
	require.NoError(t, err)
	assert.Equal(t, `"hello"`, values["payload"])
	assert.Equal(t, int64(3), values["id"])
}

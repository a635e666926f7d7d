package typemap

import (
	"testing"

	"github.com/edgeflare/pgsynth/pkg/diag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	m := New()

	tests := []struct {
		name string
		in   Input
		want Mapping
	}{
		{
			name: "int4 udt",
			in:   Input{Native: "int4"},
			want: Mapping{Kind: Integer, Format: "int32", Constraints: Constraints{Minimum: "-2147483648", Maximum: "2147483647"}},
		},
		{
			name: "bigint alias nullable",
			in:   Input{Native: "bigint", Nullable: true},
			want: Mapping{Kind: Integer, Format: "int64", Nullable: true, Constraints: Constraints{Minimum: "-9223372036854775808", Maximum: "9223372036854775807"}},
		},
		{
			name: "numeric keeps precision",
			in:   Input{Native: "numeric", Precision: 10, Scale: 2},
			want: Mapping{Kind: Decimal, Format: "decimal", Constraints: Constraints{Precision: 10, Scale: 2}},
		},
		{
			name: "numeric modifiers from tag",
			in:   Input{Native: "numeric(12,4)"},
			want: Mapping{Kind: Decimal, Format: "decimal", Constraints: Constraints{Precision: 12, Scale: 4}},
		},
		{
			name: "varchar length",
			in:   Input{Native: "character varying(255)"},
			want: Mapping{Kind: String, Constraints: Constraints{MaxLength: 255}},
		},
		{
			name: "timestamptz is timezone aware",
			in:   Input{Native: "timestamp with time zone"},
			want: Mapping{Kind: Timestamp, Format: "date-time", Constraints: Constraints{TimezoneAware: true}},
		},
		{
			name: "timestamp is not",
			in:   Input{Native: "timestamp"},
			want: Mapping{Kind: Timestamp, Format: "date-time"},
		},
		{
			name: "enum reference wins",
			in:   Input{Native: "mood", EnumRef: "public.mood"},
			want: Mapping{Kind: Enum, Format: "enum", Constraints: Constraints{EnumRef: "public.mood"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Map(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapDecimalNeverFloat(t *testing.T) {
	for _, native := range []string{"numeric", "decimal", "numeric(38,10)", "money"} {
		got, err := Default().Map(Input{Native: native})
		require.NoError(t, err)
		assert.Equal(t, Decimal, got.Kind, native)
	}
}

func TestMapArrays(t *testing.T) {
	m := New()

	got, err := m.Map(Input{Native: "_int4"})
	require.NoError(t, err)
	assert.Equal(t, Array, got.Kind)
	require.NotNil(t, got.Elem)
	assert.Equal(t, Integer, got.Elem.Kind)

	got, err = m.Map(Input{Native: "text[]", Nullable: true})
	require.NoError(t, err)
	assert.Equal(t, Array, got.Kind)
	assert.True(t, got.Nullable)
	assert.Equal(t, String, got.Elem.Kind)

	got, err = m.Map(Input{Native: "mood", EnumRef: "public.mood", Array: true})
	require.NoError(t, err)
	assert.Equal(t, Array, got.Kind)
	assert.Equal(t, "public.mood", got.Elem.Constraints.EnumRef)
}

func TestMapUnknownFallsBack(t *testing.T) {
	got, err := New().Map(Input{Native: "geometry"})
	require.NoError(t, err)
	assert.Equal(t, Opaque, got.Kind)
	assert.Equal(t, "string", got.Format)
	assert.True(t, got.Fallback)
}

func TestMapStrict(t *testing.T) {
	_, err := New(WithStrict(true)).Map(Input{Object: "public.places.geom", Native: "geometry"})
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrTypeMapping)

	var tmErr *diag.TypeMappingError
	require.ErrorAs(t, err, &tmErr)
	assert.Equal(t, "public.places.geom", tmErr.Object)
}

func TestRegister(t *testing.T) {
	m := New(WithStrict(true))
	assert.False(t, m.Known("geometry"))
	m.Register("geometry", Mapping{Kind: JSON, Format: "geojson"})
	assert.True(t, m.Known("geometry"))

	got, err := m.Map(Input{Native: "geometry", Nullable: true})
	require.NoError(t, err)
	assert.Equal(t, Mapping{Kind: JSON, Format: "geojson", Nullable: true}, got)
}

package export

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/dave/jennifer/jen"
	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/edgeflare/pgsynth/pkg/synth"
	"github.com/edgeflare/pgsynth/pkg/typemap"
	"github.com/go-openapi/inflect"
)

const (
	decimalPkg = "github.com/shopspring/decimal"
	uuidPkg    = "github.com/google/uuid"
)

// Go renders one Go type per model. Enums become string types with a
// constant per label; other models become structs with json tags.
func Go(a *synth.Artifacts, pkg string) ([]byte, error) {
	if pkg == "" {
		pkg = "models"
	}
	g := &goWriter{a: a, f: jen.NewFile(pkg)}
	g.f.HeaderComment("Code generated by pgsynth. DO NOT EDIT.")
	g.f.ImportName(decimalPkg, "decimal")
	g.f.ImportName(uuidPkg, "uuid")

	for _, m := range a.Models.All() {
		if m.Purpose == model.Enum {
			g.enum(m)
		} else {
			g.object(m)
		}
	}

	var buf bytes.Buffer
	if err := g.f.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type goWriter struct {
	a *synth.Artifacts
	f *jen.File
}

func (g *goWriter) enum(m *model.Model) {
	g.f.Commentf("%s enumerates the labels of %s.", m.Name, m.Entity)
	g.f.Type().Id(m.Name).String()

	seen := map[string]bool{}
	defs := make([]jen.Code, 0, len(m.Choices))
	for _, label := range m.Choices {
		name := unique(seen, m.Name+identifier(label))
		defs = append(defs, jen.Id(name).Id(m.Name).Op("=").Lit(label))
	}
	if len(defs) > 0 {
		g.f.Const().Defs(defs...)
	}
}

func (g *goWriter) object(m *model.Model) {
	g.f.Commentf("%s is the %s model of %s.", m.Name, m.Purpose, m.Entity)
	g.f.Type().Id(m.Name).Struct(g.fields(m.Fields)...)
}

func (g *goWriter) fields(fields []model.Field) []jen.Code {
	seen := map[string]bool{}
	out := make([]jen.Code, 0, len(fields))
	for _, f := range fields {
		tag := f.Name
		if !f.Required {
			tag += ",omitempty"
		}
		st := jen.Id(unique(seen, identifier(f.Name)))
		switch {
		case f.Nested() && f.Many:
			st.Index().Add(g.nested(f))
		case f.Nested():
			st.Op("*").Add(g.nested(f))
		default:
			if f.Nullable && f.Type.Kind != typemap.JSON && f.Type.Kind != typemap.Array && f.Type.Kind != typemap.Binary {
				st.Op("*")
			}
			st.Add(g.goType(f.Type))
		}
		st.Tag(map[string]string{"json": tag})
		if f.Comment != "" {
			st.Comment(f.Comment)
		}
		out = append(out, st)
	}
	return out
}

// nested names the target model, or spells the struct out inline when the
// target has no model of its own.
func (g *goWriter) nested(f model.Field) *jen.Statement {
	if f.Target != "" {
		return jen.Id(f.Target)
	}
	return jen.Struct(g.fields(f.Fields)...)
}

// goType maps a canonical type to a Go type.
func (g *goWriter) goType(t typemap.Mapping) *jen.Statement {
	switch t.Kind {
	case typemap.Integer:
		switch t.Format {
		case "int16":
			return jen.Int16()
		case "int32":
			return jen.Int32()
		}
		return jen.Int64()
	case typemap.Float:
		if t.Format == "float" {
			return jen.Float32()
		}
		return jen.Float64()
	case typemap.Decimal:
		return jen.Qual(decimalPkg, "Decimal")
	case typemap.Boolean:
		return jen.Bool()
	case typemap.Timestamp:
		return jen.Qual("time", "Time")
	case typemap.UUID:
		return jen.Qual(uuidPkg, "UUID")
	case typemap.JSON:
		return jen.Qual("encoding/json", "RawMessage")
	case typemap.Binary:
		return jen.Index().Byte()
	case typemap.Array:
		if t.Elem == nil {
			return jen.Index().Any()
		}
		return jen.Index().Add(g.goType(*t.Elem))
	case typemap.Enum:
		if m, ok := g.a.Models.For(t.Constraints.EnumRef, model.Enum); ok {
			return jen.Id(m.Name)
		}
		return jen.String()
	case typemap.Opaque:
		return jen.Any()
	}
	// date, time, interval, network and text types travel as strings
	return jen.String()
}

// identifier turns a wire name into an exported Go identifier.
func identifier(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	id := inflect.Camelize(b.String())
	if id == "" {
		return "X"
	}
	if first := rune(id[0]); !unicode.IsLetter(first) {
		id = "X" + id
	}
	return strings.ToUpper(id[:1]) + id[1:]
}

func unique(seen map[string]bool, name string) string {
	candidate := name
	for i := 2; seen[candidate]; i++ {
		candidate = fmt.Sprintf("%s%d", name, i)
	}
	seen[candidate] = true
	return candidate
}

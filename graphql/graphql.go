// Package graphql renders a validated protocol as a GraphQL schema document,
// so that tools outside the C++ world can consume the message model.
package graphql

import (
	"fmt"
	"strings"

	"github.com/boynton/commsdsl"
	"github.com/boynton/commsdsl/gen"

	gql_ast "github.com/graphql-go/graphql/language/ast"
	gql_parser "github.com/graphql-go/graphql/language/parser"
	gql_source "github.com/graphql-go/graphql/language/source"
)

const FileName = "schema.graphql"

// Backend collects one definition per referenced model node and writes them
// as a single document once every node prepared.
type Backend struct {
	gen      *gen.Generator
	defs     []string
	scalars  map[string]bool
	names    map[string]commsdsl.Elem
	doc      string
	Document *gql_ast.Document
}

func NewBackend() *Backend {
	return &Backend{scalars: make(map[string]bool), names: make(map[string]commsdsl.Elem)}
}

// Generate runs the backend over p, writing schema.graphql to outDir.
func Generate(p *commsdsl.Protocol, config *commsdsl.Data, outDir string) (*Backend, error) {
	b := NewBackend()
	g := gen.NewGenerator(p, b, config, outDir)
	return b, g.Generate()
}

// Source returns the rendered document, available after preparation.
func (b *Backend) Source() string {
	return b.doc
}

func (b *Backend) CreateSchema(g *gen.Generator, s *commsdsl.Schema) gen.Elem {
	b.gen = g
	return &schemaElem{b: b, s: s}
}

func (b *Backend) CreateNamespace(g *gen.Generator, ns *commsdsl.Namespace) gen.Elem {
	return nil
}

func (b *Backend) CreateInterface(g *gen.Generator, i *commsdsl.Interface) gen.Elem {
	if !i.Referenced() {
		return nil
	}
	return &containerElem{b: b, model: i, desc: i.Description, fields: i.Fields}
}

func (b *Backend) CreateMessage(g *gen.Generator, m *commsdsl.Message) gen.Elem {
	if !m.Referenced() {
		return nil
	}
	desc := strings.TrimSpace(fmt.Sprintf("id %d. %s", m.ID, m.Description))
	return &containerElem{b: b, model: m, desc: desc, fields: m.Fields}
}

func (b *Backend) CreateFrame(g *gen.Generator, f *commsdsl.Frame) gen.Elem {
	if !f.Referenced() {
		return nil
	}
	return &frameElem{b: b, f: f}
}

func (b *Backend) CreateLayer(g *gen.Generator, l *commsdsl.Layer) gen.Elem {
	return nil
}

func (b *Backend) CreateField(g *gen.Generator, f commsdsl.Field) gen.Elem {
	if !f.Referenced() {
		return nil
	}
	switch f.Kind() {
	case commsdsl.KindEnum, commsdsl.KindSet, commsdsl.KindBitfield, commsdsl.KindBundle, commsdsl.KindVariant:
		return &fieldElem{b: b, f: f}
	}
	return nil
}

// TypeName is the GraphQL name of a model node: the camel cased components
// of its path, prefixed with the schema name for schemas other than the
// protocol's own.
func (b *Backend) TypeName(e commsdsl.Elem) string {
	var sb strings.Builder
	if s := commsdsl.SchemaOf(e); s != nil && s != b.gen.Protocol.CurrentSchema() {
		sb.WriteString(gen.ClassName(s.Name))
	}
	for _, part := range strings.Split(commsdsl.ExternalRef(e), ".") {
		sb.WriteString(gen.ClassName(part))
	}
	return sb.String()
}

func (b *Backend) add(e commsdsl.Elem, def string) bool {
	name := b.TypeName(e)
	if prev, ok := b.names[name]; ok && prev != e {
		return b.gen.Errorf(e, "GraphQL type name %s is also used by %s", name, commsdsl.ExternalRef(prev))
	}
	b.names[name] = e
	b.defs = append(b.defs, def)
	return true
}

func (b *Backend) customScalar(name string, defaultMapping string) string {
	tname := b.gen.Config.GetString("custom-scalars", name)
	if tname != "" {
		b.scalars[tname] = true
		return tname
	}
	return defaultMapping
}

// typeRef returns the GraphQL type of a field, without the non-null marker.
func (b *Backend) typeRef(f commsdsl.Field) string {
	switch ff := f.(type) {
	case *commsdsl.IntField:
		if ff.Bits() > 32 || (ff.Bits() == 32 && ff.Type.IsUnsigned()) {
			return b.customScalar("Int64", "Float")
		}
		if !ff.Scaling.IsIdentity() {
			return "Float"
		}
		return "Int"
	case *commsdsl.FloatField:
		return "Float"
	case *commsdsl.StringField:
		return "String"
	case *commsdsl.DataField:
		return b.customScalar("Bytes", "String")
	case *commsdsl.SetField:
		if len(ff.Bits) == 0 {
			return "Int"
		}
		return "[" + b.TypeName(ff) + "!]"
	case *commsdsl.ListField:
		return "[" + b.typeRef(ff.Element) + "!]"
	case *commsdsl.RefField:
		return b.typeRef(ff.Target)
	case *commsdsl.OptionalField:
		return b.typeRef(ff.Field)
	}
	return b.TypeName(f)
}

func (b *Backend) emitComment(sb *strings.Builder, indent string, text string) {
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			fmt.Fprintf(sb, "%s# %s\n", indent, line)
		}
	}
}

func (b *Backend) objectDef(e commsdsl.Elem, desc string, fields []commsdsl.Field) string {
	var sb strings.Builder
	b.emitComment(&sb, "", desc)
	fmt.Fprintf(&sb, "type %s {\n", b.TypeName(e))
	if len(fields) == 0 {
		sb.WriteString("  _empty: Boolean\n")
	}
	for _, f := range fields {
		c := f.Common()
		b.emitComment(&sb, "  ", c.Description)
		required := "!"
		if f.Kind() == commsdsl.KindOptional || c.SinceVersion > 0 {
			required = ""
		}
		fmt.Fprintf(&sb, "  %s: %s%s\n", gen.AccessName(c.Name), b.typeRef(f), required)
	}
	sb.WriteString("}\n")
	return sb.String()
}

type schemaElem struct {
	b *Backend
	s *commsdsl.Schema
}

// Prepare runs after every other node, so the protocol schema assembles and
// checks the document.
func (e *schemaElem) Prepare() bool {
	if e.s != e.b.gen.Protocol.CurrentSchema() {
		return true
	}
	var sb strings.Builder
	e.b.emitComment(&sb, "", fmt.Sprintf("Schema %s, version %d", e.s.Name, e.s.Version))
	e.b.emitComment(&sb, "", e.s.Description)
	sb.WriteString("\n")
	for _, def := range e.b.defs {
		sb.WriteString(def)
		sb.WriteString("\n")
	}
	for _, k := range gen.SortedKeys(e.b.scalars) {
		fmt.Fprintf(&sb, "scalar %s\n", k)
	}
	e.b.doc = sb.String()
	doc, err := gql_parser.Parse(gql_parser.ParseParams{
		Source: &gql_source.Source{
			Body: []byte(e.b.doc),
			Name: "GraphQL",
		},
		Options: gql_parser.ParseOptions{
			NoLocation: true,
		},
	})
	if err != nil {
		return e.b.gen.Errorf(e.s, "generated GraphQL does not parse: %v", err)
	}
	e.b.Document = doc
	return true
}

func (e *schemaElem) Write() bool {
	if e.s != e.b.gen.Protocol.CurrentSchema() {
		return true
	}
	w := gen.NewWriter(e.b.gen)
	w.WriteFile(FileName, e.b.doc)
	if w.Err != nil {
		return e.b.gen.Errorf(e.s, "%v", w.Err)
	}
	return true
}

type containerElem struct {
	b      *Backend
	model  commsdsl.Elem
	desc   string
	fields []commsdsl.Field
}

func (e *containerElem) Prepare() bool {
	return e.b.add(e.model, e.b.objectDef(e.model, e.desc, e.fields))
}

func (e *containerElem) Write() bool { return true }

type frameElem struct {
	b *Backend
	f *commsdsl.Frame
}

// Prepare renders a frame as a type with one member per layer carrying a
// field. The payload layer is the message union of the frame's namespace.
func (e *frameElem) Prepare() bool {
	var sb strings.Builder
	e.b.emitComment(&sb, "", e.f.Description)
	fmt.Fprintf(&sb, "type %s {\n", e.b.TypeName(e.f))
	for _, l := range e.f.Layers {
		e.b.emitComment(&sb, "  ", fmt.Sprintf("%s layer. %s", l.Kind, l.Description))
		if l.Field == nil {
			sb.WriteString(fmt.Sprintf("  %s: String\n", gen.AccessName(l.Name)))
			continue
		}
		fmt.Fprintf(&sb, "  %s: %s!\n", gen.AccessName(l.Name), e.b.typeRef(l.Field))
	}
	sb.WriteString("}\n")
	return e.b.add(e.f, sb.String())
}

func (e *frameElem) Write() bool { return true }

type fieldElem struct {
	b *Backend
	f commsdsl.Field
}

func (e *fieldElem) Prepare() bool {
	b := e.b
	var sb strings.Builder
	switch f := e.f.(type) {
	case *commsdsl.EnumField:
		b.emitComment(&sb, "", f.Description)
		fmt.Fprintf(&sb, "enum %s {\n", b.TypeName(f))
		for _, v := range f.Values {
			b.emitComment(&sb, "  ", v.Description)
			fmt.Fprintf(&sb, "  %s\n", gen.ConstName(v.Name))
		}
		sb.WriteString("}\n")
	case *commsdsl.SetField:
		if len(f.Bits) == 0 {
			return true
		}
		b.emitComment(&sb, "", f.Description)
		fmt.Fprintf(&sb, "enum %s {\n", b.TypeName(f))
		for _, bit := range f.Bits {
			if !bit.Reserved {
				fmt.Fprintf(&sb, "  %s\n", gen.ConstName(bit.Name))
			}
		}
		sb.WriteString("}\n")
	case *commsdsl.BitfieldField:
		sb.WriteString(b.objectDef(f, f.Description, f.Members))
	case *commsdsl.BundleField:
		sb.WriteString(b.objectDef(f, f.Description, f.Members))
	case *commsdsl.VariantField:
		return e.prepareVariant(f)
	}
	return b.add(e.f, sb.String())
}

// prepareVariant renders a union. Union members must be object types, so
// members that are not bundles get a wrapper type holding their value.
func (e *fieldElem) prepareVariant(v *commsdsl.VariantField) bool {
	b := e.b
	if len(v.Members) == 0 {
		return b.add(v, b.objectDef(v, v.Description, nil))
	}
	var sb strings.Builder
	var members []string
	for _, m := range v.Members {
		if _, ok := commsdsl.Deref(m).(*commsdsl.BundleField); ok {
			members = append(members, b.typeRef(m))
			continue
		}
		wrapper := b.TypeName(m) + "Value"
		fmt.Fprintf(&sb, "type %s {\n  value: %s!\n}\n\n", wrapper, b.typeRef(m))
		members = append(members, wrapper)
	}
	b.emitComment(&sb, "", v.Description)
	fmt.Fprintf(&sb, "union %s = %s\n", b.TypeName(v), strings.Join(members, " | "))
	return b.add(v, sb.String())
}

func (e *fieldElem) Write() bool { return true }

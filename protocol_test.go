package commsdsl

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func schemaDoc(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<schema name="demo" endian="big" version="2">
` + body + `
</schema>`
}

// parseSchemas parses every document in order and validates the result.
func parseSchemas(test *testing.T, docs ...string) (*Protocol, error) {
	test.Helper()
	p := NewProtocol(NewSilentLogger())
	for i, doc := range docs {
		if err := p.ParseData(fmt.Sprintf("doc%d.xml", i), []byte(doc)); err != nil {
			return p, err
		}
	}
	return p, p.Validate()
}

func requireErrorKind(test *testing.T, err error, kind ErrorKind) {
	test.Helper()
	require.Error(test, err)
	var errs *Errors
	require.True(test, errors.As(err, &errs), "expected *Errors, got %T", err)
	require.True(test, errs.Has(kind), "expected a %s error in: %v", kind, err)
}

func TestProtocolBasics(test *testing.T) {
	p, err := parseSchemas(test, schemaDoc(`
<platforms><platform name="linux"/></platforms>
<fields>
  <enum name="MsgId" type="uint8">
    <validValue name="Ping" val="1"/>
    <validValue name="Status" val="2"/>
  </enum>
  <int name="Counter" type="uint16" defaultValue="1"/>
</fields>
<message name="Status" id="MsgId.Status">
  <ref name="count" field="Counter"/>
</message>
<message name="Ping" id="1"/>`))
	require.NoError(test, err)
	require.Equal(test, "demo", p.CurrentSchema().Name)
	require.Equal(test, []string{"linux"}, p.Platforms())

	var names []string
	for _, m := range p.AllMessages() {
		names = append(names, m.Name)
		require.True(test, m.Referenced())
	}
	require.Empty(test, cmp.Diff([]string{"Ping", "Status"}, names))

	status := p.FindMessage("Status")
	require.NotNil(test, status)
	require.EqualValues(test, 2, status.ID)
	ref, ok := status.Fields[0].(*RefField)
	require.True(test, ok)
	require.Same(test, p.FindField("Counter"), ref.Target)
	require.True(test, ref.Target.Common().Referenced())
	require.False(test, p.FindField("MsgId").Common().Referenced())

	iface := p.FindInterface("Message")
	require.NotNil(test, iface)
	require.True(test, iface.Synthesized)
}

func TestMessageIdForwardReference(test *testing.T) {
	_, err := parseSchemas(test, schemaDoc(`
<message name="Late" id="Ids.Late"/>
<fields>
  <enum name="Ids" type="uint8"><validValue name="Late" val="7"/></enum>
</fields>`))
	require.NoError(test, err)

	_, err = parseSchemas(test, schemaDoc(`<message name="Lost" id="Ids.Lost"/>`))
	requireErrorKind(test, err, ResolutionError)
}

func TestDuplicateMessageIds(test *testing.T) {
	_, err := parseSchemas(test, schemaDoc(`
<message name="A" id="1"/>
<message name="B" id="1"/>`))
	requireErrorKind(test, err, SemanticValidationError)

	_, err = parseSchemas(test, `<schema name="demo" nonUniqueMsgIdAllowed="true">
<message name="A" id="1"/>
<message name="B" id="1"/>
</schema>`)
	require.NoError(test, err)
}

func TestMultiDocumentMerge(test *testing.T) {
	base := schemaDoc(`
<fields><int name="Len" type="uint8" reusable="true"/></fields>
<message name="Cfg" id="3" reusable="true">
  <int name="a" type="uint8"/>
</message>`)

	p, err := parseSchemas(test, base, schemaDoc(`
<message name="Cfg" extend="true">
  <int name="b" type="uint16"/>
</message>`))
	require.NoError(test, err)
	require.Len(test, p.FindMessage("Cfg").Fields, 2)

	p, err = parseSchemas(test, base, schemaDoc(`
<fields><int name="Len" type="uint32" replace="true"/></fields>
<message name="Cfg" id="4" replace="true"/>`))
	require.NoError(test, err)
	require.EqualValues(test, 4, p.FindMessage("Cfg").ID)
	require.Equal(test, IntTypeUint32, p.FindField("Len").(*IntField).Type)

	_, err = parseSchemas(test, base, schemaDoc(`<message name="Cfg" id="5"/>`))
	requireErrorKind(test, err, SemanticValidationError)

	_, err = parseSchemas(test, base, schemaDoc(`<message name="Other" extend="true"/>`))
	requireErrorKind(test, err, SemanticValidationError)

	_, err = parseSchemas(test, schemaDoc(`
<message name="Fixed" id="1"/>
<message name="Fixed" id="2" replace="true"/>`))
	requireErrorKind(test, err, SemanticValidationError)
}

func TestSchemaRedefinitionConflicts(test *testing.T) {
	_, err := parseSchemas(test, schemaDoc(``), `<schema name="demo" endian="little"/>`)
	requireErrorKind(test, err, SemanticValidationError)
}

func TestStrictMode(test *testing.T) {
	doc := schemaDoc(`<int name="X" type="uint8" colour="red"/>`)

	p := NewProtocol(NewSilentLogger())
	require.NoError(test, p.ParseData("lenient.xml", []byte(doc)))
	require.NoError(test, p.Validate())
	require.Equal(test, 1, p.Logger().WarningCount())

	p = NewProtocol(NewSilentLogger())
	p.Strict = true
	requireErrorKind(test, p.ParseData("strict.xml", []byte(doc)), StructuralParseError)
}

func TestExtraPrefixes(test *testing.T) {
	p := NewProtocol(NewSilentLogger())
	p.AddExpectedExtraPrefix("x-")
	p.Strict = true
	require.NoError(test, p.ParseData("extra.xml", []byte(schemaDoc(`
<int name="X" type="uint8" x-colour="red"><x-note>kept</x-note></int>`))))
	require.NoError(test, p.Validate())
	c := p.FindField("X").Common()
	require.Equal(test, map[string]string{"x-colour": "red"}, c.ExtraAttrs)
	require.Len(test, c.ExtraElems, 1)
	require.Equal(test, "x-note", c.ExtraElems[0].Name)
}

func TestMalformedDocument(test *testing.T) {
	p := NewProtocol(NewSilentLogger())
	requireErrorKind(test, p.ParseData("broken.xml", []byte(`<schema name="demo"><fields>`)), StructuralParseError)

	p = NewProtocol(NewSilentLogger())
	requireErrorKind(test, p.ParseData("root.xml", []byte(`<protocol name="demo"/>`)), StructuralParseError)
}

func TestValidateWithoutSchema(test *testing.T) {
	p := NewProtocol(NewSilentLogger())
	require.Error(test, p.Validate())
}

func TestAllMessagesReferencedOff(test *testing.T) {
	p := NewProtocol(NewSilentLogger())
	p.AllMessagesReferenced = false
	require.NoError(test, p.ParseData("doc.xml", []byte(schemaDoc(`
<fields><int name="Shared" type="uint8"/></fields>
<message name="A" id="1"><ref name="s" field="Shared"/></message>`))))
	require.NoError(test, p.Validate())
	m := p.FindMessage("A")
	require.False(test, m.Referenced())
	require.False(test, p.FindField("Shared").Common().Referenced())

	MarkMessageReferenced(m)
	require.True(test, m.Referenced())
	require.True(test, p.FindField("Shared").Common().Referenced())
}

func TestNamespaces(test *testing.T) {
	p, err := parseSchemas(test, schemaDoc(`
<fields><int name="Top" type="uint8"/></fields>
<ns name="inner">
  <fields><int name="Local" type="uint16"/></fields>
  <message name="Msg" id="1">
    <ref name="top" field="Top"/>
    <ref name="local" field="Local"/>
  </message>
</ns>`))
	require.NoError(test, err)
	m := p.FindMessage("inner.Msg")
	require.NotNil(test, m)
	require.Equal(test, "inner.Msg", m.ExternalRef())
	require.Same(test, p.FindField("inner.Local"), m.Fields[1].(*RefField).Target)
	require.Same(test, p.FindField("Top"), m.Fields[0].(*RefField).Target)
}

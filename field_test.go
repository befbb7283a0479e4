package commsdsl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntField(test *testing.T) {
	p, err := parseSchemas(test, schemaDoc(`
<int name="Temp" type="int16" defaultValue="20" validRange="[-40, 125]" scaling="1/10" units="mV">
  <special name="Unknown" val="-100"/>
</int>
<int name="Short" type="uint32" length="3"/>
<int name="Var" type="uintvar" length="4"/>`))
	require.NoError(test, err)

	temp := p.FindField("Temp").(*IntField)
	require.EqualValues(test, 20, temp.DefaultValue)
	require.Equal(test, 2, temp.MinLength())
	require.False(test, temp.Scaling.IsIdentity())
	sp, ok := temp.FindSpecial("Unknown")
	require.True(test, ok)
	require.EqualValues(test, -100, sp.Value)

	short := p.FindField("Short").(*IntField)
	require.Equal(test, 3, short.MaxLength())
	require.Equal(test, 24, short.Bits())

	v := p.FindField("Var").(*IntField)
	require.Equal(test, 1, v.MinLength())
	require.Equal(test, 4, v.MaxLength())
}

func TestIntFieldErrors(test *testing.T) {
	cases := map[string]string{
		"min greater than max":   `<int name="X" type="uint8" minValue="10" maxValue="5"/>`,
		"default out of range":   `<int name="X" type="uint8" defaultValue="300"/>`,
		"range out of type":      `<int name="X" type="int8" validRange="[0, 200]"/>`,
		"length exceeds type":    `<int name="X" type="uint16" length="3"/>`,
		"unknown type":           `<int name="X" type="uint24"/>`,
		"missing type":           `<int name="X"/>`,
		"duplicate special":      `<int name="X" type="uint8"><special name="A" val="1"/><special name="A" val="2"/></int>`,
		"since beyond version":   `<int name="X" type="uint8" sinceVersion="3"/>`,
		"removed not deprecated": `<int name="X" type="uint8" removed="true"/>`,
	}
	for name, field := range cases {
		_, err := parseSchemas(test, schemaDoc(field))
		require.Error(test, err, name)
		requireErrorKind(test, err, SemanticValidationError)
	}
}

func TestEnumAndSet(test *testing.T) {
	p, err := parseSchemas(test, schemaDoc(`
<enum name="Mode" type="uint8" defaultValue="On">
  <validValue name="Off" val="0"/>
  <validValue name="On" val="1"/>
</enum>
<set name="Flags" length="1">
  <bit name="ready" idx="0"/>
  <bit name="error" idx="3"/>
</set>`))
	require.NoError(test, err)
	mode := p.FindField("Mode").(*EnumField)
	require.EqualValues(test, 1, mode.DefaultValue)
	require.Len(test, mode.Values, 2)

	flags := p.FindField("Flags").(*SetField)
	require.Equal(test, 8, flags.BitCount())
	b, ok := flags.FindBit("error")
	require.True(test, ok)
	require.Equal(test, 3, b.Idx)

	_, err = parseSchemas(test, schemaDoc(`
<enum name="Mode" type="uint8">
  <validValue name="Off" val="0"/>
  <validValue name="Zero" val="0"/>
</enum>`))
	requireErrorKind(test, err, SemanticValidationError)

	_, err = parseSchemas(test, schemaDoc(`<set name="Flags" length="1"><bit name="far" idx="8"/></set>`))
	requireErrorKind(test, err, SemanticValidationError)
}

func TestBitfieldLength(test *testing.T) {
	p, err := parseSchemas(test, schemaDoc(`
<bitfield name="Bits">
  <int name="a" type="uint8" bitLength="3"/>
  <enum name="b" type="uint8" bitLength="5">
    <validValue name="V" val="1"/>
  </enum>
</bitfield>`))
	require.NoError(test, err)
	require.Equal(test, 1, p.FindField("Bits").MinLength())

	_, err = parseSchemas(test, schemaDoc(`
<bitfield name="Bits" length="1">
  <int name="a" type="uint8" bitLength="3"/>
  <int name="b" type="uint8" bitLength="4"/>
</bitfield>`))
	requireErrorKind(test, err, SemanticValidationError)

	_, err = parseSchemas(test, schemaDoc(`
<fields><int name="Base" type="uint8"/></fields>
<bitfield name="Bits"><ref name="r" field="Base"/></bitfield>`))
	requireErrorKind(test, err, SemanticValidationError)
}

func TestStringAndDataLengths(test *testing.T) {
	p, err := parseSchemas(test, schemaDoc(`
<string name="Fixed" length="4" defaultValue="abc"/>
<string name="Prefixed">
  <lengthPrefix><int name="Len" type="uint8"/></lengthPrefix>
</string>
<string name="Terminated" zeroTermSuffix="true"/>
<data name="Blob" length="2" defaultValue="abcd"/>`))
	require.NoError(test, err)
	require.Equal(test, 4, p.FindField("Fixed").MaxLength())
	prefixed := p.FindField("Prefixed").(*StringField)
	require.Equal(test, "Len", prefixed.LengthPrefix.Common().Name)
	require.Equal(test, 1, prefixed.MinLength())
	require.Equal(test, MaxLengthUnbounded, prefixed.MaxLength())
	require.Equal(test, 1, p.FindField("Terminated").MinLength())
	require.Equal(test, []byte{0xab, 0xcd}, p.FindField("Blob").(*DataField).DefaultValue)

	cases := map[string]string{
		"length and prefix": `<string name="X" length="2"><lengthPrefix><int name="L" type="uint8"/></lengthPrefix></string>`,
		"prefix not int":    `<string name="X"><lengthPrefix><string name="L" length="1"/></lengthPrefix></string>`,
		"zero term length":  `<string name="X" length="2" zeroTermSuffix="true"/>`,
		"default too long":  `<string name="X" length="2" defaultValue="abc"/>`,
		"bad hex":           `<data name="X" defaultValue="xyz"/>`,
	}
	for name, field := range cases {
		_, err := parseSchemas(test, schemaDoc(field))
		require.Error(test, err, name)
	}
}

func TestDetachedPrefix(test *testing.T) {
	_, err := parseSchemas(test, schemaDoc(`
<message name="M" id="1">
  <int name="len" type="uint8"/>
  <string name="text" lengthPrefix="$len"/>
</message>`))
	require.NoError(test, err)

	_, err = parseSchemas(test, schemaDoc(`
<message name="M" id="1">
  <string name="text" lengthPrefix="$len"/>
  <int name="len" type="uint8"/>
</message>`))
	requireErrorKind(test, err, SemanticValidationError)

	_, err = parseSchemas(test, schemaDoc(`
<message name="M" id="1">
  <string name="text" lengthPrefix="$missing"/>
</message>`))
	requireErrorKind(test, err, SemanticValidationError)
}

func TestListField(test *testing.T) {
	p, err := parseSchemas(test, schemaDoc(`
<list name="Fixed" count="3"><int name="E" type="uint16"/></list>
<list name="Counted">
  <int name="E" type="uint8"/>
  <countPrefix><int name="Count" type="uint8"/></countPrefix>
</list>`))
	require.NoError(test, err)
	require.Equal(test, 6, p.FindField("Fixed").MinLength())
	require.Equal(test, 6, p.FindField("Fixed").MaxLength())
	counted := p.FindField("Counted").(*ListField)
	require.Equal(test, "Count", counted.CountPrefix.Common().Name)
	require.Equal(test, 1, counted.MinLength())

	cases := map[string]string{
		"count and prefix": `<list name="X" count="2"><int name="E" type="uint8"/><lengthPrefix><int name="L" type="uint8"/></lengthPrefix></list>`,
		"prefix not int":   `<list name="X"><int name="E" type="uint8"/><countPrefix><string name="C"/></countPrefix></list>`,
		"no element":       `<list name="X" count="2"/>`,
		"two elements":     `<list name="X"><int name="A" type="uint8"/><int name="B" type="uint8"/></list>`,
		"fixed elem len":   `<list name="X" elemFixedLength="true"><int name="E" type="uint8"/></list>`,
	}
	for name, field := range cases {
		_, err := parseSchemas(test, schemaDoc(field))
		require.Error(test, err, name)
	}
}

func TestReuse(test *testing.T) {
	p, err := parseSchemas(test, schemaDoc(`
<int name="Base" type="uint16" defaultValue="5" reusable="true"/>
<int name="Copy" reuse="Base" defaultValue="7"/>
<bundle name="B">
  <int name="a" type="uint8"/>
  <int name="b" type="uint8"/>
</bundle>
<bundle name="Bigger" reuse="B">
  <int name="c" type="uint8"/>
</bundle>`))
	require.NoError(test, err)
	cp := p.FindField("Copy").(*IntField)
	require.Equal(test, IntTypeUint16, cp.Type)
	require.EqualValues(test, 7, cp.DefaultValue)
	require.False(test, cp.Reusable)
	require.EqualValues(test, 5, p.FindField("Base").(*IntField).DefaultValue)

	bigger := p.FindField("Bigger").(*BundleField)
	require.Len(test, bigger.Members, 3)
	require.Same(test, bigger, bigger.Members[0].ElemParent())

	_, err = parseSchemas(test, schemaDoc(`
<int name="Base" type="uint16"/>
<enum name="Copy" reuse="Base"/>`))
	requireErrorKind(test, err, SemanticValidationError)

	_, err = parseSchemas(test, schemaDoc(`<int name="Copy" reuse="Missing"/>`))
	requireErrorKind(test, err, ResolutionError)
}

func TestRefResolution(test *testing.T) {
	p, err := parseSchemas(test, schemaDoc(`
<ref name="Alias" field="Inner.b"/>
<bundle name="Inner">
  <int name="a" type="uint8"/>
  <int name="b" type="uint32"/>
</bundle>`))
	require.NoError(test, err)
	ref := p.FindField("Alias").(*RefField)
	require.Equal(test, "b", ref.Target.Common().Name)
	require.Equal(test, 4, ref.MinLength())
	require.Equal(test, KindInt, Deref(ref).Kind())

	chained := []string{
		`<bundle name="Bun"><int name="x" type="uint16"/></bundle>`,
		`<ref name="Alias" field="Bun"/>`,
		`<ref name="R" field="Alias.x"/>`,
	}
	for _, order := range [][]int{{0, 1, 2}, {2, 1, 0}, {2, 0, 1}, {1, 2, 0}} {
		body := ""
		for _, i := range order {
			body += chained[i] + "\n"
		}
		p, err = parseSchemas(test, schemaDoc(body))
		require.NoError(test, err, body)
		r := p.FindField("R").(*RefField)
		require.Same(test, p.FindField("Bun").(*BundleField).Members[0], r.Target, body)
		require.Equal(test, 2, r.MinLength(), body)
	}

	_, err = parseSchemas(test, schemaDoc(`
<ref name="R" field="Alias.x"/>
<ref name="Alias" field="Missing"/>`))
	requireErrorKind(test, err, ResolutionError)

	_, err = parseSchemas(test, schemaDoc(`
<ref name="P" field="Q.x"/>
<ref name="Q" field="P.x"/>`))
	requireErrorKind(test, err, ResolutionError)

	_, err = parseSchemas(test, schemaDoc(`<ref name="Dangling" field="Nowhere"/>`))
	requireErrorKind(test, err, ResolutionError)

	_, err = parseSchemas(test, schemaDoc(`
<ref name="A" field="B"/>
<ref name="B" field="A"/>`))
	requireErrorKind(test, err, ResolutionError)

	_, err = parseSchemas(test, schemaDoc(`
<bundle name="Node">
  <int name="v" type="uint8"/>
  <ref name="next" field="Node"/>
</bundle>`))
	requireErrorKind(test, err, ResolutionError)
}

func TestValueThroughRef(test *testing.T) {
	p, err := parseSchemas(test, schemaDoc(`
<enum name="Mode" type="uint8">
  <validValue name="Off" val="0"/>
  <validValue name="On" val="1"/>
</enum>
<ref name="ModeRef" field="Mode"/>
<int name="Level" type="uint8" defaultValue="ModeRef.On"/>
<message name="M" id="ModeRef.On"/>`))
	require.NoError(test, err)
	require.EqualValues(test, 1, p.FindField("Level").(*IntField).DefaultValue)
	require.EqualValues(test, 1, p.FindMessage("M").ID)
}

func TestAliases(test *testing.T) {
	p, err := parseSchemas(test, schemaDoc(`
<message name="M" id="1">
  <bundle name="hdr">
    <int name="flags" type="uint8"/>
  </bundle>
  <alias name="Flags" field="$hdr.flags"/>
  <alias name="F" field="$Flags"/>
</message>`))
	require.NoError(test, err)
	m := p.FindMessage("M")
	require.Len(test, m.Aliases, 2)
	for _, a := range m.Aliases {
		require.NotNil(test, a.Target)
		require.Equal(test, "flags", a.Target.Common().Name)
	}

	_, err = parseSchemas(test, schemaDoc(`
<message name="M" id="1">
  <int name="x" type="uint8"/>
  <alias name="A" field="$B"/>
  <alias name="B" field="$A"/>
</message>`))
	requireErrorKind(test, err, ResolutionError)

	_, err = parseSchemas(test, schemaDoc(`
<message name="M" id="1">
  <int name="x" type="uint8"/>
  <alias name="x" field="$x"/>
</message>`))
	requireErrorKind(test, err, SemanticValidationError)
}

func TestDuplicateMemberNames(test *testing.T) {
	_, err := parseSchemas(test, schemaDoc(`
<message name="M" id="1">
  <int name="x" type="uint8"/>
  <int name="x" type="uint16"/>
</message>`))
	requireErrorKind(test, err, SemanticValidationError)
}

func TestVariant(test *testing.T) {
	p, err := parseSchemas(test, schemaDoc(`
<variant name="Prop" defaultMember="1">
  <bundle name="P1">
    <int name="key" type="uint8" validValue="1" defaultValue="1" failOnInvalid="true"/>
    <int name="val" type="uint16"/>
  </bundle>
  <bundle name="P2">
    <int name="key" type="uint8" validValue="2" defaultValue="2" failOnInvalid="true"/>
    <string name="val" length="4"/>
  </bundle>
</variant>`))
	require.NoError(test, err)
	v := p.FindField("Prop").(*VariantField)
	require.Len(test, v.Members, 2)
	require.Equal(test, 1, v.DefaultMember)
	require.Equal(test, 3, v.MinLength())
	require.Equal(test, 5, v.MaxLength())
}

package gen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boynton/commsdsl"
)

func keyedMember(name, key, extra string) string {
	return `<bundle name="` + name + `">
    <int name="key" type="uint8" validValue="` + key + `" defaultValue="` + key + `" failOnInvalid="true"` + extra + `/>
    <int name="val" type="uint16"/>
  </bundle>`
}

func variantOf(test *testing.T, members string) *commsdsl.VariantField {
	test.Helper()
	p := parseProtocol(test, `<variant name="Prop">`+members+`</variant>`)
	return p.FindField("Prop").(*commsdsl.VariantField)
}

func TestOptimizedReadKey(test *testing.T) {
	v := variantOf(test, keyedMember("P1", "1", "")+keyedMember("P2", "2", "")+`
  <bundle name="Any">
    <int name="key" type="uint8"/>
    <data name="val"/>
  </bundle>`)
	require.Equal(test, "uint8", OptimizedReadKey(v, nil))
	k, ok := VariantKey(v.Members[1])
	require.True(test, ok)
	require.EqualValues(test, 2, k)
	_, ok = VariantKey(v.Members[2])
	require.False(test, ok)

	custom := func(f commsdsl.Field) bool { return f.ElemParent().ElemName() == "P2" }
	require.Equal(test, "", OptimizedReadKey(v, custom))
}

func TestOptimizedReadKeyRejected(test *testing.T) {
	cases := map[string]string{
		"duplicate keys":      keyedMember("P1", "1", "") + keyedMember("P2", "1", ""),
		"keyless in middle":   `<bundle name="Any"><int name="key" type="uint8"/></bundle>` + keyedMember("P2", "2", ""),
		"different key types": keyedMember("P1", "1", "") + `<bundle name="P2"><int name="key" type="uint16" validValue="2" defaultValue="2" failOnInvalid="true"/></bundle>`,
		"not a bundle":        keyedMember("P1", "1", "") + `<int name="P2" type="uint8"/>`,
		"pseudo key":          keyedMember("P1", "1", ` pseudo="true"`) + keyedMember("P2", "2", ` pseudo="true"`),
		"single member":       keyedMember("P1", "1", ""),
	}
	for name, members := range cases {
		require.Equal(test, "", OptimizedReadKey(variantOf(test, members), nil), name)
	}
}

func TestVersionDependent(test *testing.T) {
	p := parseProtocol(test, `
<fields>
  <bundle name="Ext">
    <int name="a" type="uint8"/>
    <int name="b" type="uint8" sinceVersion="2"/>
  </bundle>
</fields>
<message name="Plain" id="1">
  <int name="x" type="uint8"/>
  <ref name="r" field="Ext"/>
</message>
<message name="Late" id="2" sinceVersion="1">
  <int name="x" type="uint8"/>
  <int name="y" type="uint8" sinceVersion="2"/>
</message>
<message name="Flat" id="3" sinceVersion="2">
  <int name="x" type="uint8"/>
</message>`)
	plain := p.FindMessage("Plain")
	require.False(test, VersionDependent(plain.Fields[0]))
	require.True(test, VersionDependent(plain.Fields[1]))
	require.True(test, FieldsVersionDependent(plain.Fields, plain.SinceVersion))

	late := p.FindMessage("Late")
	require.False(test, VersionDependent(late.Fields[0]))
	require.True(test, VersionDependent(late.Fields[1]))

	flat := p.FindMessage("Flat")
	require.False(test, FieldsVersionDependent(flat.Fields, flat.SinceVersion))
}

func TestVersionPolicy(test *testing.T) {
	p := parseProtocol(test, `
<message name="Late" id="1" sinceVersion="1">
  <int name="x" type="uint8"/>
  <int name="y" type="uint8" sinceVersion="2"/>
  <int name="z" type="uint8" sinceVersion="3"/>
</message>`)
	late := p.FindMessage("Late")
	require.Equal(test, VersionPolicy{}, VersionPolicyOf(nil))

	config := commsdsl.NewData()
	config.Put("min-remote-version", 2)
	vp := VersionPolicyOf(config)
	require.EqualValues(test, 2, vp.MinRemote)
	require.False(test, vp.Optional(2, 1))
	require.True(test, vp.Optional(3, 1))
	require.False(test, vp.Dependent(late.Fields[1]))
	require.True(test, vp.Dependent(late.Fields[2]))

	config.Put("version-independent", true)
	vp = VersionPolicyOf(config)
	require.False(test, vp.Optional(3, 1))
	require.False(test, vp.FieldsDependent(late.Fields, late.SinceVersion))
}

func TestCompactVariantAccess(test *testing.T) {
	v := variantOf(test, keyedMember("P1", "1", "")+keyedMember("P2", "2", ""))
	require.True(test, CompactVariantAccess(v, nil))
	config := commsdsl.NewData()
	config.Put("variant-max-members", 1)
	require.False(test, CompactVariantAccess(v, config))
}

func TestCustomCode(test *testing.T) {
	p := parseProtocol(test, `<ns name="sub"><message name="Msg" id="1"/></ns>`)
	m := p.FindMessage("sub.Msg")
	config := commsdsl.NewData()
	require.Equal(test, "", CustomCodePath(config, m, ".read"))

	dir := test.TempDir()
	config.Put("custom-code-dir", dir)
	path := CustomCodePath(config, m, ".read")
	require.Equal(test, filepath.Join(dir, "sub", "Msg.read"), path)
	require.False(test, HasCustomCode(config, m, ".read"))
	require.NoError(test, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(test, os.WriteFile(path, []byte("// custom"), 0o644))
	require.True(test, HasCustomCode(config, m, ".read"))
}

package graphql

import (
	"os"
	"path/filepath"
	"testing"

	gql_ast "github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/require"

	"github.com/boynton/commsdsl"
)

const demoSchema = `<?xml version="1.0" encoding="UTF-8"?>
<schema name="demo" endian="big" version="2">
  <fields>
    <enum name="MsgIdField" type="uint8">
      <validValue name="Ping" val="1"/>
      <validValue name="Status" val="2"/>
    </enum>
    <set name="Flags" length="1">
      <bit name="ready" idx="0"/>
      <bit name="error" idx="1"/>
    </set>
    <bundle name="Point">
      <int name="x" type="int16"/>
      <int name="y" type="int16" scaling="1/100"/>
    </bundle>
    <variant name="Value">
      <ref name="pt" field="Point"/>
      <int name="raw" type="uint64"/>
    </variant>
  </fields>

  <message name="Ping" id="MsgIdField.Ping"/>
  <message name="Status" id="MsgIdField.Status">
    <ref name="flags" field="Flags"/>
    <ref name="pos" field="Point"/>
    <data name="blob"/>
    <list name="values" element="Value"/>
    <int name="added" type="uint8" sinceVersion="2"/>
  </message>

  <frame name="Frame">
    <id name="Id" field="MsgIdField"/>
    <payload name="Data"/>
  </frame>
</schema>`

func demoProtocol(test *testing.T) *commsdsl.Protocol {
	test.Helper()
	p := commsdsl.NewProtocol(commsdsl.NewSilentLogger())
	require.NoError(test, p.ParseData("demo.xml", []byte(demoSchema)))
	require.NoError(test, p.Validate())
	return p
}

func definitionNames(doc *gql_ast.Document) map[string]string {
	names := make(map[string]string)
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *gql_ast.ObjectDefinition:
			names[d.Name.Value] = "type"
		case *gql_ast.EnumDefinition:
			names[d.Name.Value] = "enum"
		case *gql_ast.UnionDefinition:
			names[d.Name.Value] = "union"
		case *gql_ast.ScalarDefinition:
			names[d.Name.Value] = "scalar"
		}
	}
	return names
}

func TestGenerate(test *testing.T) {
	p := demoProtocol(test)
	dir := test.TempDir()
	b, err := Generate(p, nil, dir)
	require.NoError(test, err)
	require.NotNil(test, b.Document)

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(test, err)
	require.Equal(test, b.Source(), string(data))

	names := definitionNames(b.Document)
	require.Equal(test, "enum", names["MsgIdField"])
	require.Equal(test, "enum", names["Flags"])
	require.Equal(test, "type", names["Point"])
	require.Equal(test, "union", names["Value"])
	require.Equal(test, "type", names["ValueRawValue"])
	require.Equal(test, "type", names["Ping"])
	require.Equal(test, "type", names["Status"])
	require.Equal(test, "type", names["Message"])
	require.Equal(test, "type", names["Frame"])

	src := b.Source()
	require.Contains(test, src, "  _empty: Boolean\n")
	require.Contains(test, src, "  flags: [Flags!]!\n")
	require.Contains(test, src, "  y: Float!\n")
	require.Contains(test, src, "  blob: String!\n")
	require.Contains(test, src, "  values: [Value!]!\n")
	require.Contains(test, src, "  added: Int\n")
	require.Contains(test, src, "union Value = Point | ValueRawValue\n")
	require.Contains(test, src, "  value: Float!\n")
	require.Contains(test, src, "  READY\n")
}

func TestGenerateCustomScalars(test *testing.T) {
	p := demoProtocol(test)
	config := commsdsl.NewDataFromMap(map[string]interface{}{
		"custom-scalars": map[string]interface{}{"Int64": "Long", "Bytes": "Base64"},
	})
	b, err := Generate(p, config, test.TempDir())
	require.NoError(test, err)
	names := definitionNames(b.Document)
	require.Equal(test, "scalar", names["Long"])
	require.Equal(test, "scalar", names["Base64"])
	require.Contains(test, b.Source(), "  blob: Base64!\n")
	require.Contains(test, b.Source(), "  value: Long!\n")
}

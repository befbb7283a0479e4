package main

import (
	"encoding/json"
	"testing"

	"github.com/ghodss/yaml"
	"github.com/stretchr/testify/require"

	"github.com/boynton/commsdsl"
)

const dumpSchema = `<schema name="demo" endian="little" version="1">
  <fields>
    <int name="Seq" type="uint16"/>
  </fields>
  <message name="Ping" id="1">
    <ref name="seq" field="Seq"/>
    <optional name="extra" cond="$seq != 0">
      <int name="extra" type="uint8"/>
    </optional>
  </message>
  <ns name="sub">
    <message name="Pong" id="2"/>
  </ns>
  <frame name="Frame">
    <id name="Id"><int name="Id" type="uint8"/></id>
    <payload name="Data"/>
  </frame>
</schema>`

func dumpProtocol(test *testing.T) *commsdsl.Protocol {
	test.Helper()
	p := commsdsl.NewProtocol(commsdsl.NewSilentLogger())
	require.NoError(test, p.ParseData("demo.xml", []byte(dumpSchema)))
	require.NoError(test, p.Validate())
	return p
}

func TestDump(test *testing.T) {
	p := dumpProtocol(test)

	out, err := Dump(p, "json")
	require.NoError(test, err)
	var fromJSON []schemaSummary
	require.NoError(test, json.Unmarshal([]byte(out), &fromJSON))

	out, err = Dump(p, "yaml")
	require.NoError(test, err)
	var fromYAML []schemaSummary
	require.NoError(test, yaml.Unmarshal([]byte(out), &fromYAML))
	require.Equal(test, fromJSON, fromYAML)

	require.Len(test, fromJSON, 1)
	s := fromJSON[0]
	require.Equal(test, "demo", s.Name)
	require.Equal(test, "little", s.Endian)
	require.Len(test, s.Root.Messages, 1)
	ping := s.Root.Messages[0]
	require.Equal(test, "Seq", ping.Fields[0].Ref)
	require.Equal(test, 2, ping.Fields[0].MinLen)
	require.Equal(test, "$seq != 0", ping.Fields[1].Cond)
	require.Equal(test, "sub", s.Root.Namespaces[0].Name)

	_, err = Dump(p, "xml")
	require.Error(test, err)
}

func TestDumpText(test *testing.T) {
	out, err := Dump(dumpProtocol(test), "text")
	require.NoError(test, err)
	require.Contains(test, out, "schema demo v1 (little)\n")
	require.Contains(test, out, "  message Ping id=1")
	require.Contains(test, out, "    ref seq -> Seq [2..2]\n")
	require.Contains(test, out, "if $seq != 0")
	require.Contains(test, out, "  namespace sub\n    message Pong id=2")
	require.Contains(test, out, "  frame Frame\n    id Id\n    payload Data\n")
}

package comms

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/boynton/commsdsl"
)

const demoSchema = `<?xml version="1.0" encoding="UTF-8"?>
<schema name="demo" endian="big" version="2">
  <fields>
    <enum name="MsgIdField" type="uint8" semanticType="messageId">
      <validValue name="Ping" val="1"/>
      <validValue name="Status" val="2"/>
      <validValue name="Props" val="3"/>
    </enum>
    <int name="Counter" type="uint16" defaultValue="1" validRange="[1, 100]" units="ms">
      <special name="Disabled" val="0"/>
    </int>
    <set name="Flags" length="1">
      <bit name="ready" idx="0"/>
      <bit name="error" idx="1"/>
    </set>
    <bitfield name="Packed">
      <int name="lo" type="uint8" bitLength="4"/>
      <int name="hi" type="uint8" bitLength="4"/>
    </bitfield>
    <string name="Name">
      <lengthPrefix><int name="Len" type="uint8"/></lengthPrefix>
    </string>
    <int name="Unused" type="uint8"/>
    <variant name="Prop">
      <bundle name="P1">
        <int name="key" type="uint8" validValue="1" defaultValue="1" failOnInvalid="true"/>
        <int name="val" type="uint16"/>
      </bundle>
      <bundle name="P2">
        <int name="key" type="uint8" validValue="2" defaultValue="2" failOnInvalid="true"/>
        <ref name="val" field="Name"/>
      </bundle>
    </variant>
  </fields>

  <interface name="Message">
    <int name="version" type="uint8" semanticType="version"/>
  </interface>

  <message name="Ping" id="MsgIdField.Ping"/>
  <message name="Status" id="MsgIdField.Status" sender="server">
    <ref name="counter" field="Counter"/>
    <ref name="flags" field="Flags"/>
    <ref name="packed" field="Packed"/>
    <optional name="extra" cond="$flags.ready">
      <int name="extra" type="uint32"/>
    </optional>
    <int name="added" type="uint8" sinceVersion="2"/>
    <alias name="Ready" field="$flags"/>
  </message>
  <message name="Props" id="MsgIdField.Props">
    <list name="props" element="Prop">
      <countPrefix><int name="count" type="uint8"/></countPrefix>
    </list>
  </message>

  <frame name="Frame">
    <sync name="Sync"><int name="Sync" type="uint16" defaultValue="0xabcd"/></sync>
    <size name="Size"><int name="Size" type="uint16"/></size>
    <id name="Id" field="MsgIdField"/>
    <value name="Version" interfaceFieldName="version"><int name="Version" type="uint8"/></value>
    <payload name="Data"/>
    <checksum name="Checksum" alg="crc-ccitt" from="Size"><int name="Crc" type="uint16"/></checksum>
  </frame>
</schema>`

func demoProtocol(test *testing.T) *commsdsl.Protocol {
	test.Helper()
	p := commsdsl.NewProtocol(commsdsl.NewSilentLogger())
	require.NoError(test, p.ParseData("demo.xml", []byte(demoSchema)))
	require.NoError(test, p.Validate())
	return p
}

func readHeader(test *testing.T, dir, rel string) string {
	test.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "include", rel))
	require.NoError(test, err, rel)
	return string(data)
}

func TestGenerate(test *testing.T) {
	p := demoProtocol(test)
	dir := test.TempDir()
	g, err := Generate(p, nil, dir)
	require.NoError(test, err)
	require.NotZero(test, g.Count())

	for _, rel := range []string{
		"demo/field/FieldBase.h",
		"demo/MsgId.h",
		"demo/input/AllMessages.h",
		"demo/Message.h",
		"demo/field/MsgIdField.h",
		"demo/field/Counter.h",
		"demo/field/Flags.h",
		"demo/field/Packed.h",
		"demo/field/Name.h",
		"demo/field/Prop.h",
		"demo/message/Ping.h",
		"demo/message/Status.h",
		"demo/message/Props.h",
		"demo/frame/Frame.h",
	} {
		require.FileExists(test, filepath.Join(dir, "include", rel))
	}
	require.NoFileExists(test, filepath.Join(dir, "include", "demo", "field", "Unused.h"))

	ids := readHeader(test, dir, "demo/MsgId.h")
	require.Contains(test, ids, "enum MsgId : std::uint8_t")
	require.Contains(test, ids, "MsgId_Status = 2,")

	all := readHeader(test, dir, "demo/input/AllMessages.h")
	require.Contains(test, all, `#include "demo/message/Props.h"`)
	require.Contains(test, all, "::demo::message::Status<TBase>")

	status := readHeader(test, dir, "demo/message/Status.h")
	require.Contains(test, status, "class Status : public")
	require.Contains(test, status, "comms::option::def::StaticNumIdImpl<::demo::MsgId_Status>")
	require.Contains(test, status, "COMMS_MSG_FIELDS_NAMES(")
	require.Contains(test, status, "COMMS_MSG_FIELD_ALIAS(Ready, flags);")
	require.Contains(test, status, "comms::option::def::HasCustomRefresh")
	require.Contains(test, status, "bool refresh_extra()")
	require.Contains(test, status, "comms::option::def::ExistsSinceVersion<2>")
	require.Contains(test, status, "Sent by server.")

	frame := readHeader(test, dir, "demo/frame/Frame.h")
	require.Contains(test, frame, "comms::protocol::ChecksumLayer")
	require.Contains(test, frame, "comms::protocol::checksum::Crc_CCITT")
	require.Contains(test, frame, "comms::protocol::MsgIdLayer")
	require.Contains(test, frame, "TMessage::TransportFieldIdx_version")
	require.Contains(test, frame, "using Stack = SyncLayer;")

	iface := readHeader(test, dir, "demo/Message.h")
	require.Contains(test, iface, "COMMS_MSG_TRANSPORT_FIELDS_NAMES(")

	prop := readHeader(test, dir, "demo/field/Prop.h")
	require.Contains(test, prop, "switch (commonKeyField.getValue())")
}

func TestGenerateMainNamespace(test *testing.T) {
	p := demoProtocol(test)
	dir := test.TempDir()
	config := commsdsl.NewData()
	config.Put("main-namespace", "proto")
	_, err := Generate(p, config, dir)
	require.NoError(test, err)
	require.FileExists(test, filepath.Join(dir, "include", "proto", "MsgId.h"))
	require.Contains(test, readHeader(test, dir, "proto/message/Ping.h"), "namespace proto")
}

func TestGenerateVersionIndependent(test *testing.T) {
	p := demoProtocol(test)
	dir := test.TempDir()
	config := commsdsl.NewData()
	config.Put("version-independent", true)
	_, err := Generate(p, config, dir)
	require.NoError(test, err)
	status := readHeader(test, dir, "demo/message/Status.h")
	require.NotContains(test, status, "ExistsSinceVersion")
	require.NotContains(test, status, "areFieldsVersionDependent")
}

func TestGenerateKeepsExistingFiles(test *testing.T) {
	p := demoProtocol(test)
	dir := test.TempDir()
	existing := filepath.Join(dir, "include", "demo", "MsgId.h")
	require.NoError(test, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(test, os.WriteFile(existing, []byte("// mine"), 0o644))

	config := commsdsl.NewData()
	config.Put("force-overwrite", false)
	_, err := Generate(p, config, dir)
	require.NoError(test, err)
	require.Equal(test, "// mine", readHeader(test, dir, "demo/MsgId.h"))
}

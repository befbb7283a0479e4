package commsdsl

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func layerNames(layers []*Layer) []string {
	var names []string
	for _, l := range layers {
		names = append(names, l.Name)
	}
	return names
}

func TestRearrangeChecksums(test *testing.T) {
	layers := []*Layer{
		{Kind: LayerSync, Name: "Sync"},
		{Kind: LayerSize, Name: "Size"},
		{Kind: LayerID, Name: "Id"},
		{Kind: LayerChecksum, Name: "Checksum", From: "Id", Until: "Payload"},
		{Kind: LayerPayload, Name: "Payload"},
	}
	result, err := rearrangeChecksums(layers)
	require.NoError(test, err)
	require.Empty(test, cmp.Diff([]string{"Sync", "Size", "Checksum", "Id", "Payload"}, layerNames(result)))
	require.Empty(test, cmp.Diff([]string{"Sync", "Size", "Id", "Checksum", "Payload"}, layerNames(layers)), "input must stay untouched")

	trailing := []*Layer{
		{Kind: LayerSync, Name: "Sync"},
		{Kind: LayerSize, Name: "Size"},
		{Kind: LayerPayload, Name: "Payload"},
		{Kind: LayerChecksum, Name: "Checksum", From: "Size"},
	}
	result, err = rearrangeChecksums(trailing)
	require.NoError(test, err)
	require.Empty(test, cmp.Diff([]string{"Sync", "Checksum", "Size", "Payload"}, layerNames(result)))

	prefix := []*Layer{
		{Kind: LayerChecksum, Name: "Checksum", Until: "Payload"},
		{Kind: LayerPayload, Name: "Payload"},
	}
	result, err = rearrangeChecksums(prefix)
	require.NoError(test, err)
	require.Empty(test, cmp.Diff([]string{"Checksum", "Payload"}, layerNames(result)))
}

func TestRearrangeChecksumsErrors(test *testing.T) {
	cases := map[string][]*Layer{
		"no boundary": {
			{Kind: LayerChecksum, Name: "Checksum"},
			{Kind: LayerPayload, Name: "Payload"},
		},
		"unknown from": {
			{Kind: LayerPayload, Name: "Payload"},
			{Kind: LayerChecksum, Name: "Checksum", From: "Missing"},
		},
		"from after checksum": {
			{Kind: LayerChecksum, Name: "Checksum", From: "Size"},
			{Kind: LayerSize, Name: "Size"},
			{Kind: LayerPayload, Name: "Payload"},
		},
		"until before checksum": {
			{Kind: LayerSize, Name: "Size"},
			{Kind: LayerChecksum, Name: "Checksum", Until: "Size"},
			{Kind: LayerPayload, Name: "Payload"},
		},
	}
	for name, layers := range cases {
		_, err := rearrangeChecksums(layers)
		require.Error(test, err, name)
	}
}

const frameFields = `
<fields>
  <int name="SyncField" type="uint16" defaultValue="0xabcd"/>
  <int name="SizeField" type="uint16"/>
  <int name="IdField" type="uint8"/>
  <int name="Crc" type="uint16"/>
</fields>
<message name="Msg1" id="1"/>
<message name="Msg2" id="2"/>
`

func TestFrameParse(test *testing.T) {
	p, err := parseSchemas(test, schemaDoc(frameFields+`
<frame name="Frame">
  <sync name="Sync" field="SyncField"/>
  <size name="Size" field="SizeField"/>
  <id name="Id" field="IdField"/>
  <payload name="Data"/>
  <checksum name="Checksum" alg="crc-ccitt" from="Size" field="Crc"/>
</frame>`))
	require.NoError(test, err)
	fr := p.CurrentSchema().Root.FindFrame("Frame")
	require.NotNil(test, fr)
	require.True(test, fr.Referenced())
	require.Empty(test, cmp.Diff([]string{"Sync", "Checksum", "Size", "Id", "Data"}, layerNames(fr.Layers)))
	cs, idx := fr.FindLayer("Checksum")
	require.Equal(test, 1, idx)
	require.Equal(test, "crc-ccitt", cs.Alg)
	require.Same(test, p.FindField("Crc"), cs.Field.(*RefField).Target)
	require.True(test, p.FindField("Crc").Common().Referenced())
}

func TestFrameInlineLayerField(test *testing.T) {
	p, err := parseSchemas(test, schemaDoc(`
<message name="Msg1" id="1"/>
<frame name="Frame">
  <layers>
    <id name="Id"><int name="IdField" type="uint8"/></id>
    <payload name="Data"/>
  </layers>
</frame>`))
	require.NoError(test, err)
	l, _ := p.CurrentSchema().Root.FindFrame("Frame").FindLayer("Id")
	require.Equal(test, KindInt, l.Field.Kind())
	require.Equal(test, "IdField", l.Field.Common().Name)
}

func TestFrameLayerStackErrors(test *testing.T) {
	cases := map[string]string{
		"two payloads": `<frame name="F"><payload name="A"/><payload name="B"/></frame>`,
		"no payload":   `<frame name="F"><id name="Id" field="IdField"/></frame>`,
		"two ids": `<frame name="F">
  <id name="Id1" field="IdField"/>
  <id name="Id2" field="IdField"/>
  <payload name="Data"/>
</frame>`,
		"id replacement counts as id": `<frame name="F">
  <id name="Id" field="IdField"/>
  <custom name="Other" field="IdField" idReplacement="true"/>
  <payload name="Data"/>
</frame>`,
		"layer after payload": `<frame name="F"><payload name="Data"/><size name="Size" field="SizeField"/></frame>`,
		"duplicate layer":     `<frame name="F"><size name="X" field="SizeField"/><id name="X" field="IdField"/><payload name="Data"/></frame>`,
		"missing field":       `<frame name="F"><size name="Size"/><payload name="Data"/></frame>`,
		"custom alg name":     `<frame name="F"><payload name="Data"/><checksum name="C" alg="custom" from="Data" field="Crc"/></frame>`,
		"unknown alg":         `<frame name="F"><payload name="Data"/><checksum name="C" alg="md5" from="Data" field="Crc"/></frame>`,
		"checksum boundary":   `<frame name="F"><payload name="Data"/><checksum name="C" alg="sum" field="Crc"/></frame>`,
	}
	for name, frame := range cases {
		_, err := parseSchemas(test, schemaDoc(frameFields+frame))
		requireErrorKind(test, err, SemanticValidationError)
		require.Error(test, err, name)
	}
}

func TestFrameWithoutIdLayer(test *testing.T) {
	_, err := parseSchemas(test, schemaDoc(frameFields+`
<frame name="F">
  <size name="Size" field="SizeField"/>
  <payload name="Data"/>
</frame>`))
	require.NoError(test, err)
}

func TestFrameLayerFieldKinds(test *testing.T) {
	_, err := parseSchemas(test, schemaDoc(frameFields+`
<fields><string name="Text" length="2"/></fields>
<frame name="F">
  <size name="Size" field="Text"/>
  <payload name="Data"/>
</frame>`))
	requireErrorKind(test, err, SemanticValidationError)

	_, err = parseSchemas(test, schemaDoc(frameFields+`
<fields><string name="Text"/></fields>
<frame name="F">
  <payload name="Data"/>
  <checksum name="C" alg="sum" from="Data" field="Text"/>
</frame>`))
	requireErrorKind(test, err, SemanticValidationError)
}

func TestValueLayer(test *testing.T) {
	_, err := parseSchemas(test, schemaDoc(frameFields+`
<interface name="Iface"><int name="version" type="uint8" semanticType="version"/></interface>
<frame name="F">
  <value name="Version" interfaceFieldName="version" field="IdField"/>
  <payload name="Data"/>
</frame>`))
	require.NoError(test, err)

	_, err = parseSchemas(test, schemaDoc(frameFields+`
<interface name="Iface"><int name="flags" type="uint8"/></interface>
<frame name="F">
  <value name="Version" interfaceFieldName="version" field="IdField"/>
  <payload name="Data"/>
</frame>`))
	requireErrorKind(test, err, SemanticValidationError)
}

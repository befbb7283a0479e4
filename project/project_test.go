package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/boynton/commsdsl"
)

const schemaXML = `<?xml version="1.0" encoding="UTF-8"?>
<schema name="demo" endian="big">
  <fields>
    <enum name="MsgId" type="uint8" semanticType="messageId">
      <validValue name="Ping" val="1"/>
    </enum>
  </fields>
  <message name="Ping" id="MsgId.Ping">
    <int name="seq" type="uint16"/>
  </message>
  <frame name="Frame">
    <id name="Id" field="MsgId"/>
    <payload name="Data"/>
  </frame>
</schema>`

func writeProject(test *testing.T, hcl string) string {
	test.Helper()
	dir := test.TempDir()
	require.NoError(test, os.WriteFile(filepath.Join(dir, "schema.xml"), []byte(schemaXML), 0o644))
	path := filepath.Join(dir, "project.hcl")
	require.NoError(test, os.WriteFile(path, []byte(hcl), 0o644))
	return path
}

func TestLoadAndRun(test *testing.T) {
	test.Setenv("COMMSDSL_OUT", "gen")
	path := writeProject(test, `
schemas = ["schema.xml"]
strict  = true

output "graphql" {
  dir = "${schema_dir}/out"
}

output "comms" {
  dir     = "${env.COMMSDSL_OUT}"
  options = { "main-namespace" = "proto", "force-overwrite" = true }
}
`)
	proj, err := Load(path)
	require.NoError(test, err)
	require.True(test, proj.Strict)
	require.Len(test, proj.Outputs, 2)
	require.Equal(test, "gen", proj.Outputs[1].Dir)

	require.NoError(test, proj.Run(commsdsl.NewSilentLogger()))
	dir := filepath.Dir(path)
	require.FileExists(test, filepath.Join(dir, "out", "schema.graphql"))
	require.FileExists(test, filepath.Join(dir, "gen", "include", "proto", "message", "Ping.h"))
}

func TestLoadErrors(test *testing.T) {
	cases := map[string]string{
		"unknown backend": `
schemas = ["schema.xml"]
output "rust" {
  dir = "out"
}`,
		"duplicate output": `
schemas = ["schema.xml"]
output "comms" {
  dir = "a"
}
output "comms" {
  dir = "b"
}`,
		"no schemas":   `schemas = []`,
		"syntax error": `schemas = [`,
		"missing dir": `
schemas = ["schema.xml"]
output "comms" {}`,
	}
	for name, hcl := range cases {
		_, err := Load(writeProject(test, hcl))
		require.Error(test, err, name)
	}
}

func TestRunSchemaErrors(test *testing.T) {
	path := writeProject(test, `schemas = ["missing.xml"]`)
	proj, err := Load(path)
	require.NoError(test, err)
	require.Error(test, proj.Run(commsdsl.NewSilentLogger()))
}

func TestOptionsData(test *testing.T) {
	data, err := OptionsData(cty.NullVal(cty.DynamicPseudoType))
	require.NoError(test, err)
	require.False(test, data.Has("anything"))

	data, err = OptionsData(cty.ObjectVal(map[string]cty.Value{
		"main-namespace":  cty.StringVal("proto"),
		"force-overwrite": cty.False,
		"variant-max":     cty.NumberIntVal(12),
		"scale":           cty.NumberFloatVal(0.5),
		"tags":            cty.TupleVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")}),
	}))
	require.NoError(test, err)
	require.Equal(test, "proto", data.GetString("main-namespace"))
	require.False(test, data.GetConfigBool("force-overwrite", true))
	require.Equal(test, 12, data.GetConfigInt("variant-max", 0))
	require.Equal(test, []string{"a", "b"}, data.GetStringArray("tags"))

	_, err = OptionsData(cty.StringVal("oops"))
	require.Error(test, err)
}

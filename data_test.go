package commsdsl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataFromFile(test *testing.T) {
	dir := test.TempDir()
	files := map[string]string{
		"gen.yaml": `
main-namespace: demo
force-overwrite: false
variant-max-members: 8
extra-prefixes: [x-, y-]
comms:
  version: "5.2"
`,
		"gen.toml": `
main-namespace = "demo"
force-overwrite = false
variant-max-members = 8
extra-prefixes = ["x-", "y-"]

[comms]
version = "5.2"
`,
		"gen.json": `{
  "main-namespace": "demo",
  "force-overwrite": false,
  "variant-max-members": 8,
  "extra-prefixes": ["x-", "y-"],
  "comms": {"version": "5.2"}
}`,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(test, os.WriteFile(path, []byte(content), 0644))
		data, err := DataFromFile(path)
		require.NoError(test, err, name)
		require.Equal(test, "demo", data.GetString("main-namespace"), name)
		require.False(test, data.GetConfigBool("force-overwrite", true), name)
		require.Equal(test, 8, data.GetConfigInt("variant-max-members", 120), name)
		require.Equal(test, []string{"x-", "y-"}, data.GetStringArray("extra-prefixes"), name)
		require.Equal(test, "5.2", data.GetString("comms", "version"), name)
		require.Equal(test, "5.2", data.GetData("comms").GetString("version"), name)
		require.Equal(test, "out", data.GetConfigString("output", "out"), name)
		require.False(test, data.Has("comms", "missing"), name)
	}

	bad := filepath.Join(dir, "bad.json")
	require.NoError(test, os.WriteFile(bad, []byte(`{"unterminated": `), 0644))
	_, err := DataFromFile(bad)
	require.Error(test, err)

	_, err = DataFromFile(filepath.Join(dir, "missing.yaml"))
	require.Error(test, err)
}

func TestDataPut(test *testing.T) {
	data := NewData()
	data.Put("flag", "true")
	data.Put("count", "0x10")
	data.Put("list", "a, b")
	require.True(test, data.GetBool("flag"))
	require.Equal(test, 16, data.GetInt("count"))
	require.Equal(test, []string{"a", "b"}, data.GetStringArray("list"))
	require.Equal(test, 0, data.GetInt("absent"))

	data.Put("zero", 0)
	data.Put("one", int64(1))
	data.Put("fzero", 0.0)
	data.Put("list", []string{"x"})
	require.False(test, data.GetConfigBool("zero", true))
	require.True(test, data.GetConfigBool("one", false))
	require.False(test, data.GetBool("fzero"))
	require.True(test, data.GetBool("list"))
}

package dna

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/holo/pkg/types"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestPackUnpackRoundTrip(t *testing.T) {
	src := t.TempDir()

	writeFile(t, filepath.Join(src, "app.dna.json"), []byte(`{"name":"app","version":"1"}`))
	writeFile(t, filepath.Join(src, "ui", "index.html"), []byte("<html></html>"))
	writeFile(t, filepath.Join(src, "zomes", "notes", "zome.json"), []byte(`{"config":{}}`))
	writeFile(t, filepath.Join(src, "zomes", "notes", "code", "notes.wasm"), []byte{0x00, 0x61, 0x73, 0x6d})

	packed, err := Pack(src)
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "unpacked")
	require.NoError(t, Unpack(packed, dst))

	data, err := os.ReadFile(filepath.Join(dst, "app.dna.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name": "app"`)

	html, err := os.ReadFile(filepath.Join(dst, "ui", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(html))

	// The code/ directory normalizes to a sibling code.wasm file on
	// unpack: the original zome-code layout is not byte-identical, but
	// the embedded WASM content is.
	wasm, err := os.ReadFile(filepath.Join(dst, "zomes", "notes", "code.wasm"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x61, 0x73, 0x6d}, wasm)
}

func TestPackMergesPropertiesOverlay(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "app.dna.json"), []byte(`{"name":"app","properties":{"a":1}}`))
	writeFile(t, filepath.Join(src, "properties.yaml"), []byte("b: 2\n"))

	packed, err := Pack(src)
	require.NoError(t, err)

	var tree map[string]interface{}
	require.NoError(t, json.Unmarshal(packed, &tree))
	props, ok := tree["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, props["a"])
	assert.EqualValues(t, 2, props["b"])
}

func TestLoadSaveRoundTrip(t *testing.T) {
	wasm := []byte{0x00, 0x61, 0x73, 0x6d, 0x01}
	packed := `{
		"name": "app",
		"description": "desc",
		"version": "1",
		"uuid": "u-1",
		"dna_spec_version": "2.0",
		"properties": {"lang": "en"},
		"zomes": [{
			"name": "notes",
			"config": {},
			"entry_types": [{"name": "note", "validation_package": "Entry"}],
			"traits": {"writer": {"functions": ["create_note"]}},
			"fn_declarations": [{"name": "create_note", "public": true}],
			"code": {"code": "` + base64.StdEncoding.EncodeToString(wasm) + `"}
		}],
		"__META__": {"config_file": "app.dna.json"}
	}`

	d, err := Load([]byte(packed))
	require.NoError(t, err)
	assert.Equal(t, "app", d.Name)
	require.Len(t, d.Zomes, 1)
	assert.Equal(t, "notes", d.Zomes[0].Name)
	assert.Equal(t, wasm, d.Zomes[0].WasmCode)
	assert.Equal(t, types.ValidationPackageRequirement("Entry"), d.Zomes[0].EntryTypeDefs["note"])
	assert.Equal(t, []string{"create_note"}, d.Zomes[0].Traits["writer"])
	assert.Equal(t, "app.dna.json", d.Meta["__META__"].(map[string]interface{})["config_file"])

	out, err := Save(d)
	require.NoError(t, err)

	d2, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, d.Name, d2.Name)
	assert.Equal(t, d.Zomes[0].WasmCode, d2.Zomes[0].WasmCode)
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	_, err := Load([]byte("not json"))
	assert.Error(t, err)
}

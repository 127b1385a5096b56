package persist_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/randalmurphal/modcfg/pkg/modcfg/persist"
	"github.com/randalmurphal/modcfg/pkg/modcfg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodec_Shape(t *testing.T) {
	data, err := persist.JSON.Encode([]persist.Record{{Key: "volume", Value: value.OfInt(5)}})
	require.NoError(t, err)

	assert.JSONEq(t, `[{"key":"volume","value":{"type":"int","value":"5"}}]`, string(data))
	assert.Equal(t, ".json", persist.JSON.Ext())
}

func TestJSONCodec_EncodeEmpty(t *testing.T) {
	data, err := persist.JSON.Encode(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	records := mixedRecords()

	data, err := persist.JSON.Encode(records)
	require.NoError(t, err)

	decoded, err := persist.JSON.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, records, decoded)
}

func TestJSONCodec_AcceptsCommentsAndTrailingCommas(t *testing.T) {
	data := []byte(`
// audio settings, edited by hand
[
  { "key": "volume", "value": { "type": "int", "value": "7" } }, /* louder */
  { "key": "device", "value": { "type": "string", "value": "hw:0" }, },
]
`)
	records, err := persist.JSON.Decode(data)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, persist.Record{Key: "volume", Value: value.OfInt(7)}, records[0])
	assert.Equal(t, persist.Record{Key: "device", Value: value.OfString("hw:0")}, records[1])
}

func TestJSONCodec_KeepsCorruptPayload(t *testing.T) {
	records, err := persist.JSON.Decode([]byte(`[{"key":"n","value":{"type":"int","value":"lots"}}]`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.ErrorIs(t, records[0].Value.Validate(), value.ErrCorrupt)
}

func TestJSONCodec_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty file", ``},
		{"not json", `volume = 5`},
		{"null", `null`},
		{"object", `{"key":"volume"}`},
		{"truncated", `[{"key":"volume","value":{"type":"int","value":"5"}}`},
		{"trailing data", `[] []`},
		{"scalar element", `["volume"]`},
		{"null element", `[null]`},
		{"missing key", `[{"value":{"type":"int","value":"5"}}]`},
		{"empty key", `[{"key":"","value":{"type":"int","value":"5"}}]`},
		{"missing value", `[{"key":"volume"}]`},
		{"missing type", `[{"key":"volume","value":{"value":"5"}}]`},
		{"missing payload", `[{"key":"volume","value":{"type":"int"}}]`},
		{"numeric payload", `[{"key":"volume","value":{"type":"int","value":5}}]`},
		{"unknown type", `[{"key":"volume","value":{"type":"long","value":"5"}}]`},
		{"extra field", `[{"key":"volume","value":{"type":"int","value":"5"},"note":"x"}]`},
		{"extra nested field", `[{"key":"volume","value":{"type":"int","value":"5","unit":"db"}}]`},
		{"duplicate key", `[{"key":"a","value":{"type":"int","value":"1"}},{"key":"a","value":{"type":"int","value":"2"}}]`},
		{"field name case", `[{"KEY":"a","value":{"type":"int","value":"1"}}]`},
		{"nested field name case", `[{"key":"a","Value":{"TYPE":"int","value":"1"}}]`},
		{"duplicate field", `[{"key":"a","key":"b","value":{"type":"int","value":"1"}}]`},
		{"duplicate nested field", `[{"key":"a","value":{"type":"int","value":"1","value":"2"}}]`},
		{"duplicate nested field by case", `[{"key":"a","value":{"type":"int","value":"1","VALUE":"2"}}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := persist.JSON.Decode([]byte(tt.data))
			assert.ErrorIs(t, err, persist.ErrMalformed)
		})
	}
}

func TestYAMLCodec_RoundTrip(t *testing.T) {
	records := mixedRecords()

	data, err := persist.YAML.Encode(records)
	require.NoError(t, err)
	assert.Contains(t, string(data), "key: volume")

	decoded, err := persist.YAML.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, records, decoded)
	assert.Equal(t, ".yaml", persist.YAML.Ext())
}

func TestYAMLCodec_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ``},
		{"null", `~`},
		{"mapping", "key: volume\n"},
		{"unknown field", "- key: volume\n  value: {type: int, value: \"5\"}\n  extra: 1\n"},
		{"unknown type", "- key: volume\n  value: {type: long, value: \"5\"}\n"},
		{"missing value", "- key: volume\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := persist.YAML.Decode([]byte(tt.data))
			assert.ErrorIs(t, err, persist.ErrMalformed)
		})
	}
}

func TestCodecFor(t *testing.T) {
	c, err := persist.CodecFor("")
	require.NoError(t, err)
	assert.Equal(t, persist.JSON, c)

	c, err = persist.CodecFor("yml")
	require.NoError(t, err)
	assert.Equal(t, persist.YAML, c)

	_, err = persist.CodecFor("xml")
	assert.Error(t, err)
}

func TestDir_WritesExpectedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "config")
	d := persist.NewDir(dir, nil)

	require.NoError(t, d.Save("audio", []persist.Record{{Key: "volume", Value: value.OfInt(5)}}))

	assert.Equal(t, filepath.Join(dir, "audio.json"), d.FileFor("audio"))
	data, err := os.ReadFile(filepath.Join(dir, "audio.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"key":"volume","value":{"type":"int","value":"5"}}]`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not survive a save")
}

func TestDir_NamesCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	d := persist.NewDir(dir, persist.JSON)

	names, err := d.Names()
	require.NoError(t, err)
	assert.Empty(t, names)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDir_NamesSkipsHiddenAndDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.json"), []byte(`[]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.cfg"), []byte(`[]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".good.123.tmp"), []byte(`[`), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	names, err := persist.NewDir(dir, persist.JSON).Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"good", "other"}, names)
}

func TestDir_LoadForeignExtension(t *testing.T) {
	dir := t.TempDir()
	content := `[{"key":"k","value":{"type":"bool","value":"True"}}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.cfg"), []byte(content), 0o644))

	records, err := persist.NewDir(dir, persist.JSON).Load("legacy")
	require.NoError(t, err)
	require.Len(t, records, 1)
	b, err := records[0].Value.AsBool()
	require.NoError(t, err)
	assert.True(t, b)
}

func TestDir_LoadMalformedNamesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

	_, err := persist.NewDir(dir, persist.JSON).Load("broken")
	assert.ErrorIs(t, err, persist.ErrMalformed)
	assert.Contains(t, err.Error(), path)
}

func TestDir_SaveTruncates(t *testing.T) {
	dir := t.TempDir()
	d := persist.NewDir(dir, persist.JSON)

	require.NoError(t, d.Save("ns", mixedRecords()))
	require.NoError(t, d.Save("ns", nil))

	data, err := os.ReadFile(d.FileFor("ns"))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestNamespaceOf(t *testing.T) {
	assert.Equal(t, "audio", persist.NamespaceOf("/etc/mods/audio.json"))
	assert.Equal(t, "mod.audio", persist.NamespaceOf("mod.audio.yaml"))
	assert.Equal(t, "plain", persist.NamespaceOf("plain"))
}

func TestSQLite_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")

	first, err := persist.NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, first.Save("audio", mixedRecords()))
	require.NoError(t, first.Close())

	second, err := persist.NewSQLite(path)
	require.NoError(t, err)
	defer second.Close()

	records, err := second.Load("audio")
	require.NoError(t, err)
	assert.Equal(t, mixedRecords(), records)
}

func TestSQLite_InvalidPath(t *testing.T) {
	_, err := persist.NewSQLite("/nonexistent/path/settings.db")
	assert.Error(t, err)
}

func TestSQLite_CloseIdempotent(t *testing.T) {
	b, err := persist.NewSQLite(":memory:")
	require.NoError(t, err)

	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}

package luamod_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/randalmurphal/modcfg/pkg/modcfg"
	"github.com/randalmurphal/modcfg/pkg/modcfg/luamod"
	"github.com/randalmurphal/modcfg/pkg/modcfg/persist"
	"github.com/randalmurphal/modcfg/pkg/modcfg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, ns string, opts ...modcfg.Option) (*lua.LState, *luamod.Module, *modcfg.Store) {
	t.Helper()

	store := modcfg.New(append([]modcfg.Option{modcfg.WithLogger(nil)}, opts...)...)
	h, err := store.Namespace(ns)
	require.NoError(t, err)

	L := lua.NewState()
	t.Cleanup(L.Close)

	m := luamod.Register(L, h, luamod.WithLogger(nil))
	t.Cleanup(m.Close)
	return L, m, store
}

func TestLua_GetAndSet(t *testing.T) {
	L, _, store := setup(t, "audio")

	err := L.DoString(`
		config.set_int("volume", 7)
		config.set_string("device", "hw:0")
		config.set_float("pan", 0.5)
		config.set_double("gain", 1.25)
		config.set_bool("muted", true)
	`)
	require.NoError(t, err)

	v, err := store.GetInt("audio", "volume", 0)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	muted, err := store.GetBool("audio", "muted", false)
	require.NoError(t, err)
	assert.True(t, muted)

	require.NoError(t, L.DoString(`
		volume = config.get_int("volume", 1)
		missing = config.get_int("nope", 42)
		device = config.get_string("device")
		pan = config.get_float("pan", 0)
		gain = config.get_double("gain", 0)
		muted = config.get_bool("muted", false)
		wrongkind = config.get_bool("volume", true)
	`))
	assert.Equal(t, lua.LNumber(7), L.GetGlobal("volume"))
	assert.Equal(t, lua.LNumber(42), L.GetGlobal("missing"))
	assert.Equal(t, lua.LString("hw:0"), L.GetGlobal("device"))
	assert.Equal(t, lua.LNumber(0.5), L.GetGlobal("pan"))
	assert.Equal(t, lua.LNumber(1.25), L.GetGlobal("gain"))
	assert.Equal(t, lua.LTrue, L.GetGlobal("muted"))
	assert.Equal(t, lua.LTrue, L.GetGlobal("wrongkind"))
}

func TestLua_NamespaceIsolation(t *testing.T) {
	L, _, store := setup(t, "audio")
	require.NoError(t, store.SetInt("video", "fps", 60))

	require.NoError(t, L.DoString(`
		ns = config.namespace
		fps = config.get_int("fps", -1)
		has_fps = config.has("fps")
	`))
	assert.Equal(t, lua.LString("audio"), L.GetGlobal("ns"))
	assert.Equal(t, lua.LNumber(-1), L.GetGlobal("fps"))
	assert.Equal(t, lua.LFalse, L.GetGlobal("has_fps"))
}

func TestLua_KeysAndRemove(t *testing.T) {
	L, _, store := setup(t, "ui")
	require.NoError(t, store.SetString("ui", "theme", "dark"))
	require.NoError(t, store.SetInt("ui", "scale", 2))

	require.NoError(t, L.DoString(`
		local ks = config.keys()
		first, count = ks[1], #ks
		removed = config.remove("theme")
		again = config.remove("theme")
		has_theme = config.has("theme")
	`))
	assert.Equal(t, lua.LString("theme"), L.GetGlobal("first"))
	assert.Equal(t, lua.LNumber(2), L.GetGlobal("count"))
	assert.Equal(t, lua.LTrue, L.GetGlobal("removed"))
	assert.Equal(t, lua.LFalse, L.GetGlobal("again"))
	assert.Equal(t, lua.LFalse, L.GetGlobal("has_theme"))
}

func TestLua_Errors(t *testing.T) {
	L, _, store := setup(t, "mod")

	assert.Error(t, L.DoString(`config.set_int("", 1)`))
	assert.Error(t, L.DoString(`config.set_int("n", 1.5)`))
	assert.Error(t, L.DoString(`config.set_bool("b", "yes")`))

	// A corrupt value surfaces as a Lua error, not the default.
	backend := persist.NewMemory()
	backend.Put("mod", []persist.Record{{Key: "n", Value: value.TypedValue{Kind: value.Int, Text: "lots"}}})
	corrupt := modcfg.New(modcfg.WithBackend(backend), modcfg.WithLogger(nil))
	require.NoError(t, corrupt.LoadNamespace(context.Background(), "mod"))
	h, err := corrupt.Namespace("mod")
	require.NoError(t, err)

	L2 := lua.NewState()
	defer L2.Close()
	luamod.Register(L2, h, luamod.WithLogger(nil))

	err = L2.DoString(`config.get_int("n", 1)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `int value "lots"`)

	assert.Empty(t, store.GetKeys("mod"))
}

func TestLua_Save(t *testing.T) {
	backend := persist.NewMemory()
	L, _, _ := setup(t, "audio", modcfg.WithBackend(backend))

	require.NoError(t, L.DoString(`
		config.set_int("volume", 3)
		config.save()
	`))

	records, err := backend.Load("audio")
	require.NoError(t, err)
	assert.Equal(t, []persist.Record{{Key: "volume", Value: value.OfInt(3)}}, records)
}

func TestLua_SaveWithoutBackendRaises(t *testing.T) {
	L, _, _ := setup(t, "audio")
	err := L.DoString(`config.save()`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no persistence backend")
}

func TestLua_OnChangeFromScript(t *testing.T) {
	L, _, _ := setup(t, "audio")

	require.NoError(t, L.DoString(`
		seen = {}
		id = config.on_change(function(key, kind, value)
			table.insert(seen, key .. ":" .. kind .. ":" .. tostring(value))
		end)
		config.set_int("volume", 5)
		config.set_bool("muted", true)
		first, second = seen[1], seen[2]
		off = config.off_change(id)
		off_again = config.off_change(id)
		config.set_int("volume", 6)
		total = #seen
	`))
	assert.Equal(t, lua.LString("volume:int:5"), L.GetGlobal("first"))
	assert.Equal(t, lua.LString("muted:bool:true"), L.GetGlobal("second"))
	assert.Equal(t, lua.LTrue, L.GetGlobal("off"))
	assert.Equal(t, lua.LFalse, L.GetGlobal("off_again"))
	assert.Equal(t, lua.LNumber(2), L.GetGlobal("total"))
}

func TestLua_OnChangeFromHostIsQueued(t *testing.T) {
	L, m, store := setup(t, "audio")

	require.NoError(t, L.DoString(`
		calls = 0
		config.on_change(function(key, kind, value)
			calls = calls + 1
			last = value
		end)
	`))

	require.NoError(t, store.SetDouble("audio", "gain", 0.75))
	assert.Equal(t, lua.LNumber(0), L.GetGlobal("calls"), "host writes wait for Dispatch")

	assert.Equal(t, 1, m.Dispatch())
	assert.Equal(t, lua.LNumber(1), L.GetGlobal("calls"))
	assert.Equal(t, lua.LNumber(0.75), L.GetGlobal("last"))
	assert.Equal(t, 0, m.Dispatch())
}

func TestLua_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	L, m, store := setup(t, "audio")

	require.NoError(t, L.DoString(`
		ok_calls = 0
		config.on_change(function() error("boom") end)
		config.on_change(function() ok_calls = ok_calls + 1 end)
	`))

	require.NoError(t, store.SetInt("audio", "volume", 1))
	assert.Equal(t, 2, m.Dispatch())
	assert.Equal(t, lua.LNumber(1), L.GetGlobal("ok_calls"))
}

func TestLua_HandlerErrorIsLoggedWithNamespace(t *testing.T) {
	store := modcfg.New(modcfg.WithLogger(nil))
	h, err := store.Namespace("audio")
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	L := lua.NewState()
	defer L.Close()
	m := luamod.Register(L, h, luamod.WithLogger(logger))
	defer m.Close()

	require.NoError(t, L.DoString(`config.on_change(function() error("boom") end)`))
	require.NoError(t, store.SetInt("audio", "volume", 1))
	m.Dispatch()

	out := buf.String()
	assert.Contains(t, out, "lua change handler failed")
	assert.Contains(t, out, "namespace=audio")
	assert.Contains(t, out, "key=volume")
}

func TestLua_CloseDropsSubscriptions(t *testing.T) {
	L, m, store := setup(t, "audio")

	require.NoError(t, L.DoString(`config.on_change(function() end)`))
	assert.Equal(t, 1, store.Listeners("audio"))

	m.Close()
	assert.Equal(t, 0, store.Listeners("audio"))

	require.NoError(t, store.SetInt("audio", "volume", 1))
	assert.Equal(t, 0, m.Dispatch())
}

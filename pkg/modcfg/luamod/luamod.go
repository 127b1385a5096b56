// Package luamod exposes a mod's configuration namespace to Lua scripts.
//
// Register installs a global "config" table bound to one modcfg.Handle, so
// a script can only reach its own namespace:
//
//	local volume = config.get_int("volume", 10)
//	config.set_bool("muted", false)
//	config.save()
//
//	local id = config.on_change(function(key, kind, value)
//	    print(key .. " is now " .. tostring(value))
//	end)
//	config.off_change(id)
//
// An LState is not safe for concurrent use. Change handlers are therefore
// queued and run on the Lua goroutine: right after a set_* call from the
// script, or whenever the host calls Module.Dispatch.
package luamod

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/randalmurphal/modcfg/pkg/modcfg"
	"github.com/randalmurphal/modcfg/pkg/modcfg/observability"
	"github.com/randalmurphal/modcfg/pkg/modcfg/value"
)

// GlobalName is the Lua global holding the config table.
const GlobalName = "config"

// Option configures a Module.
type Option func(*Module)

// WithContext sets the context used by config.save(). Default: context.Background().
func WithContext(ctx context.Context) Option {
	return func(m *Module) {
		m.ctx = ctx
	}
}

// WithLogger sets the logger for failing change handlers. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Module) {
		m.logger = logger
	}
}

// Module is the config table installed into one Lua state.
type Module struct {
	handle *modcfg.Handle
	ctx    context.Context
	logger *slog.Logger

	L          *lua.LState
	handlerTbl *lua.LTable

	mu      sync.Mutex
	subs    map[string]*modcfg.Subscription
	nextID  uint64
	pending []queuedChange
}

type queuedChange struct {
	id     string
	change modcfg.Change
}

// Register installs the config table into L, bound to h's namespace.
func Register(L *lua.LState, h *modcfg.Handle, opts ...Option) *Module {
	m := &Module{
		handle: h,
		ctx:    context.Background(),
		logger: slog.Default(),
		L:      L,
		subs:   make(map[string]*modcfg.Subscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = observability.NamespaceLogger(m.logger, h.Namespace())

	m.handlerTbl = L.NewTable()

	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"get_string": m.getString,
		"get_int":    m.getInt,
		"get_float":  m.getFloat,
		"get_double": m.getDouble,
		"get_bool":   m.getBool,
		"set_string": m.setString,
		"set_int":    m.setInt,
		"set_float":  m.setFloat,
		"set_double": m.setDouble,
		"set_bool":   m.setBool,
		"has":        m.has,
		"keys":       m.keys,
		"remove":     m.remove,
		"save":       m.save,
		"on_change":  m.onChange,
		"off_change": m.offChange,
	})
	L.SetField(mod, "namespace", lua.LString(h.Namespace()))
	// Handler functions live in the module table so they are not collected.
	L.SetField(mod, "_handlers", m.handlerTbl)

	L.SetGlobal(GlobalName, mod)
	return m
}

// Handle returns the bound handle.
func (m *Module) Handle() *modcfg.Handle { return m.handle }

// Close drops every subscription made by the script. Queued changes are discarded.
func (m *Module) Close() {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[string]*modcfg.Subscription)
	m.pending = nil
	m.mu.Unlock()

	for id, sub := range subs {
		sub.Unsubscribe()
		m.handlerTbl.RawSetString(id, lua.LNil)
	}
}

// Dispatch runs queued change handlers and returns how many ran.
// Call it from the goroutine that owns the Lua state.
func (m *Module) Dispatch() int {
	ran := 0
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return ran
		}
		q := m.pending[0]
		m.pending = m.pending[1:]
		_, live := m.subs[q.id]
		m.mu.Unlock()

		if !live {
			continue
		}
		m.call(q)
		ran++
	}
}

func (m *Module) call(q queuedChange) {
	fn := m.handlerTbl.RawGetString(q.id)
	if fn.Type() != lua.LTFunction {
		return
	}

	err := m.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true},
		lua.LString(q.change.Key),
		lua.LString(q.change.Kind.String()),
		toLua(q.change.TypedValue()),
	)
	if err != nil && m.logger != nil {
		m.logger.Warn("lua change handler failed",
			slog.String("key", q.change.Key),
			slog.String("error", err.Error()),
		)
	}
}

// toLua converts a stored value to its natural Lua type. A corrupt
// payload is passed through as a string.
func toLua(v value.TypedValue) lua.LValue {
	switch v.Kind {
	case value.Int:
		if i, err := v.AsInt(); err == nil {
			return lua.LNumber(i)
		}
	case value.Float:
		if f, err := v.AsFloat(); err == nil {
			return lua.LNumber(f)
		}
	case value.Double:
		if f, err := v.AsDouble(); err == nil {
			return lua.LNumber(f)
		}
	case value.Bool:
		if b, err := v.AsBool(); err == nil {
			return lua.LBool(b)
		}
	}
	return lua.LString(v.Text)
}

func checkKey(L *lua.LState) string {
	key := L.CheckString(1)
	if key == "" {
		L.ArgError(1, "key cannot be empty")
	}
	return key
}

// raise turns a store error into a Lua error.
func raise(L *lua.LState, fn string, err error) int {
	L.RaiseError("config.%s: %v", fn, err)
	return 0
}

// get_string(key, default?) -> string
func (m *Module) getString(L *lua.LState) int {
	v, err := m.handle.GetString(checkKey(L), L.OptString(2, ""))
	if err != nil {
		return raise(L, "get_string", err)
	}
	L.Push(lua.LString(v))
	return 1
}

// get_int(key, default?) -> number
func (m *Module) getInt(L *lua.LState) int {
	v, err := m.handle.GetInt(checkKey(L), L.OptInt(2, 0))
	if err != nil {
		return raise(L, "get_int", err)
	}
	L.Push(lua.LNumber(v))
	return 1
}

// get_float(key, default?) -> number
func (m *Module) getFloat(L *lua.LState) int {
	v, err := m.handle.GetFloat(checkKey(L), float32(L.OptNumber(2, 0)))
	if err != nil {
		return raise(L, "get_float", err)
	}
	L.Push(lua.LNumber(v))
	return 1
}

// get_double(key, default?) -> number
func (m *Module) getDouble(L *lua.LState) int {
	v, err := m.handle.GetDouble(checkKey(L), float64(L.OptNumber(2, 0)))
	if err != nil {
		return raise(L, "get_double", err)
	}
	L.Push(lua.LNumber(v))
	return 1
}

// get_bool(key, default?) -> boolean
func (m *Module) getBool(L *lua.LState) int {
	v, err := m.handle.GetBool(checkKey(L), L.OptBool(2, false))
	if err != nil {
		return raise(L, "get_bool", err)
	}
	L.Push(lua.LBool(v))
	return 1
}

// set finishes a set_* call: report the error or flush handlers the write queued.
func (m *Module) set(L *lua.LState, fn string, err error) int {
	if err != nil {
		return raise(L, fn, err)
	}
	m.Dispatch()
	return 0
}

func (m *Module) setString(L *lua.LState) int {
	key := checkKey(L)
	return m.set(L, "set_string", m.handle.SetString(key, L.CheckString(2)))
}

func (m *Module) setInt(L *lua.LState) int {
	key := checkKey(L)
	n := L.CheckNumber(2)
	if lua.LNumber(int(n)) != n {
		L.ArgError(2, fmt.Sprintf("integer expected, got %v", n))
	}
	return m.set(L, "set_int", m.handle.SetInt(key, int(n)))
}

func (m *Module) setFloat(L *lua.LState) int {
	key := checkKey(L)
	return m.set(L, "set_float", m.handle.SetFloat(key, float32(L.CheckNumber(2))))
}

func (m *Module) setDouble(L *lua.LState) int {
	key := checkKey(L)
	return m.set(L, "set_double", m.handle.SetDouble(key, float64(L.CheckNumber(2))))
}

func (m *Module) setBool(L *lua.LState) int {
	key := checkKey(L)
	return m.set(L, "set_bool", m.handle.SetBool(key, L.CheckBool(2)))
}

// has(key) -> boolean
func (m *Module) has(L *lua.LState) int {
	L.Push(lua.LBool(m.handle.DoesKeyExist(checkKey(L))))
	return 1
}

// keys() -> {key, ...} in insertion order
func (m *Module) keys(L *lua.LState) int {
	tbl := L.NewTable()
	for i, k := range m.handle.GetKeys() {
		tbl.RawSetInt(i+1, lua.LString(k))
	}
	L.Push(tbl)
	return 1
}

// remove(key) -> boolean
func (m *Module) remove(L *lua.LState) int {
	L.Push(lua.LBool(m.handle.RemoveKey(checkKey(L))))
	return 1
}

// save()
func (m *Module) save(L *lua.LState) int {
	if err := m.handle.Save(m.ctx); err != nil {
		return raise(L, "save", err)
	}
	return 0
}

// on_change(fn) -> id
func (m *Module) onChange(L *lua.LState) int {
	fn := L.CheckFunction(1)

	m.mu.Lock()
	m.nextID++
	id := fmt.Sprintf("%s#%d", m.handle.Namespace(), m.nextID)
	m.mu.Unlock()

	m.handlerTbl.RawSetString(id, fn)

	sub := m.handle.OnChange(func(c modcfg.Change) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, live := m.subs[id]; live {
			m.pending = append(m.pending, queuedChange{id: id, change: c})
		}
	})

	m.mu.Lock()
	m.subs[id] = sub
	m.mu.Unlock()

	L.Push(lua.LString(id))
	return 1
}

// off_change(id) -> boolean
func (m *Module) offChange(L *lua.LState) int {
	id := L.CheckString(1)

	m.mu.Lock()
	sub, ok := m.subs[id]
	delete(m.subs, id)
	m.mu.Unlock()

	if !ok {
		L.Push(lua.LFalse)
		return 1
	}
	sub.Unsubscribe()
	m.handlerTbl.RawSetString(id, lua.LNil)
	L.Push(lua.LTrue)
	return 1
}

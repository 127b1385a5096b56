// Package keybind lets mods declare keybindings whose keys users can
// override through the configuration store.
//
// A mod registers each action with its default keys. The user's choice is
// kept in the mod's namespace under "keybind.<action>", so it is saved and
// loaded with the rest of the mod's settings. Asking for an action that was
// never registered is a bug in the calling mod and fails with
// ErrNotRegistered.
package keybind

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/modcfg/pkg/modcfg"
	"github.com/randalmurphal/modcfg/pkg/modcfg/registry"
)

// KeyPrefix prefixes the store key holding a user override.
const KeyPrefix = "keybind."

var (
	// ErrNotRegistered indicates an action that was never registered.
	ErrNotRegistered = registry.ErrNotRegistered

	// ErrAlreadyRegistered indicates a second registration of an action.
	ErrAlreadyRegistered = registry.ErrAlreadyRegistered

	// ErrInvalidAction indicates an action without a name or default keys.
	ErrInvalidAction = errors.New("invalid action")
)

// Action is a named command a mod exposes to the keyboard.
type Action struct {
	Name        string
	Keys        string // default chord, e.g. "ctrl+m"
	Description string
}

// Binding is an action together with the keys currently bound to it.
type Binding struct {
	Namespace  string
	Action     Action
	Keys       string
	Overridden bool
}

// Manager tracks registered actions and resolves their bindings.
type Manager struct {
	store   *modcfg.Store
	actions *registry.Registry[string, Action]
}

// New creates a manager backed by store.
func New(store *modcfg.Store) *Manager {
	return &Manager{
		store:   store,
		actions: registry.New[string, Action](),
	}
}

func actionKey(ns, name string) string {
	return ns + "/" + name
}

// StoreKey returns the configuration key holding the override for action.
func StoreKey(action string) string {
	return KeyPrefix + action
}

// Register declares an action in ns.
func (m *Manager) Register(ns string, a Action) error {
	if ns == "" {
		return modcfg.ErrEmptyNamespace
	}
	if a.Name == "" || strings.ContainsRune(a.Name, '/') {
		return fmt.Errorf("%w: name %q", ErrInvalidAction, a.Name)
	}
	if Normalize(a.Keys) == "" {
		return fmt.Errorf("%w: %s has no default keys", ErrInvalidAction, a.Name)
	}
	return m.actions.RegisterNew(actionKey(ns, a.Name), a)
}

func (m *Manager) lookup(ns, name string) (Action, error) {
	a, err := m.actions.Lookup(actionKey(ns, name))
	if err != nil {
		return Action{}, fmt.Errorf("keybinding: %w", err)
	}
	return a, nil
}

// Binding returns the keys bound to an action: the user override if one is
// stored, the registered default otherwise.
func (m *Manager) Binding(ns, name string) (string, error) {
	b, err := m.binding(ns, name)
	if err != nil {
		return "", err
	}
	return b.Keys, nil
}

func (m *Manager) binding(ns, name string) (Binding, error) {
	a, err := m.lookup(ns, name)
	if err != nil {
		return Binding{}, err
	}

	keys, err := m.store.GetString(ns, StoreKey(name), "")
	if err != nil {
		return Binding{}, err
	}
	if keys == "" {
		return Binding{Namespace: ns, Action: a, Keys: a.Keys}, nil
	}
	return Binding{Namespace: ns, Action: a, Keys: keys, Overridden: true}, nil
}

// Rebind stores a user override for an action.
func (m *Manager) Rebind(ns, name, keys string) error {
	if _, err := m.lookup(ns, name); err != nil {
		return err
	}
	keys = Normalize(keys)
	if keys == "" {
		return fmt.Errorf("%w: empty keys for %s", ErrInvalidAction, name)
	}
	return m.store.SetString(ns, StoreKey(name), keys)
}

// Reset drops the user override so the default applies again.
// Reports whether an override existed.
func (m *Manager) Reset(ns, name string) (bool, error) {
	if _, err := m.lookup(ns, name); err != nil {
		return false, err
	}
	return m.store.RemoveKey(ns, StoreKey(name)), nil
}

// Bindings returns every action registered in ns, sorted by name.
func (m *Manager) Bindings(ns string) ([]Binding, error) {
	prefix := ns + "/"

	var out []Binding
	for _, key := range m.actions.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		b, err := m.binding(ns, strings.TrimPrefix(key, prefix))
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Resolve finds the action in ns bound to keys.
func (m *Manager) Resolve(ns, keys string) (Action, bool) {
	want := Normalize(keys)
	if want == "" {
		return Action{}, false
	}

	bindings, err := m.Bindings(ns)
	if err != nil {
		return Action{}, false
	}
	for _, b := range bindings {
		if Normalize(b.Keys) == want {
			return b.Action, true
		}
	}
	return Action{}, false
}

// Normalize lowercases a chord and strips whitespace: " Ctrl + M " is "ctrl+m".
func Normalize(keys string) string {
	return strings.ToLower(strings.Join(strings.Fields(keys), ""))
}

package modcfg

import (
	"context"
	"fmt"

	"github.com/randalmurphal/modcfg/pkg/modcfg/persist"
)

// Handle is a Store bound to one namespace. The host gives each mod its
// own Handle so the mod never names its namespace itself.
type Handle struct {
	store *Store
	ns    string
}

// Namespace returns a Handle for ns. The namespace must be a valid single
// path element so that it can be persisted; it is not created until the
// first Set.
func (s *Store) Namespace(ns string) (*Handle, error) {
	if ns == "" {
		return nil, ErrEmptyNamespace
	}
	if err := persist.ValidateNamespace(ns); err != nil {
		return nil, fmt.Errorf("bind namespace: %w", err)
	}
	return &Handle{store: s, ns: ns}, nil
}

// Namespace returns the bound namespace.
func (h *Handle) Namespace() string { return h.ns }

// Store returns the underlying store.
func (h *Handle) Store() *Store { return h.store }

// GetString returns the String value at key, or def if absent or of another kind.
func (h *Handle) GetString(key, def string) (string, error) {
	return h.store.GetString(h.ns, key, def)
}

// GetInt returns the Int value at key, or def if absent or of another kind.
func (h *Handle) GetInt(key string, def int) (int, error) {
	return h.store.GetInt(h.ns, key, def)
}

// GetFloat returns the Float value at key, or def if absent or of another kind.
func (h *Handle) GetFloat(key string, def float32) (float32, error) {
	return h.store.GetFloat(h.ns, key, def)
}

// GetDouble returns the Double value at key, or def if absent or of another kind.
func (h *Handle) GetDouble(key string, def float64) (float64, error) {
	return h.store.GetDouble(h.ns, key, def)
}

// GetBool returns the Bool value at key, or def if absent or of another kind.
func (h *Handle) GetBool(key string, def bool) (bool, error) {
	return h.store.GetBool(h.ns, key, def)
}

// SetString stores v at key as a String.
func (h *Handle) SetString(key, v string) error {
	return h.store.SetString(h.ns, key, v)
}

// SetInt stores v at key as an Int.
func (h *Handle) SetInt(key string, v int) error {
	return h.store.SetInt(h.ns, key, v)
}

// SetFloat stores v at key as a Float.
func (h *Handle) SetFloat(key string, v float32) error {
	return h.store.SetFloat(h.ns, key, v)
}

// SetDouble stores v at key as a Double.
func (h *Handle) SetDouble(key string, v float64) error {
	return h.store.SetDouble(h.ns, key, v)
}

// SetBool stores v at key as a Bool.
func (h *Handle) SetBool(key string, v bool) error {
	return h.store.SetBool(h.ns, key, v)
}

// DoesKeyExist reports whether key holds a value of any kind.
func (h *Handle) DoesKeyExist(key string) bool {
	return h.store.DoesKeyExist(h.ns, key)
}

// GetKeys returns the keys of the bound namespace in insertion order.
func (h *Handle) GetKeys() []string {
	return h.store.GetKeys(h.ns)
}

// RemoveKey deletes key and reports whether it existed. Listeners are not notified.
func (h *Handle) RemoveKey(key string) bool {
	return h.store.RemoveKey(h.ns, key)
}

// Save persists the bound namespace.
func (h *Handle) Save(ctx context.Context) error {
	return h.store.SaveNamespace(ctx, h.ns)
}

// OnChange subscribes fn to changes in the bound namespace.
func (h *Handle) OnChange(fn Listener) *Subscription {
	return h.store.Subscribe(h.ns, fn)
}

// Package registry provides a generic thread-safe registry keyed by ordered keys.
//
// The configuration store keeps one registry of namespaces, and the
// keybinding catalogue keeps one registry of declared actions.
//
// # Basic Usage
//
//	r := registry.New[string, int]()
//	r.Register("volume", 5)
//
//	v, ok := r.Get("volume")
//
// # Required Registrations
//
// Lookup distinguishes "never registered" from ordinary absence. It is
// meant for constructs a caller must declare before use:
//
//	action, err := actions.Lookup("mod.audio/mute")
//	if errors.Is(err, registry.ErrNotRegistered) {
//	    // programming error in the calling mod
//	}
//
// # Lazy Initialization
//
// GetOrCreate is atomic. The factory runs at most once per key, which makes
// check-then-create safe when several goroutines touch a new key at once:
//
//	ns := namespaces.GetOrCreate("mod.audio", newNamespace)
//
// # Ordering
//
// Keys and Range return entries in ascending key order. Range iterates a
// snapshot, so the callback may mutate the registry.
package registry

package modcfg

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/randalmurphal/modcfg/pkg/modcfg/observability"
	"github.com/randalmurphal/modcfg/pkg/modcfg/persist"
	"github.com/randalmurphal/modcfg/pkg/modcfg/registry"
	"github.com/randalmurphal/modcfg/pkg/modcfg/value"
)

// Store is a table of namespaces, each mapping keys to typed values.
//
// A Store is created once by the host and handed to every mod, usually as a
// namespace-bound Handle. It is safe for concurrent use.
type Store struct {
	namespaces *registry.Registry[string, *namespace]

	backend persist.Backend
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		namespaces: registry.New[string, *namespace](),
		logger:     slog.Default(),
		metrics:    observability.NoopMetrics{},
		spans:      observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// namespace owns one value table and its listeners behind one mutex.
// The entry is created on first Set or Subscribe; table stays nil until a
// value is stored or loaded, so a namespace with only listeners does not
// exist for lookups.
type namespace struct {
	name string

	// io serializes backend reads and writes of this namespace.
	io sync.Mutex

	mu         sync.Mutex
	table      *table
	listeners  []*Subscription
	pending    []Change
	delivering bool

	// disk holds the records last written to or read from the backend.
	// It is only meaningful when diskKnown is set.
	disk      []persist.Record
	diskKnown bool
}

func (s *Store) namespaceFor(name string) *namespace {
	return s.namespaces.GetOrCreate(name, func() *namespace {
		return &namespace{name: name}
	})
}

// table keeps insertion order so saved files diff cleanly.
type table struct {
	keys   []string
	values map[string]value.TypedValue
}

func newTable(capacity int) *table {
	return &table{
		keys:   make([]string, 0, capacity),
		values: make(map[string]value.TypedValue, capacity),
	}
}

func (t *table) put(key string, v value.TypedValue) {
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = v
}

func (t *table) remove(key string) bool {
	if _, ok := t.values[key]; !ok {
		return false
	}
	delete(t.values, key)
	t.keys = slices.DeleteFunc(t.keys, func(k string) bool { return k == key })
	return true
}

func (t *table) records() []persist.Record {
	out := make([]persist.Record, len(t.keys))
	for i, k := range t.keys {
		out[i] = persist.Record{Key: k, Value: t.values[k]}
	}
	return out
}

// Get returns the raw value stored at key if its kind equals kind.
func (s *Store) Get(ns, key string, kind value.Kind) (value.TypedValue, bool) {
	v, ok := s.Value(ns, key)
	if !ok || v.Kind != kind {
		return value.TypedValue{}, false
	}
	return v, true
}

// Value returns the value stored at key whatever its kind.
func (s *Store) Value(ns, key string) (value.TypedValue, bool) {
	n, ok := s.namespaces.Get(ns)
	if !ok {
		return value.TypedValue{}, false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.table == nil {
		return value.TypedValue{}, false
	}
	v, ok := n.table.values[key]
	return v, ok
}

// getAs resolves a typed read. Absence or a different kind yields def;
// a matching kind with an unparsable payload yields a CorruptValueError.
func getAs[T any](s *Store, ns, key string, kind value.Kind, def T, conv func(value.TypedValue) (T, error)) (T, error) {
	v, ok := s.Get(ns, key, kind)
	if !ok {
		return def, nil
	}
	out, err := conv(v)
	if err != nil {
		var zero T
		return zero, &CorruptValueError{Namespace: ns, Key: key, Value: v, Err: err}
	}
	return out, nil
}

// GetString returns the String value at key, or def if absent or of another kind.
func (s *Store) GetString(ns, key, def string) (string, error) {
	return getAs(s, ns, key, value.String, def, value.TypedValue.AsString)
}

// GetInt returns the Int value at key, or def if absent or of another kind.
func (s *Store) GetInt(ns, key string, def int) (int, error) {
	return getAs(s, ns, key, value.Int, def, value.TypedValue.AsInt)
}

// GetFloat returns the Float value at key, or def if absent or of another kind.
func (s *Store) GetFloat(ns, key string, def float32) (float32, error) {
	return getAs(s, ns, key, value.Float, def, value.TypedValue.AsFloat)
}

// GetDouble returns the Double value at key, or def if absent or of another kind.
func (s *Store) GetDouble(ns, key string, def float64) (float64, error) {
	return getAs(s, ns, key, value.Double, def, value.TypedValue.AsDouble)
}

// GetBool returns the Bool value at key, or def if absent or of another kind.
func (s *Store) GetBool(ns, key string, def bool) (bool, error) {
	return getAs(s, ns, key, value.Bool, def, value.TypedValue.AsBool)
}

// Set stores v at key, creating the namespace if needed, and notifies the
// namespace's listeners. The last write wins, kind included.
//
// Errors are reserved for caller mistakes: an empty namespace or key, or a
// value whose text does not parse as its kind.
func (s *Store) Set(ns, key string, v value.TypedValue) error {
	if ns == "" {
		return ErrEmptyNamespace
	}
	if key == "" {
		return ErrEmptyKey
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("set %s/%s: %w", ns, key, err)
	}

	n := s.namespaceFor(ns)

	n.mu.Lock()
	if n.table == nil {
		n.table = newTable(8)
	}
	n.table.put(key, v)
	deliver := n.enqueueLocked(Change{Namespace: ns, Key: key, Kind: v.Kind, Value: v.Text})
	n.mu.Unlock()

	s.metrics.RecordSet(context.Background(), ns)

	if deliver {
		s.deliver(n)
	}
	return nil
}

// SetString stores a String value.
func (s *Store) SetString(ns, key, v string) error {
	return s.Set(ns, key, value.OfString(v))
}

// SetInt stores an Int value.
func (s *Store) SetInt(ns, key string, v int) error {
	return s.Set(ns, key, value.OfInt(v))
}

// SetFloat stores a Float value.
func (s *Store) SetFloat(ns, key string, v float32) error {
	return s.Set(ns, key, value.OfFloat(v))
}

// SetDouble stores a Double value.
func (s *Store) SetDouble(ns, key string, v float64) error {
	return s.Set(ns, key, value.OfDouble(v))
}

// SetBool stores a Bool value.
func (s *Store) SetBool(ns, key string, v bool) error {
	return s.Set(ns, key, value.OfBool(v))
}

// DoesKeyExist reports whether the namespace exists and holds key, of any kind.
func (s *Store) DoesKeyExist(ns, key string) bool {
	n, ok := s.namespaces.Get(ns)
	if !ok {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.table == nil {
		return false
	}
	_, ok = n.table.values[key]
	return ok
}

// GetKeys returns the keys of a namespace in insertion order.
// Returns an empty slice for an absent namespace.
func (s *Store) GetKeys(ns string) []string {
	n, ok := s.namespaces.Get(ns)
	if !ok {
		return []string{}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.table == nil {
		return []string{}
	}
	return slices.Clone(n.table.keys)
}

// RemoveKey deletes key and reports whether it existed.
// Removal does not notify listeners.
func (s *Store) RemoveKey(ns, key string) bool {
	n, ok := s.namespaces.Get(ns)
	if !ok {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.table == nil {
		return false
	}
	return n.table.remove(key)
}

// Namespaces returns every namespace holding a table, in ascending order.
// Namespaces that only have listeners are not included.
func (s *Store) Namespaces() []string {
	var names []string
	s.namespaces.Range(func(name string, n *namespace) bool {
		n.mu.Lock()
		exists := n.table != nil
		n.mu.Unlock()
		if exists {
			names = append(names, name)
		}
		return true
	})
	if names == nil {
		return []string{}
	}
	return names
}

// snapshotForSave copies a namespace's records and remembers them as the
// backend's contents. A namespace without a table yields an empty list.
func (n *namespace) snapshotForSave() []persist.Record {
	n.mu.Lock()
	defer n.mu.Unlock()

	records := []persist.Record{}
	if n.table != nil {
		records = n.table.records()
	}
	n.disk, n.diskKnown = records, true
	return records
}

// forgetDisk marks the backend's contents as unknown after a failed save.
func (n *namespace) forgetDisk() {
	n.mu.Lock()
	n.disk, n.diskKnown = nil, false
	n.mu.Unlock()
}

// install replaces a namespace's table with records and returns the
// changes relative to the previous table. Listeners are kept.
//
// With skipOwn set, records identical to what the store last wrote or read
// are not installed: the backend holds nothing the table does not already
// reflect, and installing would revert writes made since.
func (n *namespace) install(records []persist.Record, skipOwn bool) (changes []Change, installed bool) {
	fresh := newTable(len(records))
	for _, r := range records {
		fresh.put(r.Key, r.Value)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if skipOwn && n.diskKnown && slices.Equal(n.disk, records) {
		return nil, false
	}

	for _, k := range fresh.keys {
		v := fresh.values[k]
		if n.table != nil {
			if old, ok := n.table.values[k]; ok && old == v {
				continue
			}
		}
		changes = append(changes, Change{Namespace: n.name, Key: k, Kind: v.Kind, Value: v.Text})
	}
	n.table = fresh
	n.disk, n.diskKnown = records, true
	return changes, true
}

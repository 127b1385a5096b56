package persist

import (
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-memory backend for tests and ephemeral hosts.
// Data is lost when the process exits.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]Record
	closed bool
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]Record)}
}

// Names implements Backend.
func (m *Memory) Names() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	names := make([]string, 0, len(m.data))
	for ns := range m.data {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names, nil
}

// Load implements Backend.
func (m *Memory) Load(namespace string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	records, ok := m.data[namespace]
	if !ok {
		return nil, fmt.Errorf("%s: %w", namespace, ErrNotFound)
	}
	if err := ValidateRecords(records); err != nil {
		return nil, fmt.Errorf("%s: %w", namespace, err)
	}
	return cloneRecords(records), nil
}

// Save implements Backend.
func (m *Memory) Save(namespace string, records []Record) error {
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.data[namespace] = cloneRecords(records)
	return nil
}

// Put stores records without validation. Tests use it to plant malformed data.
func (m *Memory) Put(namespace string, records []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data != nil {
		m.data[namespace] = cloneRecords(records)
	}
}

// Close implements Backend.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Len returns the number of stored namespaces.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// String identifies the backend in logs.
func (m *Memory) String() string { return "memory" }

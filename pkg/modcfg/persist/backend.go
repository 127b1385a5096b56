// Package persist provides durable storage for configuration namespaces.
package persist

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/randalmurphal/modcfg/pkg/modcfg/value"
)

// Backend persists whole namespaces as ordered record lists.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Names lists every namespace the backend holds.
	// Returns an empty slice (not error) when there are none.
	Names() ([]string, error)

	// Load returns the records of one namespace in stored order.
	// Returns ErrNotFound if the namespace was never saved.
	// Returns an error wrapping ErrMalformed if the stored data is invalid.
	Load(namespace string) ([]Record, error)

	// Save replaces the stored records of a namespace.
	Save(namespace string, records []Record) error

	// Close releases any resources (connections, files).
	Close() error
}

// Record is one persisted key with its typed value.
type Record struct {
	Key   string
	Value value.TypedValue
}

// Sentinel errors for persistence operations.
var (
	// ErrNotFound indicates a namespace that was never saved.
	ErrNotFound = errors.New("namespace not found")

	// ErrMalformed indicates stored data that is not a well-formed record list.
	ErrMalformed = errors.New("malformed configuration data")

	// ErrInvalidNamespace indicates a namespace that cannot name a storage unit.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrClosed indicates the backend has been closed.
	ErrClosed = errors.New("backend closed")
)

// ValidateNamespace rejects identifiers that cannot be used as a single file name.
// A leading dot is rejected too: directory backends treat such files as hidden.
func ValidateNamespace(namespace string) error {
	switch {
	case namespace == "":
		return fmt.Errorf("%w: empty", ErrInvalidNamespace)
	case strings.HasPrefix(namespace, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidNamespace, namespace)
	case strings.ContainsAny(namespace, `/\`) || strings.ContainsRune(namespace, filepath.Separator):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidNamespace, namespace)
	case strings.ContainsRune(namespace, 0):
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidNamespace, namespace)
	}
	return nil
}

// ValidateRecords checks that keys are non-empty and unique and that every
// kind is known. Payloads are not parsed; a corrupt payload surfaces when
// the value is read.
func ValidateRecords(records []Record) error {
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.Key == "" {
			return fmt.Errorf("%w: record %d has an empty key", ErrMalformed, i)
		}
		if !r.Value.Kind.Valid() {
			return fmt.Errorf("%w: record %d (%s): %v", ErrMalformed, i, r.Key, value.ErrUnknownKind)
		}
		if _, dup := seen[r.Key]; dup {
			return fmt.Errorf("%w: duplicate key %q", ErrMalformed, r.Key)
		}
		seen[r.Key] = struct{}{}
	}
	return nil
}

func cloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	return out
}

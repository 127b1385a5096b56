package modcfg

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/modcfg/pkg/modcfg/value"
)

// Sentinel errors for store operations.
var (
	// ErrEmptyNamespace indicates a write or binding with an empty namespace.
	ErrEmptyNamespace = errors.New("namespace cannot be empty")

	// ErrEmptyKey indicates a write with an empty key.
	ErrEmptyKey = errors.New("key cannot be empty")

	// ErrNoBackend indicates a load or save on a store built without WithBackend.
	ErrNoBackend = errors.New("store has no persistence backend")
)

// CorruptValueError reports a stored value whose kind tag matched the
// request but whose payload does not parse. It is never turned into the
// caller's default: whatever wrote the value broke the store's invariant.
type CorruptValueError struct {
	// Namespace holds the value.
	Namespace string
	// Key is the value's key.
	Key string
	// Value is the stored value.
	Value value.TypedValue
	// Err is the parse failure; it matches value.ErrCorrupt.
	Err error
}

// Error implements the error interface.
func (e *CorruptValueError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Namespace, e.Key, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CorruptValueError) Unwrap() error {
	return e.Err
}

// NamespaceError wraps errors from persisting one namespace.
type NamespaceError struct {
	// Namespace is the namespace being loaded or saved.
	Namespace string
	// Op is the operation that failed ("load", "save").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *NamespaceError) Error() string {
	return fmt.Sprintf("%s namespace %s: %v", e.Op, e.Namespace, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NamespaceError) Unwrap() error {
	return e.Err
}

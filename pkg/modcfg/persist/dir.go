package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Dir stores each namespace as one file, <path>/<namespace><ext>.
//
// Names lists every regular file in the directory whatever its
// extension; the namespace is the file name without its extension.
// Hidden files (leading dot) are skipped, which keeps editor swap files
// and interrupted temporary writes out of the store.
type Dir struct {
	path  string
	codec Codec

	mu     sync.Mutex // serializes writes to the same directory
	closed bool
}

// NewDir creates a directory backend. A nil codec selects JSON.
// The directory is created lazily by Names and Save.
func NewDir(path string, codec Codec) *Dir {
	if codec == nil {
		codec = JSON
	}
	return &Dir{path: path, codec: codec}
}

// Path returns the configuration directory.
func (d *Dir) Path() string { return d.path }

// String returns the directory path.
func (d *Dir) String() string { return d.path }

// Codec returns the codec used for encoding files.
func (d *Dir) Codec() Codec { return d.codec }

// FileFor returns the file a namespace is saved to.
func (d *Dir) FileFor(namespace string) string {
	return filepath.Join(d.path, namespace+d.codec.Ext())
}

// NamespaceOf maps a file path back to its namespace identifier.
func NamespaceOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Names implements Backend. The directory is created if missing.
func (d *Dir) Names() ([]string, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("read config directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ns := NamespaceOf(e.Name())
		if ns == "" {
			continue
		}
		if _, dup := seen[ns]; dup {
			continue
		}
		seen[ns] = struct{}{}
		names = append(names, ns)
	}
	sort.Strings(names)
	return names, nil
}

// Load implements Backend.
//
// The file with the codec's extension is preferred. When it does not exist,
// any other regular file whose stem is the namespace is decoded with the
// codec, so a directory of "<ns>.cfg" files still loads.
func (d *Dir) Load(namespace string) ([]Record, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}

	path, err := d.locate(namespace)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", namespace, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	records, err := d.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

func (d *Dir) locate(namespace string) (string, error) {
	preferred := d.FileFor(namespace)
	if _, err := os.Stat(preferred); err == nil {
		return preferred, nil
	}

	matches, err := filepath.Glob(filepath.Join(d.path, globEscape(namespace)+".*"))
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", namespace, err)
	}
	sort.Strings(matches)
	for _, m := range matches {
		if NamespaceOf(m) != namespace {
			continue
		}
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			return m, nil
		}
	}
	exact := filepath.Join(d.path, namespace)
	if info, err := os.Stat(exact); err == nil && info.Mode().IsRegular() {
		return exact, nil
	}
	return preferred, nil
}

// Save implements Backend. The file is replaced atomically: records are
// written to a hidden temporary file that is then renamed over the target.
func (d *Dir) Save(namespace string, records []Record) error {
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}

	data, err := d.codec.Encode(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", namespace, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(d.path, "."+namespace+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", namespace, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", namespace, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", namespace, err)
	}
	if err := os.Rename(tmpName, d.FileFor(namespace)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", namespace, err)
	}
	return nil
}

// Close implements Backend.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Dir) checkOpen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return nil
}

// globEscape escapes glob metacharacters so a namespace matches literally.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

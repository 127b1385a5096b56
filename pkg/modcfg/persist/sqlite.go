package persist

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/modcfg/pkg/modcfg/value"
)

// SQLite stores every namespace in one database, one row per record.
// It suits hosts that prefer a single file over a directory of files.
type SQLite struct {
	path   string
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLite opens (or creates) a settings database.
// The path should be a file path (e.g., "./settings.db") or ":memory:" for testing.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A ":memory:" database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			position INTEGER NOT NULL,
			kind TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (namespace, key)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS namespaces (
			namespace TEXT PRIMARY KEY
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLite{path: path, db: db}, nil
}

// String returns the database path.
func (s *SQLite) String() string {
	return "sqlite:" + s.path
}

// Names implements Backend.
func (s *SQLite) Names() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(`SELECT namespace FROM namespaces ORDER BY namespace`)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("scan namespace: %w", err)
		}
		names = append(names, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate namespaces: %w", err)
	}
	return names, nil
}

// Load implements Backend.
func (s *SQLite) Load(namespace string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM namespaces WHERE namespace = ?`, namespace).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", namespace, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%s: %w", namespace, ErrNotFound)
	}

	rows, err := s.db.Query(`
		SELECT key, kind, value FROM settings
		WHERE namespace = ?
		ORDER BY position
	`, namespace)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", namespace, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var key, tag, text string
		if err := rows.Scan(&key, &tag, &text); err != nil {
			return nil, fmt.Errorf("scan %s: %w", namespace, err)
		}
		kind, err := value.ParseKind(tag)
		if err != nil {
			return nil, fmt.Errorf("%w: %s/%s: %v", ErrMalformed, namespace, key, err)
		}
		records = append(records, Record{Key: key, Value: value.TypedValue{Kind: kind, Text: text}})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", namespace, err)
	}
	if err := ValidateRecords(records); err != nil {
		return nil, fmt.Errorf("%s: %w", namespace, err)
	}
	return records, nil
}

// Save implements Backend. The namespace's rows are replaced in one transaction.
func (s *SQLite) Save(namespace string, records []Record) error {
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.Exec(`INSERT OR IGNORE INTO namespaces (namespace) VALUES (?)`, namespace); err != nil {
		return fmt.Errorf("save %s: %w", namespace, err)
	}
	if _, err := tx.Exec(`DELETE FROM settings WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("save %s: %w", namespace, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO settings (namespace, key, position, kind, value)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("save %s: %w", namespace, err)
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.Exec(namespace, r.Key, i, r.Value.Kind.String(), r.Value.Text); err != nil {
			return fmt.Errorf("save %s/%s: %w", namespace, r.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", namespace, err)
	}
	return nil
}

// Close implements Backend.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/randalmurphal/modcfg/pkg/modcfg/persist"
)

// Backend names accepted in Settings.Backend.
const (
	BackendDir    = "dir"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// ErrInvalidSettings indicates settings that cannot be used to open a store.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings describes where and how the host keeps mod configuration.
type Settings struct {
	// Dir is the configuration directory for the dir backend.
	Dir string
	// Format is the file format for the dir backend: "json" or "yaml".
	Format string
	// Backend selects the storage: "dir", "sqlite" or "memory".
	Backend string
	// DBPath is the database file for the sqlite backend.
	DBPath string
	// Watch enables reloading files edited while the host runs.
	Watch bool
	// WatchDebounce is the quiet period before an edit is reloaded.
	WatchDebounce time.Duration
	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		Dir:           "config",
		Format:        "json",
		Backend:       BackendDir,
		DBPath:        "settings.db",
		WatchDebounce: 100 * time.Millisecond,
		LogLevel:      "info",
	}
}

// SettingsFrom reads settings from the "store" table of cfg, falling back
// to Defaults for anything absent:
//
//	store:
//	  dir: config
//	  format: yaml
//	  backend: dir
//	  watch: true
//	  watch_debounce: 250ms
//	  log_level: debug
func SettingsFrom(cfg Config) Settings {
	d := Defaults()
	s := cfg.Section("store")
	return Settings{
		Dir:           s.String("dir", d.Dir),
		Format:        s.String("format", d.Format),
		Backend:       s.String("backend", d.Backend),
		DBPath:        s.String("db", d.DBPath),
		Watch:         s.Bool("watch", d.Watch),
		WatchDebounce: s.Duration("watch_debounce", d.WatchDebounce),
		LogLevel:      s.String("log_level", d.LogLevel),
	}
}

// Validate checks the settings for values Open would reject.
func (s Settings) Validate() error {
	switch s.Backend {
	case BackendDir:
		if s.Dir == "" {
			return fmt.Errorf("%w: dir backend needs a directory", ErrInvalidSettings)
		}
		if _, err := persist.CodecFor(s.Format); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
	case BackendSQLite:
		if s.DBPath == "" {
			return fmt.Errorf("%w: sqlite backend needs a database path", ErrInvalidSettings)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidSettings, s.Backend)
	}
	if _, err := ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

// Open creates the persistence backend the settings describe.
func (s Settings) Open() (persist.Backend, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	switch s.Backend {
	case BackendSQLite:
		return persist.NewSQLite(s.DBPath)
	case BackendMemory:
		return persist.NewMemory(), nil
	default:
		codec, _ := persist.CodecFor(s.Format)
		return persist.NewDir(s.Dir, codec), nil
	}
}

// NewLogger builds a text logger at the configured level.
func (s Settings) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(s.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

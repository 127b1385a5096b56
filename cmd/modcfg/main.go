// modcfg inspects and edits mod configuration from the command line.
//
// It opens the same backend the host uses (a directory of JSON or YAML
// files, or a SQLite database), so settings can be checked or fixed while
// the game is not running.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/modcfg/pkg/modcfg"
	"github.com/randalmurphal/modcfg/pkg/modcfg/config"
	"github.com/randalmurphal/modcfg/pkg/modcfg/persist"
	"github.com/randalmurphal/modcfg/pkg/modcfg/value"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// usageError reports a malformed command line.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		configPath string
		settings   = config.Defaults()
	)

	flagSet := pflag.NewFlagSet("modcfg", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "host settings file (.yaml, .json or .toml)")
	flagSet.StringVar(&settings.Dir, "dir", settings.Dir, "configuration directory for the dir backend")
	flagSet.StringVar(&settings.Format, "format", settings.Format, "file format for the dir backend: json or yaml")
	flagSet.StringVar(&settings.Backend, "backend", settings.Backend, "storage backend: dir, sqlite or memory")
	flagSet.StringVar(&settings.DBPath, "db", settings.DBPath, "database file for the sqlite backend")
	flagSet.StringVar(&settings.LogLevel, "log-level", "warn", "log level: debug, info, warn or error")
	flagSet.DurationVar(&settings.WatchDebounce, "debounce", settings.WatchDebounce, "quiet period before a changed file is reloaded")
	flagSet.Usage = func() { printHelp(flagSet, stderr) }

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if configPath != "" {
		cfg, err := config.FromFile(configPath)
		if err != nil {
			return err
		}
		settings = mergeSettings(config.SettingsFrom(cfg), settings, flagSet)
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(flagSet, stderr)
		return usagef("missing command")
	}

	backend, err := settings.Open()
	if err != nil {
		return err
	}

	store := modcfg.New(
		modcfg.WithBackend(backend),
		modcfg.WithLogger(settings.NewLogger(stderr)),
	)
	defer store.Close()

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "namespaces":
		return cmdNamespaces(ctx, store, cmdArgs, stdout, stderr)
	case "keys":
		return cmdKeys(ctx, store, cmdArgs, stdout)
	case "get":
		return cmdGet(ctx, store, cmdArgs, stdout)
	case "set":
		return cmdSet(ctx, store, cmdArgs)
	case "rm":
		return cmdRemove(ctx, store, cmdArgs)
	case "dump":
		return cmdDump(ctx, store, cmdArgs, stdout)
	case "watch":
		return cmdWatch(ctx, store, settings, cmdArgs, stdout, stderr)
	default:
		return usagef("unknown command %q", cmd)
	}
}

// mergeSettings overlays flags given on the command line onto file settings.
func mergeSettings(file, flags config.Settings, fs *pflag.FlagSet) config.Settings {
	out := file
	if fs.Changed("dir") {
		out.Dir = flags.Dir
	}
	if fs.Changed("format") {
		out.Format = flags.Format
	}
	if fs.Changed("backend") {
		out.Backend = flags.Backend
	}
	if fs.Changed("db") {
		out.DBPath = flags.DBPath
	}
	if fs.Changed("log-level") {
		out.LogLevel = flags.LogLevel
	}
	if fs.Changed("debounce") {
		out.WatchDebounce = flags.WatchDebounce
	}
	return out
}

func cmdNamespaces(ctx context.Context, store *modcfg.Store, args []string, stdout, stderr io.Writer) error {
	if len(args) != 0 {
		return usagef("usage: namespaces")
	}
	report, err := store.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, ns := range store.Namespaces() {
		fmt.Fprintln(stdout, ns)
	}
	for ns, err := range report.Failed {
		fmt.Fprintf(stderr, "warning: %s: %v\n", ns, err)
	}
	return nil
}

// load reads one namespace. A namespace that was never saved is empty, not an error.
func load(ctx context.Context, store *modcfg.Store, ns string) error {
	if err := store.LoadNamespace(ctx, ns); err != nil && !errors.Is(err, persist.ErrNotFound) {
		return err
	}
	return nil
}

func cmdKeys(ctx context.Context, store *modcfg.Store, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return usagef("usage: keys <namespace>")
	}
	if err := load(ctx, store, args[0]); err != nil {
		return err
	}
	for _, k := range store.GetKeys(args[0]) {
		fmt.Fprintln(stdout, k)
	}
	return nil
}

func cmdGet(ctx context.Context, store *modcfg.Store, args []string, stdout io.Writer) error {
	if len(args) != 3 {
		return usagef("usage: get <namespace> <key> <kind>")
	}
	ns, key := args[0], args[1]
	kind, err := value.ParseKind(args[2])
	if err != nil {
		return err
	}
	if err := load(ctx, store, ns); err != nil {
		return err
	}

	v, ok := store.Get(ns, key, kind)
	if !ok {
		return fmt.Errorf("%s/%s: no %s value", ns, key, kind)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%s/%s: %w", ns, key, err)
	}
	fmt.Fprintln(stdout, v.Text)
	return nil
}

func cmdSet(ctx context.Context, store *modcfg.Store, args []string) error {
	if len(args) != 4 {
		return usagef("usage: set <namespace> <key> <kind> <value>")
	}
	ns, key := args[0], args[1]
	kind, err := value.ParseKind(args[2])
	if err != nil {
		return err
	}
	if err := load(ctx, store, ns); err != nil {
		return err
	}
	if err := store.Set(ns, key, value.TypedValue{Kind: kind, Text: args[3]}); err != nil {
		return err
	}
	return store.SaveNamespace(ctx, ns)
}

func cmdRemove(ctx context.Context, store *modcfg.Store, args []string) error {
	if len(args) != 2 {
		return usagef("usage: rm <namespace> <key>")
	}
	ns, key := args[0], args[1]
	if err := load(ctx, store, ns); err != nil {
		return err
	}
	if !store.RemoveKey(ns, key) {
		return fmt.Errorf("%s/%s: no such key", ns, key)
	}
	return store.SaveNamespace(ctx, ns)
}

// dumpEntry is one line of `modcfg dump` output.
type dumpEntry struct {
	Key   string `yaml:"key"`
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

func cmdDump(ctx context.Context, store *modcfg.Store, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return usagef("usage: dump <namespace>")
	}
	ns := args[0]
	if err := store.LoadNamespace(ctx, ns); err != nil {
		return err
	}

	entries := []dumpEntry{}
	for _, k := range store.GetKeys(ns) {
		if v, ok := store.Value(ns, k); ok {
			entries = append(entries, dumpEntry{Key: k, Type: v.Kind.String(), Value: v.Text})
		}
	}

	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"namespace": ns, "values": entries}); err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}
	return enc.Close()
}

// lockedWriter serializes output from listeners of different namespaces.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}

func cmdWatch(ctx context.Context, store *modcfg.Store, settings config.Settings, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return usagef("usage: watch <namespace>...")
	}
	report, err := store.LoadAll(ctx)
	if err != nil {
		return err
	}
	for ns, err := range report.Failed {
		fmt.Fprintf(stderr, "warning: %s: %v\n", ns, err)
	}

	out := &lockedWriter{w: stdout}
	for _, ns := range args {
		sub := store.Subscribe(ns, func(c modcfg.Change) {
			out.printf("%s/%s %s = %s\n", c.Namespace, c.Key, c.Kind, c.Value)
		})
		defer sub.Unsubscribe()
	}

	w, err := store.WatchDir(ctx, settings.WatchDebounce)
	if errors.Is(err, modcfg.ErrNotWatchable) {
		return fmt.Errorf("watch needs the %s backend: %w", config.BackendDir, err)
	}
	if err != nil {
		return err
	}
	defer w.Close()

	fmt.Fprintf(stderr, "watching %s\n", w.Dir())
	<-ctx.Done()
	return nil
}

func printHelp(flagSet *pflag.FlagSet, w io.Writer) {
	fmt.Fprint(w, `modcfg inspects and edits mod configuration.

Usage:
  modcfg [flags] <command> [args]

Commands:
  namespaces                          list every namespace that loads
  keys <namespace>                    list keys in insertion order
  get <namespace> <key> <kind>        print a value of the given kind
  set <namespace> <key> <kind> <val>  store a value and save the namespace
  rm <namespace> <key>                remove a key and save the namespace
  dump <namespace>                    print a namespace as YAML
  watch <namespace>...                print changes as files are edited

Kinds: string, int, float, double, bool

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}

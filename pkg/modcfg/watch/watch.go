// Package watch reports configuration files that change on disk.
//
// A Watcher observes one directory and calls its handler with the namespace
// of each file written or created there. Editors and atomic saves tend to
// touch a file several times in a row, so events are coalesced per
// namespace: the handler runs once the file has been quiet for the
// debounce delay.
//
// Example:
//
//	w, err := watch.New("config", ".json", func(ns string) {
//	    store.Reload(ctx, ns)
//	})
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//	w.Start(ctx)
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when no WithDebounce is given.
const DefaultDebounce = 100 * time.Millisecond

var (
	// ErrClosed indicates an operation on a closed watcher.
	ErrClosed = errors.New("watcher is closed")

	// ErrStarted indicates Start was called twice.
	ErrStarted = errors.New("watcher already started")
)

// Handler receives the namespace of a changed file.
type Handler func(namespace string)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a change is reported.
// Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger for watch errors. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// Watcher reports changed namespace files in a directory.
type Watcher struct {
	dir      string
	ext      string
	handler  Handler
	debounce time.Duration
	logger   *slog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	timers  map[string]*time.Timer
	started bool
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New creates a watcher on dir. Only files ending in ext are reported;
// an empty ext reports every file. Hidden files are always ignored.
// The directory is created if it does not exist.
func New(dir, ext string, handler Handler, opts ...Option) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch: handler cannot be nil")
	}

	w := &Watcher{
		dir:      dir,
		ext:      ext,
		handler:  handler,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		timers:   make(map[string]*time.Timer),
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create watch directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	w.fsw = fsw

	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Start begins processing events until ctx is done or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.started {
		return ErrStarted
	}
	w.started = true

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Close stops the watcher and cancels pending notifications.
// Safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for ns, t := range w.timers {
		t.Stop()
		delete(w.timers, ns)
	}
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("config watch error",
					slog.String("path", w.dir),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	ns, ok := w.namespaceOf(ev.Name)
	if !ok {
		return
	}
	w.schedule(ns)
}

func (w *Watcher) namespaceOf(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return "", false
	}
	ext := filepath.Ext(base)
	if w.ext != "" && ext != w.ext {
		return "", false
	}
	ns := strings.TrimSuffix(base, ext)
	if ns == "" {
		return "", false
	}
	return ns, true
}

// schedule (re)arms the namespace's timer.
func (w *Watcher) schedule(ns string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if t, ok := w.timers[ns]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[ns] = time.AfterFunc(w.debounce, func() { w.fire(ns) })
}

func (w *Watcher) fire(ns string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.timers, ns)
	w.mu.Unlock()

	w.handler(ns)
}

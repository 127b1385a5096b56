package modcfg

import (
	"context"
	"fmt"
	"time"

	"github.com/randalmurphal/modcfg/pkg/modcfg/observability"
	"github.com/randalmurphal/modcfg/pkg/modcfg/persist"
)

// LoadReport summarizes a LoadAll call.
type LoadReport struct {
	// Loaded lists the namespaces installed, in backend order.
	Loaded []string
	// Failed maps each namespace that could not be loaded to its error.
	Failed map[string]error
}

// OK reports whether every namespace loaded.
func (r LoadReport) OK() bool {
	return len(r.Failed) == 0
}

// Backend returns the store's persistence backend, or nil if it has none.
func (s *Store) Backend() persist.Backend {
	return s.backend
}

// LoadAll loads every namespace the backend knows about.
//
// A namespace that fails to load is logged, recorded in the report and left
// untouched; the others still load. The returned error is reserved for the
// backend failing to enumerate its namespaces.
func (s *Store) LoadAll(ctx context.Context) (report LoadReport, err error) {
	if s.backend == nil {
		return LoadReport{}, ErrNoBackend
	}

	source := sourceOf(s.backend)
	elapsed := observability.TimedOperation()
	observability.LogLoadAllStart(s.logger, source)

	ctx, span := s.spans.StartLoadAllSpan(ctx, source)
	defer func() {
		s.spans.EndSpanWithError(span, err)
	}()

	names, err := s.backend.Names()
	if err != nil {
		return LoadReport{}, fmt.Errorf("list namespaces in %s: %w", source, err)
	}

	report.Failed = make(map[string]error)
	for _, ns := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := s.loadNamespace(ctx, ns, false); err != nil {
			observability.LogLoadError(s.logger, ns, err)
			report.Failed[ns] = err
			continue
		}
		report.Loaded = append(report.Loaded, ns)
	}

	observability.LogLoadAllComplete(s.logger, len(report.Loaded), len(report.Failed), elapsed())
	return report, nil
}

// LoadNamespace reads ns from the backend and replaces its table.
//
// The whole namespace is decoded before anything is installed, so a failure
// leaves the previous state (or absence) intact. Prior values are replaced,
// not merged. Listeners are kept and are not notified; use Reload for that.
func (s *Store) LoadNamespace(ctx context.Context, ns string) error {
	if s.backend == nil {
		return ErrNoBackend
	}
	_, err := s.loadNamespace(ctx, ns, false)
	return err
}

// Reload is LoadNamespace followed by a notification for every key whose
// kind or value changed or that did not exist before. Keys that
// disappeared are dropped silently, like RemoveKey.
func (s *Store) Reload(ctx context.Context, ns string) ([]Change, error) {
	if s.backend == nil {
		return nil, ErrNoBackend
	}

	return s.reload(ctx, ns, false)
}

// reloadExternal is Reload for a namespace the backend reports as
// modified. Contents identical to what the store last saved or loaded are
// its own write coming back, and are ignored so that later unsaved writes
// survive.
func (s *Store) reloadExternal(ctx context.Context, ns string) ([]Change, error) {
	return s.reload(ctx, ns, true)
}

func (s *Store) reload(ctx context.Context, ns string, skipOwn bool) ([]Change, error) {
	changes, err := s.loadNamespace(ctx, ns, skipOwn)
	if err != nil {
		return nil, err
	}
	if skipOwn && len(changes) == 0 {
		return nil, nil
	}

	observability.LogReload(s.logger, ns, len(changes))
	s.notify(ns, changes)
	return changes, nil
}

func (s *Store) loadNamespace(ctx context.Context, ns string, skipOwn bool) (changes []Change, err error) {
	ctx, span := s.spans.StartLoadSpan(ctx, ns)
	defer func() {
		s.spans.EndSpanWithError(span, err)
		s.metrics.RecordLoad(ctx, ns, err)
	}()

	if err := persist.ValidateNamespace(ns); err != nil {
		return nil, &NamespaceError{Namespace: ns, Op: "load", Err: err}
	}

	n := s.namespaceFor(ns)
	n.io.Lock()
	defer n.io.Unlock()

	records, err := s.backend.Load(ns)
	if err != nil {
		return nil, &NamespaceError{Namespace: ns, Op: "load", Err: err}
	}
	if err := persist.ValidateRecords(records); err != nil {
		return nil, &NamespaceError{Namespace: ns, Op: "load", Err: err}
	}

	changes, installed := n.install(records, skipOwn)
	if installed {
		observability.LogNamespaceLoaded(s.logger, ns, len(records))
	}
	return changes, nil
}

// SaveNamespace writes the current contents of ns to the backend, in
// insertion order. A namespace that does not exist is saved empty.
// Errors are returned to the caller and never swallowed.
func (s *Store) SaveNamespace(ctx context.Context, ns string) (err error) {
	if s.backend == nil {
		return ErrNoBackend
	}
	if ns == "" {
		return ErrEmptyNamespace
	}

	ctx, span := s.spans.StartSaveSpan(ctx, ns)
	start := time.Now()

	n := s.namespaceFor(ns)
	n.io.Lock()
	defer n.io.Unlock()

	records := n.snapshotForSave()
	defer func() {
		s.spans.EndSpanWithError(span, err)
		s.metrics.RecordSave(ctx, ns, len(records), time.Since(start), err)
	}()

	if err := s.backend.Save(ns, records); err != nil {
		n.forgetDisk()
		observability.LogSaveError(s.logger, ns, err)
		return &NamespaceError{Namespace: ns, Op: "save", Err: err}
	}

	observability.LogSave(s.logger, ns, len(records), float64(time.Since(start).Microseconds())/1000)
	return nil
}

// SaveAll saves every existing namespace and returns the first error.
// Namespaces after a failure are still attempted.
func (s *Store) SaveAll(ctx context.Context) error {
	var first error
	for _, ns := range s.Namespaces() {
		if err := s.SaveNamespace(ctx, ns); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes the backend, if any.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

func sourceOf(b persist.Backend) string {
	if str, ok := b.(fmt.Stringer); ok {
		return str.String()
	}
	return fmt.Sprintf("%T", b)
}

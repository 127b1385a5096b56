package modcfg

import (
	"context"
	"errors"
	"time"

	"github.com/randalmurphal/modcfg/pkg/modcfg/observability"
	"github.com/randalmurphal/modcfg/pkg/modcfg/persist"
	"github.com/randalmurphal/modcfg/pkg/modcfg/watch"
)

// ErrNotWatchable indicates WatchDir on a store whose backend is not a directory.
var ErrNotWatchable = errors.New("backend is not a directory")

// WatchDir reloads namespaces whose files change on disk, notifying
// listeners of the keys that changed. The store's backend must be a
// *persist.Dir. Reload failures are logged and leave the namespace as it
// was. A file whose contents are exactly what the store last saved or
// loaded is ignored, so the store's own saves do not revert writes made
// after them. The watcher stops when ctx is done or it is closed.
func (s *Store) WatchDir(ctx context.Context, debounce time.Duration) (*watch.Watcher, error) {
	dir, ok := s.backend.(*persist.Dir)
	if !ok {
		return nil, ErrNotWatchable
	}

	w, err := watch.New(dir.Path(), dir.Codec().Ext(), func(ns string) {
		if _, err := s.reloadExternal(ctx, ns); err != nil {
			observability.LogLoadError(s.logger, ns, err)
		}
	}, watch.WithDebounce(debounce), watch.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}

	if err := w.Start(ctx); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

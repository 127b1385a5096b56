package modcfg

import (
	"slices"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/randalmurphal/modcfg/pkg/modcfg/observability"
	"github.com/randalmurphal/modcfg/pkg/modcfg/value"
)

// Change describes one value written to a namespace.
type Change struct {
	Namespace string
	Key       string
	Kind      value.Kind
	// Value is the textual form of the new value.
	Value string
}

// TypedValue returns the written value.
func (c Change) TypedValue() value.TypedValue {
	return value.TypedValue{Kind: c.Kind, Text: c.Value}
}

// Listener receives changes for one namespace.
//
// Listeners run synchronously on the goroutine that delivers the change.
// A listener may call back into the store, including Set on its own
// namespace; such writes are visible immediately and their notifications
// follow once the current one has reached every listener.
type Listener func(Change)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	// ID uniquely identifies the subscription.
	ID uuid.UUID

	namespace string
	fn        Listener
	store     *Store
	active    atomic.Bool
}

// Namespace returns the namespace the subscription listens to.
func (sub *Subscription) Namespace() string {
	return sub.namespace
}

// Active reports whether the subscription still receives changes.
func (sub *Subscription) Active() bool {
	return sub.active.Load()
}

// Unsubscribe stops delivery to this subscription. Safe to call more than once.
func (sub *Subscription) Unsubscribe() {
	sub.store.Unsubscribe(sub)
}

// Subscribe registers fn for changes in ns. The namespace need not exist
// yet: the listener fires once a Set creates it.
//
// Returns nil if fn is nil.
func (s *Store) Subscribe(ns string, fn Listener) *Subscription {
	if fn == nil {
		return nil
	}

	sub := &Subscription{
		ID:        uuid.New(),
		namespace: ns,
		fn:        fn,
		store:     s,
	}
	sub.active.Store(true)

	n := s.namespaceFor(ns)
	n.mu.Lock()
	n.listeners = append(n.listeners, sub)
	n.mu.Unlock()

	return sub
}

// Unsubscribe removes sub and reports whether it was registered.
//
// Changes delivered after it returns never reach sub. A delivery already
// running on another goroutine may still make one last call that had
// started before. Called from a listener on the delivering goroutine, it
// takes effect for the very next listener call.
func (s *Store) Unsubscribe(sub *Subscription) bool {
	if sub == nil || sub.store != s {
		return false
	}
	if !sub.active.CompareAndSwap(true, false) {
		return false
	}

	n, ok := s.namespaces.Get(sub.namespace)
	if !ok {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	before := len(n.listeners)
	n.listeners = slices.DeleteFunc(n.listeners, func(l *Subscription) bool { return l == sub })
	return len(n.listeners) < before
}

// Listeners returns the number of active subscriptions on ns.
func (s *Store) Listeners(ns string) int {
	n, ok := s.namespaces.Get(ns)
	if !ok {
		return 0
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}

// enqueueLocked queues c and reports whether the caller must run delivery.
// At most one goroutine delivers per namespace; everyone else only queues.
func (n *namespace) enqueueLocked(c Change) bool {
	n.pending = append(n.pending, c)
	if n.delivering {
		return false
	}
	n.delivering = true
	return true
}

// deliver drains n.pending in order. Listeners are snapshotted per change
// and run without the namespace lock held.
func (s *Store) deliver(n *namespace) {
	for {
		n.mu.Lock()
		if len(n.pending) == 0 {
			n.delivering = false
			n.pending = nil
			n.mu.Unlock()
			return
		}
		c := n.pending[0]
		n.pending = n.pending[1:]
		listeners := slices.Clone(n.listeners)
		n.mu.Unlock()

		for _, sub := range listeners {
			if !sub.active.Load() {
				continue
			}
			s.invoke(sub, c)
		}
	}
}

func (s *Store) invoke(sub *Subscription, c Change) {
	defer func() {
		if r := recover(); r != nil {
			observability.LogListenerPanic(s.logger, c.Namespace, c.Key, r)
		}
	}()
	sub.fn(c)
}

// notify queues changes produced outside Set, such as a reload.
func (s *Store) notify(ns string, changes []Change) {
	if len(changes) == 0 {
		return
	}

	n := s.namespaceFor(ns)

	n.mu.Lock()
	deliver := false
	for _, c := range changes {
		if n.enqueueLocked(c) {
			deliver = true
		}
	}
	n.mu.Unlock()

	if deliver {
		s.deliver(n)
	}
}

// Package servlet implements Poseidon's URI-to-handler dispatch table.
//
// Entries expire automatically when the dependency the caller
// registered them with is garbage collected, without any explicit
// deregistration step: Register stores a weak.Pointer to the
// dependency token rather than a strong reference, so the token's
// normal lifetime is what starves the entry. This is the weak-
// dependency idiom: no naked pointer comparisons, no finalizers.
package servlet

import (
	"errors"
	"sync"
	"weak"
)

// HandlerFunc is the callback a servlet dispatches to. Its shape is a
// business-level concern outside this core's scope; the registry only
// cares about whether it is still reachable.
type HandlerFunc func(ctx any)

// ErrDuplicateServlet is returned by Register when a live entry
// already exists for the given URI.
var ErrDuplicateServlet = errors.New("servlet: duplicate registration for URI")

// weakDep is the type-erased form of a weak.Pointer[T], letting
// Registry hold dependencies of arbitrary pointer type in one map.
type weakDep interface {
	alive() bool
}

type weakDepBox[T any] struct {
	p weak.Pointer[T]
}

func (w weakDepBox[T]) alive() bool { return w.p.Value() != nil }

type entry struct {
	dep     weakDep // nil means "always valid" (the sentinel)
	handler HandlerFunc
}

func (e *entry) dispatchable() bool {
	return e.dep == nil || e.dep.alive()
}

// Registry is a shared-reader/exclusive-writer map from URI to
// weak servlet. At most one non-expired servlet exists per URI at any
// instant.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty servlet registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Handle is the strong reference a caller may retain to later
// explicitly unregister a servlet. It is not what keeps the servlet
// alive — the dependency token (if any) governs that.
type Handle struct {
	registry *Registry
	uri      string
	entry    *entry
}

// Unregister removes the entry this handle was returned for, if it is
// still the current entry for its URI.
func (h *Handle) Unregister() {
	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()
	if cur, ok := h.registry.entries[h.uri]; ok && cur == h.entry {
		delete(h.registry.entries, h.uri)
	}
}

// RegisterAlways inserts a servlet for uri with the "always valid"
// sentinel dependency: it never expires on its own and is only
// removed by an explicit Unregister.
func (r *Registry) RegisterAlways(uri string, handler HandlerFunc) (*Handle, error) {
	return register(r, uri, nil, handler)
}

// Register inserts a servlet for uri, gated on dependency's liveness:
// once dependency is collected, Lookup stops returning this entry
// even though the map slot may not yet be physically removed.
// Register fails with ErrDuplicateServlet if a still-dispatchable
// entry already exists for uri.
func Register[T any](r *Registry, uri string, dependency *T, handler HandlerFunc) (*Handle, error) {
	if dependency == nil {
		return register(r, uri, nil, handler)
	}
	dep := weakDepBox[T]{p: weak.Make(dependency)}
	return register(r, uri, dep, handler)
}

func register(r *Registry, uri string, dep weakDep, handler HandlerFunc) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[uri]; ok && existing.dispatchable() {
		return nil, ErrDuplicateServlet
	}

	e := &entry{dep: dep, handler: handler}
	r.entries[uri] = e

	return &Handle{registry: r, uri: uri, entry: e}, nil
}

// Lookup resolves uri to its handler. It returns ok=false if no entry
// exists, or if the entry's dependency has been collected, even if
// the map slot has not yet been physically removed.
func (r *Registry) Lookup(uri string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[uri]
	if !ok || !e.dispatchable() {
		return nil, false
	}
	return e.handler, true
}

// Sweep removes map slots whose dependency has already expired. It is
// not required for correctness (Lookup already treats them as
// not-found) but bounds the map's size under churn; callers may run
// it periodically.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for uri, e := range r.entries {
		if !e.dispatchable() {
			delete(r.entries, uri)
			removed++
		}
	}
	return removed
}

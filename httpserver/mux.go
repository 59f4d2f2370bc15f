// Package httpserver bridges the kept teacher HTTP parsing/Context
// code (core/http) and path router (core/router) onto the netcore
// socket core and the servlet dispatch registry: accepted TCP (or
// TLS) sessions become httpSession values whose OnReadAvail parses
// HTTP/1.1 requests and dispatches them through a Mux.
package httpserver

import (
	"sync"

	corehttp "github.com/poseidon/poseidon/core/http"
	"github.com/poseidon/poseidon/core/observability"
	"github.com/poseidon/poseidon/core/router"
	"github.com/poseidon/poseidon/core/websocket"
	"github.com/poseidon/poseidon/servlet"
)

// Mux pairs the radix router (path/param matching) with the servlet
// registry (dependency-lifetime-gated dispatch). A route is only
// added to the router once; subsequent RegisterServlet calls for the
// same method+pattern just update the registry entry, so a servlet
// can be replaced (after its old dependency expires) without
// re-touching the router tree.
type Mux struct {
	router   *router.RadixRouter
	registry *servlet.Registry

	mu       sync.Mutex
	routed   map[string]bool // "METHOD pattern" already added to the router
	websocks map[string]*websocket.Hub

	monitor *observability.PerformanceMonitor
}

// NewMux builds an HTTP mux over a fresh servlet registry. Every
// dispatch is timed through a PerformanceMonitor; Monitor exposes it
// for a /metrics servlet or similar.
func NewMux() *Mux {
	return &Mux{
		router:   router.NewRadixRouter(),
		registry: servlet.New(),
		monitor:  observability.NewPerformanceMonitor(),
	}
}

// Monitor exposes the mux's request-timing monitor.
func (m *Mux) Monitor() *observability.PerformanceMonitor { return m.monitor }

// Registry exposes the underlying servlet registry, e.g. for Sweep.
func (m *Mux) Registry() *servlet.Registry { return m.registry }

// RegisterServlet registers fn at method+pattern, gated on
// dependency's liveness (nil registers a servlet that never expires
// on its own). Returns servlet.ErrDuplicateServlet if a still-live
// servlet already occupies pattern.
func RegisterServlet[T any](m *Mux, method, pattern string, dependency *T, fn servlet.HandlerFunc) (*servlet.Handle, error) {
	h, err := servlet.Register(m.registry, key(method, pattern), dependency, fn)
	if err != nil {
		return nil, err
	}
	m.ensureRouted(method, pattern)
	return h, nil
}

// RegisterServletAlways is RegisterServlet's non-expiring form.
func (m *Mux) RegisterServletAlways(method, pattern string, fn servlet.HandlerFunc) (*servlet.Handle, error) {
	h, err := m.registry.RegisterAlways(key(method, pattern), fn)
	if err != nil {
		return nil, err
	}
	m.ensureRouted(method, pattern)
	return h, nil
}

func (m *Mux) ensureRouted(method, pattern string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.routed == nil {
		m.routed = make(map[string]bool)
	}
	k := key(method, pattern)
	if m.routed[k] {
		return
	}
	m.routed[k] = true
	m.router.Add(method, pattern, func(ctxAny any) {
		ctx := ctxAny.(corehttp.Context)
		handler, ok := m.registry.Lookup(k)
		if !ok {
			ctx.Error(410, "servlet dependency expired")
			return
		}
		handler(ctx)
	})
}

func key(method, pattern string) string { return method + " " + pattern }

// RegisterWebsocket routes GET requests to path into an upgrade
// attempt against hub instead of the servlet registry: httpSession's
// read path checks this table before falling through to dispatch.
func (m *Mux) RegisterWebsocket(path string, hub *websocket.Hub) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.websocks == nil {
		m.websocks = make(map[string]*websocket.Hub)
	}
	m.websocks[path] = hub
}

// websocketHub returns the hub registered for path, if any.
func (m *Mux) websocketHub(path string) (*websocket.Hub, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hub, ok := m.websocks[path]
	return hub, ok
}

// dispatch resolves a parsed request to its router entry, binds path
// params onto ctx, and invokes the stored handler (which itself does
// the servlet registry lookup — see ensureRouted). Traces are labeled
// by the registered pattern ("/users/:id"), not the concrete request
// path, so that distinct param values on the same route don't each
// mint their own PerformanceMonitor series.
func (m *Mux) dispatch(ctx corehttp.Context, req *corehttp.Request) {
	start := m.monitor.StartTrace()

	handler, params, pattern := m.router.Find(req.Method, req.Path)
	if handler == nil {
		ctx.Error(404, "not found")
		m.monitor.EndTrace(req.Method+" "+req.Path, start, true)
		return
	}
	for k, v := range params {
		ctx.SetParam(k, v)
	}
	handler(ctx)
	m.monitor.EndTrace(key(req.Method, pattern), start, false)
}

package httpserver

import (
	"net"
	"testing"

	corehttp "github.com/poseidon/poseidon/core/http"
)

// stubContext is a minimal corehttp.Context good enough to observe
// what Mux.dispatch decided without a real connection.
type stubContext struct {
	method, path string
	params       map[string]string
	errCode      int
	errMsg       string
	ok           bool
}

func newStubContext(method, path string) *stubContext {
	return &stubContext{method: method, path: path, params: map[string]string{}}
}

func (c *stubContext) Method() string                 { return c.method }
func (c *stubContext) Path() string                    { return c.path }
func (c *stubContext) Param(key string) string         { return c.params[key] }
func (c *stubContext) Query(key string) string         { return "" }
func (c *stubContext) Header(key string) string        { return "" }
func (c *stubContext) Body() []byte                    { return nil }
func (c *stubContext) SetParam(key, value string)      { c.params[key] = value }
func (c *stubContext) String(code int, s string)       { c.ok = true }
func (c *stubContext) JSON(code int, v any)            { c.ok = true }
func (c *stubContext) Bytes(code int, data []byte)     { c.ok = true }
func (c *stubContext) Data(code int, ct string, d []byte) { c.ok = true }
func (c *stubContext) Error(code int, message string)  { c.errCode, c.errMsg = code, message }
func (c *stubContext) Success(data any)                { c.ok = true }
func (c *stubContext) ServeFile(path string) error      { return nil }
func (c *stubContext) Bind(v any) error                 { return nil }
func (c *stubContext) Conn() net.Conn                   { return nil }

var _ corehttp.Context = (*stubContext)(nil)

func TestMuxDispatchesRegisteredServlet(t *testing.T) {
	m := NewMux()
	called := false
	if _, err := m.RegisterServletAlways("GET", "/ping", func(ctx any) {
		called = true
		ctx.(corehttp.Context).Success("pong")
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := newStubContext("GET", "/ping")
	m.dispatch(ctx, &corehttp.Request{Method: "GET", Path: "/ping"})

	if !called {
		t.Fatal("expected handler to run")
	}
	if !ctx.ok {
		t.Fatal("expected a response to be written")
	}
}

func TestMuxReturns404ForUnknownRoute(t *testing.T) {
	m := NewMux()
	ctx := newStubContext("GET", "/missing")
	m.dispatch(ctx, &corehttp.Request{Method: "GET", Path: "/missing"})

	if ctx.errCode != 404 {
		t.Fatalf("expected 404, got %d", ctx.errCode)
	}
}

func TestMuxDispatchesWhileDependencyAlive(t *testing.T) {
	m := NewMux()
	type token struct{ id int }
	dep := &token{id: 1}

	if _, err := RegisterServlet(m, "GET", "/gated", dep, func(ctx any) {
		ctx.(corehttp.Context).Success("ok")
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.Registry().Sweep() // dep is still reachable, should be a no-op
	ctx := newStubContext("GET", "/gated")
	m.dispatch(ctx, &corehttp.Request{Method: "GET", Path: "/gated"})
	if ctx.errCode != 0 {
		t.Fatalf("expected servlet to still dispatch while dependency is alive, got errCode %d", ctx.errCode)
	}
}

func TestMuxDispatchGoesThroughMonitor(t *testing.T) {
	m := NewMux()
	ctx := newStubContext("GET", "/missing")
	m.dispatch(ctx, &corehttp.Request{Method: "GET", Path: "/missing"})

	// A single fast 404 shouldn't itself register as a bottleneck, but
	// the monitor must be wired and safe to query either way.
	if m.Monitor() == nil {
		t.Fatal("expected dispatch to go through a non-nil monitor")
	}
	_ = m.Monitor().GetBottlenecks()
}

func TestMuxBindsPathParams(t *testing.T) {
	m := NewMux()
	var seen string
	if _, err := m.RegisterServletAlways("GET", "/users/:id", func(ctx any) {
		seen = ctx.(corehttp.Context).Param("id")
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := newStubContext("GET", "/users/42")
	m.dispatch(ctx, &corehttp.Request{Method: "GET", Path: "/users/42"})

	if seen != "42" {
		t.Fatalf("expected param id=42, got %q", seen)
	}
}

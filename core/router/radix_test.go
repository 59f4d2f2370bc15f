package router

import (
	"testing"
)

// TestRadixRouterBasic tests basic static routing
func TestRadixRouterBasic(t *testing.T) {
	router := NewRadixRouter()

	handler := func(ctx any) {}
	router.Add("GET", "/", handler)
	router.Add("GET", "/hello", handler)
	router.Add("GET", "/hello/world", handler)

	tests := []struct {
		path        string
		shouldMatch bool
	}{
		{"/", true},
		{"/hello", true},
		{"/hello/world", true},
		{"/notfound", false},
	}

	for _, tt := range tests {
		h, _, _ := router.Find("GET", tt.path)
		matched := (h != nil)
		if matched != tt.shouldMatch {
			t.Errorf("Path %s: expected match=%v, got match=%v", tt.path, tt.shouldMatch, matched)
		}
	}
}

// TestRadixRouterPriority tests route priority (exact > param)
func TestRadixRouterPriority(t *testing.T) {
	router := NewRadixRouter()

	exactHandler := func(ctx any) {}
	paramHandler := func(ctx any) {}

	router.Add("GET", "/user/admin", exactHandler)
	router.Add("GET", "/user/:id", paramHandler)

	tests := []struct {
		path         string
		shouldMatch  bool
		isExactMatch bool
	}{
		{"/user/admin", true, true},
		{"/user/123", true, false},
	}

	for _, tt := range tests {
		h, params, _ := router.Find("GET", tt.path)
		if (h != nil) != tt.shouldMatch {
			t.Errorf("Path %s: expected match=%v, got match=%v", tt.path, tt.shouldMatch, h != nil)
		}
		if tt.shouldMatch {
			_, hasParam := params["id"]
			if tt.isExactMatch && hasParam {
				t.Errorf("Path %s: should be exact match, but got params", tt.path)
			}
			if !tt.isExactMatch && !hasParam {
				t.Errorf("Path %s: should be param match, but no params", tt.path)
			}
		}
	}
}

// TestRadixRouterFindReturnsRegisteredPattern checks that Find's third
// return value is the pattern as registered, not the concrete path —
// Mux.dispatch relies on this to keep its metric label cardinality flat.
func TestRadixRouterFindReturnsRegisteredPattern(t *testing.T) {
	router := NewRadixRouter()
	handler := func(ctx any) {}

	router.Add("GET", "/users/:id", handler)
	router.Add("GET", "/users/:id/orders/:orderId", handler)
	router.Add("POST", "/files/*path", handler)

	tests := []struct {
		method      string
		path        string
		wantPattern string
	}{
		{"GET", "/users/42", "/users/:id"},
		{"GET", "/users/42/orders/7", "/users/:id/orders/:orderId"},
		{"POST", "/files/a/b/c.txt", "/files/*path"},
	}

	for _, tt := range tests {
		h, _, pattern := router.Find(tt.method, tt.path)
		if h == nil {
			t.Fatalf("%s %s: expected a match", tt.method, tt.path)
		}
		if pattern != tt.wantPattern {
			t.Errorf("%s %s: pattern = %q, want %q", tt.method, tt.path, pattern, tt.wantPattern)
		}
	}
}

// TestRadixRouterFindNoMatchReturnsEmptyPattern checks the miss path
// returns a nil handler and an empty pattern rather than a stale one.
func TestRadixRouterFindNoMatchReturnsEmptyPattern(t *testing.T) {
	router := NewRadixRouter()
	router.Add("GET", "/users/:id", func(ctx any) {})

	h, params, pattern := router.Find("GET", "/nowhere")
	if h != nil || params != nil || pattern != "" {
		t.Errorf("expected a clean miss, got handler=%v params=%v pattern=%q", h, params, pattern)
	}
}

// Benchmarks
func BenchmarkRadixRouterStatic(b *testing.B) {
	router := NewRadixRouter()
	handler := func(ctx any) {}
	router.Add("GET", "/hello/world", handler)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.Find("GET", "/hello/world")
	}
}

func BenchmarkRadixRouterParam(b *testing.B) {
	router := NewRadixRouter()
	handler := func(ctx any) {}
	router.Add("GET", "/user/:id", handler)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.Find("GET", "/user/123")
	}
}

package servlet

import (
	"runtime"
	"testing"
)

func TestRegisterAlwaysNeverExpiresOnItsOwn(t *testing.T) {
	r := New()
	called := false
	if _, err := r.RegisterAlways("/always", func(any) { called = true }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h, ok := r.Lookup("/always")
	if !ok {
		t.Fatal("expected lookup to succeed")
	}
	h(nil)
	if !called {
		t.Fatal("expected handler to run")
	}
}

func TestDuplicateRegistration(t *testing.T) {
	r := New()
	if _, err := r.RegisterAlways("/y", func(any) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := r.RegisterAlways("/y", func(any) {})
	if err != ErrDuplicateServlet {
		t.Fatalf("expected ErrDuplicateServlet, got %v", err)
	}
}

func TestDuplicateRegistrationSucceedsAfterUnregister(t *testing.T) {
	r := New()
	handle, err := r.RegisterAlways("/y", func(any) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	handle.Unregister()

	if _, err := r.RegisterAlways("/y", func(any) {}); err != nil {
		t.Fatalf("expected registration to succeed after unregister, got %v", err)
	}
}

type token struct{ id int }

func TestDependencyExpiry(t *testing.T) {
	r := New()

	register := func() {
		dep := &token{id: 1}
		if _, err := Register(r, "/x", dep, func(any) {}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		runtime.KeepAlive(dep)
	}
	register()

	if _, ok := r.Lookup("/x"); !ok {
		t.Fatal("expected lookup to succeed while dependency is alive")
	}

	// The dependency token created inside register() is now
	// unreachable; force a collection cycle and give the GC a chance
	// to clear the weak pointer.
	for i := 0; i < 20; i++ {
		runtime.GC()
		if _, ok := r.Lookup("/x"); !ok {
			break
		}
	}

	if _, ok := r.Lookup("/x"); ok {
		t.Fatal("expected lookup to fail once dependency was collected")
	}

	if _, err := Register(r, "/x", &token{id: 2}, func(any) {}); err != nil {
		t.Fatalf("expected re-registration to succeed after expiry, got %v", err)
	}
}

func TestDuplicateWhileDependencyAlive(t *testing.T) {
	r := New()
	dep := &token{id: 1}
	if _, err := Register(r, "/z", dep, func(any) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := Register(r, "/z", dep, func(any) {})
	if err != ErrDuplicateServlet {
		t.Fatalf("expected ErrDuplicateServlet, got %v", err)
	}
	runtime.KeepAlive(dep)
}

package config

import (
	"testing"
	"time"
)

func TestManagerGetSetRoundTrip(t *testing.T) {
	m := NewManager()
	if _, ok := m.Get("missing"); ok {
		t.Fatal("expected missing key to report not-exists")
	}
	m.Set("port", 8080)
	v, ok := m.Get("port")
	if !ok || v != 8080 {
		t.Fatalf("Get(port) = %v, %v, want 8080, true", v, ok)
	}
}

func TestManagerTypedGettersCoerceStrings(t *testing.T) {
	m := NewManager()
	m.Set("count", "3")
	m.Set("ratio", "1.5")
	m.Set("enabled", "yes")
	m.Set("timeout", "2s")
	m.Set("tags", "a,b,c")

	if got := m.GetInt("count"); got != 3 {
		t.Errorf("GetInt = %d, want 3", got)
	}
	if got := m.GetFloat("ratio"); got != 1.5 {
		t.Errorf("GetFloat = %v, want 1.5", got)
	}
	if got := m.GetBool("enabled"); !got {
		t.Error("GetBool = false, want true")
	}
	if got := m.GetDuration("timeout"); got != 2*time.Second {
		t.Errorf("GetDuration = %v, want 2s", got)
	}
	if got := m.GetStringSlice("tags"); len(got) != 3 || got[1] != "b" {
		t.Errorf("GetStringSlice = %v, want [a b c]", got)
	}
}

func TestManagerGettersFallBackToDefault(t *testing.T) {
	m := NewManager()
	if got := m.GetString("missing", "fallback"); got != "fallback" {
		t.Errorf("GetString = %q, want fallback", got)
	}
	if got := m.GetInt("missing", 7); got != 7 {
		t.Errorf("GetInt = %d, want 7", got)
	}
}

func TestManagerWatchFiresOnSet(t *testing.T) {
	m := NewManager()
	done := make(chan bool, 1)
	m.Watch("feature.enabled", func(key string, value interface{}) {
		done <- value.(bool)
	})

	m.Set("feature.enabled", true)

	select {
	case got := <-done:
		if !got {
			t.Error("watcher received false, want true")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watcher callback")
	}
}

func TestManagerWatchIgnoresUnrelatedKeys(t *testing.T) {
	m := NewManager()
	fired := make(chan struct{}, 1)
	m.Watch("a", func(string, interface{}) { fired <- struct{}{} })

	m.Set("b", "x")

	select {
	case <-fired:
		t.Fatal("watcher on \"a\" fired for a Set on \"b\"")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManagerGetAllReturnsSnapshot(t *testing.T) {
	m := NewManager()
	m.Set("a", 1)
	m.Set("b", 2)

	all := m.GetAll()
	if len(all) != 2 || all["a"] != 1 || all["b"] != 2 {
		t.Fatalf("GetAll() = %v, want map[a:1 b:2]", all)
	}

	all["a"] = 99
	if v, _ := m.Get("a"); v != 1 {
		t.Error("mutating the GetAll() result affected the manager's own values")
	}
}

func TestManagerDeleteRemovesKey(t *testing.T) {
	m := NewManager()
	m.Set("temp", "x")
	m.Delete("temp")
	if _, ok := m.Get("temp"); ok {
		t.Error("expected key to be gone after Delete")
	}
}

func TestManagerLoadFromMapFlattensNestedKeys(t *testing.T) {
	m := NewManager()
	m.loadFromMap("", map[string]interface{}{
		"port": 9090,
		"database": map[string]interface{}{
			"server": "tcp(127.0.0.1:3306)",
			"name":   "poseidon",
		},
	})

	if got := m.GetInt("port"); got != 9090 {
		t.Errorf("port = %d, want 9090", got)
	}
	if got := m.GetString("database.server"); got != "tcp(127.0.0.1:3306)" {
		t.Errorf("database.server = %q, want tcp(127.0.0.1:3306)", got)
	}
	if got := m.GetString("database.name"); got != "poseidon" {
		t.Errorf("database.name = %q, want poseidon", got)
	}
}

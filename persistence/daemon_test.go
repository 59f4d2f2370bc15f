package persistence

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/poseidon/poseidon/config"
	"github.com/poseidon/poseidon/core/pools"
)

// controllableObject is a PersistedObject whose Load/Save outcomes
// are fixed by the test, and which records whether EnableAutoSave was
// called — the signal that a load actually reached the success path.
type controllableObject struct {
	Coalescer
	loadErr         error
	autoSaveEnabled bool
}

func (o *controllableObject) Save(ctx context.Context, db *sql.DB) error { return nil }

func (o *controllableObject) Load(ctx context.Context, db *sql.DB, filter string) error {
	return o.loadErr
}

func (o *controllableObject) EnableAutoSave() { o.autoSaveEnabled = true }

// spec.md §8 scenario 1: two PendForSaving calls against the same
// object must coalesce into a single live intent, with the first
// demoted to a tombstone rather than both executing against the DB.
func TestPendForSavingCoalescesSameObject(t *testing.T) {
	d := New(config.NewManager(), nil)
	d.running = true
	obj := &stubObject{name: "widget"}

	if err := d.PendForSaving(obj); err != nil {
		t.Fatalf("first PendForSaving failed: %v", err)
	}
	if err := d.PendForSaving(obj); err != nil {
		t.Fatalf("second PendForSaving failed: %v", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	count := 0
	for si := d.saves.head; si != nil; si = si.next {
		count++
	}
	if count != 2 {
		t.Fatalf("expected both intents still linked until the worker dispatches them, got %d", count)
	}

	head := d.saves.peek()
	if head.object.intentSlot().Load() == head {
		t.Fatal("expected the first queued intent to be a tombstone once the second pend landed")
	}
}

// PendForSaving/PendForLoading must reject new work once the daemon
// has been told to stop.
func TestPendRejectedAfterShutdown(t *testing.T) {
	d := New(config.NewManager(), nil)
	d.running = false

	if err := d.PendForSaving(&stubObject{name: "x"}); err != ShutdownRejected {
		t.Fatalf("expected ShutdownRejected, got %v", err)
	}
	if err := d.PendForLoading(&stubObject{name: "x"}, "id=1", nil); err != ShutdownRejected {
		t.Fatalf("expected ShutdownRejected, got %v", err)
	}
}

// spec.md §7's propagation policy: a successful load enables
// auto-save and fires the completion callback with a nil error.
func TestDispatchLoadInvokesCallbackOnlyOnSuccess(t *testing.T) {
	d := New(config.NewManager(), nil)
	obj := &controllableObject{}
	done := make(chan error, 1)
	li := &LoadIntent{object: obj, filter: "id=1", done: done}

	if lost := d.dispatchLoad(nil, li); lost {
		t.Fatal("a successful load must not report a lost connection")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on success, got %v", err)
		}
	default:
		t.Fatal("expected the completion callback to fire on a successful load")
	}
	if !obj.autoSaveEnabled {
		t.Fatal("expected a successful load to enable auto-save")
	}
}

// The bug this regression test guards: a non-connection load failure
// must be logged and dropped, never reaching the completion callback.
func TestDispatchLoadFailureNeverInvokesCallback(t *testing.T) {
	d := New(config.NewManager(), nil)
	obj := &controllableObject{loadErr: errors.New("unknown filter column")}
	done := make(chan error, 1)
	li := &LoadIntent{object: obj, filter: "garbage", done: done}

	if lost := d.dispatchLoad(nil, li); lost {
		t.Fatal("a non-connection load failure must not be treated as a lost connection")
	}

	select {
	case err := <-done:
		t.Fatalf("expected no completion callback on a failed load, got %v", err)
	default:
	}
	if obj.autoSaveEnabled {
		t.Fatal("a failed load must not enable auto-save")
	}
}

// A load failure classified as a lost connection must still skip the
// completion callback — "load failures do not invoke the completion
// callback" per spec.md §7 draws no exception for the connection-lost
// case.
func TestDispatchLoadLostConnectionAlsoSkipsCallback(t *testing.T) {
	d := New(config.NewManager(), nil)
	obj := &controllableObject{loadErr: errors.New("connection refused")}
	done := make(chan error, 1)
	li := &LoadIntent{object: obj, filter: "id=1", done: done}

	if lost := d.dispatchLoad(nil, li); !lost {
		t.Fatal("expected classify to treat this Load error as a lost connection")
	}

	select {
	case err := <-done:
		t.Fatalf("expected no completion callback on a lost-connection load failure, got %v", err)
	default:
	}
}

// Load's 30-second context expiring is a system error, not a lost
// connection — it must not send the daemon back into the reconnect
// loop, and per spec.md §7 it still must not fire the callback.
func TestDispatchLoadContextDeadlineIsNotTreatedAsLostConnection(t *testing.T) {
	d := New(config.NewManager(), nil)
	obj := &controllableObject{loadErr: context.DeadlineExceeded}
	done := make(chan error, 1)
	li := &LoadIntent{object: obj, filter: "id=1", done: done}

	if lost := d.dispatchLoad(nil, li); lost {
		t.Fatal("a Load context timeout must classify as SystemError, not a lost connection")
	}
	select {
	case err := <-done:
		t.Fatalf("expected no completion callback, got %v", err)
	default:
	}
}

// completeLoad hands success through the job subsystem rather than
// blocking the daemon goroutine on the caller's done channel.
func TestDispatchLoadSuccessDeliversThroughJobPool(t *testing.T) {
	pool := pools.NewWorkerPool(1)
	defer pool.Close()

	d := New(config.NewManager(), pool)
	obj := &controllableObject{}
	done := make(chan error, 1)
	li := &LoadIntent{object: obj, filter: "id=1", done: done}

	d.dispatchLoad(nil, li)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the job pool to deliver the completion")
	}
}

// spec.md §8's spool replay scenario: a save that loses its connection
// must be dispatched exactly once, in spool order, once drainSpool runs
// on reconnect — before any newly-pended save gets a turn.
func TestDrainSpoolReplaysInOrderThenClearsLedger(t *testing.T) {
	db, err := badgerOpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory spool: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	d := New(config.NewManager(), nil)
	d.spool = &spool{db: db}

	var order []string
	a := &stubObject{name: "a", saveLog: &order}
	b := &stubObject{name: "b", saveLog: &order}

	siA := &SaveIntent{object: a}
	siB := &SaveIntent{object: b}
	d.spoolSave(siA)
	d.spoolSave(siB)

	pending, err := d.spool.pending()
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if pending != 2 {
		t.Fatalf("expected 2 spooled records, got %d", pending)
	}
	if len(d.spoolObjects) != 2 {
		t.Fatalf("expected both objects retained for replay, got %d", len(d.spoolObjects))
	}

	d.drainSpool(nil)

	if !reflect.DeepEqual(order, []string{"a", "b"}) {
		t.Fatalf("expected replay in spool order [a b], got %v", order)
	}
	pending, err = d.spool.pending()
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected ledger cleared after successful replay, got %d pending", pending)
	}
	if len(d.spoolObjects) != 0 {
		t.Fatalf("expected spoolObjects cleared after successful replay, got %d", len(d.spoolObjects))
	}
}

// A replay that fails (connection still down) must leave the record
// spooled — both the ledger entry and the in-memory object — rather
// than discard it, so the next reconnect gets another chance.
func TestDrainSpoolLeavesFailedReplaySpooled(t *testing.T) {
	db, err := badgerOpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory spool: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	d := New(config.NewManager(), nil)
	d.spool = &spool{db: db}

	stillDown := errors.New("connection refused")
	obj := &stubObject{name: "stuck", saveErr: stillDown}
	si := &SaveIntent{object: obj}
	d.spoolSave(si)

	d.drainSpool(nil)

	pending, err := d.spool.pending()
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if pending != 1 {
		t.Fatalf("expected the failed replay to remain spooled, got %d pending", pending)
	}
	if len(d.spoolObjects) != 1 {
		t.Fatalf("expected the object to remain retained for the next replay attempt, got %d", len(d.spoolObjects))
	}
}

// A spool record with no matching in-memory object (e.g. the process
// restarted mid-outage) can't be replayed — drainSpool must clear it
// rather than loop on it forever.
func TestDrainSpoolClearsUnreplayableRecord(t *testing.T) {
	db, err := badgerOpenInMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory spool: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	d := New(config.NewManager(), nil)
	d.spool = &spool{db: db}

	if _, err := d.spool.append(&stubObject{name: "orphan"}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	d.drainSpool(nil)

	pending, err := d.spool.pending()
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected the unreplayable record cleared, got %d pending", pending)
	}
}

// spec.md §8 scenario 2: Stop must interrupt the exponential-backoff
// reconnect loop promptly rather than waiting out MaxReconnDelay.
func TestStopInterruptsReconnectBackoffPromptly(t *testing.T) {
	m := config.NewManager()
	m.Set("database_server", "tcp(127.0.0.1:1)") // nothing listens on port 1
	m.Set("database_max_reconn_delay", 50*time.Millisecond)
	d := New(m, nil)

	d.Start()
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("expected Stop to interrupt the reconnect backoff promptly")
	}
}

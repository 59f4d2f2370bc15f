package persistence

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/poseidon/poseidon/config"
	"github.com/poseidon/poseidon/core/pools"
	"github.com/poseidon/poseidon/logging"
)

// waitTick is how long the worker blocks on workCond before
// re-checking the save queue head for a matured deadline, per
// spec.md §4.2's "up to 1 second, then re-check" rule.
const waitTick = time.Second

// Daemon is the single worker that services the save and load FIFOs
// described in spec.md §4.2. All state below workCond/drainCond is
// protected by mu; the two queues are only ever touched with mu held.
type Daemon struct {
	mu        sync.Mutex
	workCond  *sync.Cond // signaled when new work is pended
	drainCond *sync.Cond // signaled when both queues go empty

	saves saveQueue
	loads loadQueue

	running bool
	started bool

	cfg   Config
	jobs  *pools.WorkerPool
	db    *sql.DB
	spool *spool // nil when SpoolPath is unset

	// spoolObjects mirrors the spool ledger while the connection is
	// down: it is the only place drainSpool can get back the actual
	// object to replay, since a spoolRecord only carries its type name.
	spoolObjects map[uint64]PersistedObject

	wg sync.WaitGroup
}

// New builds a Daemon that reads its connection parameters from m and
// delivers load completions through jobs (spec.md §6's Job
// collaborator).
func New(m *config.Manager, jobs *pools.WorkerPool) *Daemon {
	d := &Daemon{cfg: LoadConfig(m), jobs: jobs}
	d.workCond = sync.NewCond(&d.mu)
	d.drainCond = sync.NewCond(&d.mu)
	return d
}

// Start launches the worker goroutine. A second call is fatal, per
// spec.md §4.2.
func (d *Daemon) Start() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		logging.Fatal("persistence: Start called twice")
		return
	}
	d.started = true
	d.running = true
	if d.cfg.SpoolPath != "" {
		sp, err := openSpool(d.cfg)
		if err != nil {
			logging.Error("persistence: spool disabled, failed to open", "path", d.cfg.SpoolPath, "err", err)
		} else {
			d.spool = sp
		}
	}
	d.mu.Unlock()

	d.wg.Add(2)
	go d.run()
	go d.tick()
}

// tick broadcasts workCond every waitTick so the worker's wait loop
// re-checks the save queue head even when nothing new was pended,
// per spec.md §4.2 ("a delayed save becomes eligible even under
// silence").
func (d *Daemon) tick() {
	defer d.wg.Done()
	for {
		time.Sleep(waitTick)
		d.mu.Lock()
		running := d.running
		d.workCond.Broadcast()
		d.mu.Unlock()
		if !running {
			return
		}
	}
}

// Stop sets the quit flag, wakes the worker, and blocks until it
// exits.
func (d *Daemon) Stop() {
	d.mu.Lock()
	d.running = false
	d.workCond.Broadcast()
	d.mu.Unlock()
	d.wg.Wait()
	if d.spool != nil {
		d.spool.close()
	}
}

// WaitForAllAsyncOperations blocks until both queues are empty. It
// does not imply the head save's deadline has matured — a save
// pended with a future timestamp can make both queues report "empty"
// only once it and everything behind it have been dispatched, so in
// practice this returns once nothing is left to drain, matured or
// not yet matured but already dispatched.
func (d *Daemon) WaitForAllAsyncOperations() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for !(d.saves.empty() && d.loads.empty()) {
		d.drainCond.Wait()
	}
}

// FlushAndWait is the stronger operation spec.md §9 leaves as an open
// question: it waits for both queues to drain, then additionally
// waits for the local spool (if any) to report zero pending records,
// so a caller gets a guarantee that survives a DB outage window too.
func (d *Daemon) FlushAndWait(ctx context.Context) error {
	d.WaitForAllAsyncOperations()
	if d.spool == nil {
		return nil
	}
	return d.spool.waitDrained(ctx)
}

// PendForSaving enqueues obj for a write-behind save after the
// configured delay, coalescing with any save already pending for the
// same object.
func (d *Daemon) PendForSaving(obj PersistedObject) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ShutdownRejected
	}
	si := d.saves.alloc()
	si.object = obj
	si.deadline = time.Now().Add(d.cfg.SaveDelay)
	obj.intentSlot().Store(si)
	d.saves.push(si)
	d.workCond.Broadcast()
	d.mu.Unlock()
	return nil
}

// PendForLoading enqueues obj for a synchronous load matching filter.
// done, if non-nil, receives nil once a successful load completes;
// the daemon itself never invokes a user callback directly — on
// success it hands the completion to the job subsystem instead, per
// spec.md §4.2. Per spec.md §7's propagation policy, load failures do
// not invoke the completion callback at all: done is only ever
// signaled on success, so a caller blocking on it across a lost
// connection must pair it with WaitForAllAsyncOperations or its own
// reconnect awareness.
func (d *Daemon) PendForLoading(obj PersistedObject, filter string, done chan error) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ShutdownRejected
	}
	li := d.loads.alloc()
	li.object, li.filter, li.done = obj, filter, done
	d.loads.push(li)
	d.workCond.Broadcast()
	d.mu.Unlock()
	return nil
}

// run is the worker loop body, per spec.md §4.2's dispatch-order and
// connection-lifecycle rules.
func (d *Daemon) run() {
	defer d.wg.Done()
	logging.SetThreadTag("persistence")

	for {
		db, ok := d.connect()
		if !ok {
			return // Stop was called while backing off
		}
		d.db = db

		lost := d.serviceUntilConnectionLost()
		_ = d.db.Close()
		d.db = nil

		if !lost {
			return // graceful shutdown, queues drained
		}
	}
}

// connect loops with exponential backoff (1ms doubling up to
// MaxReconnDelay) until a ping succeeds or Stop is called. ok is
// false only in the latter case.
func (d *Daemon) connect() (*sql.DB, bool) {
	delay := time.Millisecond

	for {
		d.mu.Lock()
		running := d.running
		d.mu.Unlock()
		if !running {
			return nil, false
		}

		db, err := sql.Open("mysql", d.cfg.dsn())
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = db.PingContext(ctx)
			cancel()
		}
		if err == nil {
			if d.spool != nil {
				d.drainSpool(db)
			}
			return db, true
		}

		if db != nil {
			_ = db.Close()
		}
		logging.Error("persistence: connect failed, retrying", "delay", delay, "err", err)
		time.Sleep(delay)
		delay *= 2
		if delay > d.cfg.MaxReconnDelay {
			delay = d.cfg.MaxReconnDelay
		}
	}
}

// serviceUntilConnectionLost dispatches save/load work until a
// DbConnectError surfaces or the daemon is asked to stop with both
// queues drained. Returns true if the connection was lost (the caller
// should reconnect), false on graceful shutdown.
func (d *Daemon) serviceUntilConnectionLost() bool {
	for {
		d.mu.Lock()

		for {
			if !d.saves.empty() && due(d.saves.peek().deadline) {
				break
			}
			if !d.loads.empty() {
				break
			}
			if !d.running && d.saves.empty() && d.loads.empty() {
				d.drainCond.Broadcast()
				d.mu.Unlock()
				return false
			}
			// Woken either by a pend, by Stop, or by the periodic
			// tick — re-check the save queue head on every wakeup so
			// a deadline that matured during the wait is caught.
			d.workCond.Wait()
		}

		var si *SaveIntent
		if !d.saves.empty() && due(d.saves.peek().deadline) {
			si = d.saves.dequeue()
		}
		var li *LoadIntent
		if si == nil && !d.loads.empty() {
			li = d.loads.dequeue()
		}

		if d.saves.empty() && d.loads.empty() {
			d.drainCond.Broadcast()
		}
		db := d.db
		d.mu.Unlock()

		switch {
		case si != nil:
			if lost := d.dispatchSave(db, si); lost {
				return true
			}
		case li != nil:
			if lost := d.dispatchLoad(db, li); lost {
				return true
			}
		}
	}
}

// dispatchSave executes si unless it has been superseded, per the
// coalescing rule: the entry is live only if its address still
// matches the object's current intent slot.
func (d *Daemon) dispatchSave(db *sql.DB, si *SaveIntent) (lost bool) {
	defer func() {
		d.mu.Lock()
		d.saves.recycle(si)
		d.mu.Unlock()
	}()

	if si.object.intentSlot().Load() != si {
		return false // tombstone, superseded by a later pend
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := si.object.Save(ctx, db)
	cancel()
	if err == nil {
		return false
	}

	classified := classify(err)
	if _, isConnErr := classified.(*DbConnectError); isConnErr {
		logging.Error("persistence: save lost connection", "err", classified)
		if d.spool != nil {
			d.spoolSave(si)
		}
		return true
	}
	logging.Error("persistence: save failed", "err", classified)
	return false
}

// dispatchLoad executes li FIFO (loads never coalesce). On success it
// enables auto-save on the object and submits the completion to the
// job subsystem rather than invoking li.done directly from this
// goroutine. Per spec.md §7's propagation policy, a failed load is
// logged and the intent is dropped — the completion callback is never
// invoked for it, lost-connection or otherwise.
func (d *Daemon) dispatchLoad(db *sql.DB, li *LoadIntent) (lost bool) {
	defer func() {
		d.mu.Lock()
		d.loads.recycle(li)
		d.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := li.object.Load(ctx, db, li.filter)
	cancel()

	if err != nil {
		classified := classify(err)
		if _, isConnErr := classified.(*DbConnectError); isConnErr {
			logging.Error("persistence: load lost connection", "err", classified)
			return true
		}
		logging.Error("persistence: load failed", "err", classified)
		return false
	}

	li.object.EnableAutoSave()
	d.completeLoad(li)
	return false
}

// completeLoad hands a successful load's result to the job subsystem
// (spec.md §6); the daemon goroutine never calls into user code
// directly. It is only ever reached from the success path of
// dispatchLoad — load failures never call it, per spec.md §7.
func (d *Daemon) completeLoad(li *LoadIntent) {
	done := li.done
	if done == nil {
		return
	}
	if d.jobs != nil {
		submitted := d.jobs.Submit(func() { done <- nil })
		if submitted {
			return
		}
	}
	done <- nil
}

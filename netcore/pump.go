package netcore

import (
	"sync"

	"github.com/poseidon/poseidon/logging"
	"github.com/poseidon/poseidon/netcore/poller"
)

// Pump owns the readiness set, translates poller events into calls
// back into sessions, drains ready reads, and when a session has
// outstanding send-buffer bytes, drains them via doWrite. The pump is
// also the holder of each session's last strong reference; when it
// removes a session, the session becomes eligible for GC — which is
// what lets the servlet registry's weak dependency tokens (see
// servlet.Registry) eventually observe it as gone.
type Pump struct {
	p poller.Poller

	mu       sync.RWMutex
	sessions map[int]*pumpedSession

	readBuf    []byte
	writeBuf   []byte
	listenerFd int
	onAccept   func()
}

type pumpedSession struct {
	fd      int
	session Session
	base    *TcpSessionBase
}

// NewPump builds the platform poller (epoll on Linux, kqueue on
// Darwin/BSD) and an empty session set.
func NewPump() (*Pump, error) {
	p, err := poller.New()
	if err != nil {
		return nil, err
	}
	return &Pump{
		p:        p,
		sessions: make(map[int]*pumpedSession),
		readBuf:  make([]byte, 64*1024),
		writeBuf: make([]byte, 64*1024),
	}, nil
}

func (pu *Pump) addListener(fd int, onAccept func()) error {
	pu.listenerFd = fd
	pu.onAccept = onAccept
	return pu.p.Add(fd)
}

// addSession registers a freshly accepted session with the poller. It
// requires the concrete session to expose its embedded
// *TcpSessionBase, since the pump drives doRead/doWrite directly and
// hands the session a write-interest toggle it calls from Send.
func (pu *Pump) addSession(fd int, session Session) {
	base, ok := asTcpSessionBase(session)
	if !ok {
		logging.Error("netcore: session does not embed *TcpSessionBase, dropping", "fd", fd)
		return
	}
	pu.mu.Lock()
	pu.sessions[fd] = &pumpedSession{fd: fd, session: session, base: base}
	pu.mu.Unlock()
	base.bindDetachFn(func() { pu.removeSession(fd) })
	base.bindWriteInterestFn(func(writable bool) { pu.setWritable(fd, writable) })

	if err := pu.p.Add(fd); err != nil {
		logging.Error("netcore: failed to register session fd with poller", "fd", fd, "err", err)
		pu.removeSession(fd)
	}
}

func (pu *Pump) removeSession(fd int) {
	pu.mu.Lock()
	delete(pu.sessions, fd)
	pu.mu.Unlock()
	_ = pu.p.Remove(fd)
}

func (pu *Pump) setWritable(fd int, writable bool) {
	if err := pu.p.SetWritable(fd, writable); err != nil {
		logging.Warning("netcore: failed to toggle write interest", "fd", fd, "writable", writable, "err", err)
	}
}

// run drives the poll loop until stop is closed.
func (pu *Pump) run(stop <-chan struct{}) error {
	defer pu.p.Close()
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		events, err := pu.p.Wait(500)
		if err != nil {
			return err
		}
		for _, ev := range events {
			pu.handleEvent(ev)
		}
	}
}

func (pu *Pump) handleEvent(ev poller.Event) {
	if ev.Fd == pu.listenerFd {
		pu.onAccept()
		return
	}

	pu.mu.RLock()
	ps, ok := pu.sessions[ev.Fd]
	pu.mu.RUnlock()
	if !ok {
		return
	}

	if ev.Readable {
		n := ps.base.doRead(pu.readBuf)
		switch {
		case n < 0 && !ps.base.HasBeenShutdown():
			// Peer-initiated close or a hard read error: there's no
			// graceful half-close in progress to respect, so tear down now.
			ps.base.ForceShutdown()
			pu.removeSession(ev.Fd)
			return
		case n < 0:
			// Self-induced half-close: Shutdown() already called
			// SHUT_RD, which makes the fd immediately epoll-readable with
			// read() returning (0, nil) — doRead reports that the same way
			// it reports a peer close. Fall through to drainWrites instead
			// of tearing down, so any bytes still queued on the send
			// buffer get a chance to drain; drainWrites itself handles the
			// actual teardown once HasBeenShutdown() and SendBufferEmpty()
			// are both true.
		case n > 0:
			ps.base.dispatch(pu.readBuf[:n])
		}
	}

	pu.drainWrites(ev.Fd, ps)
}

// drainWrites pushes as much of ps's send buffer as the socket will
// currently take. A partial write (EAGAIN, or the kernel socket buffer
// filling) leaves the remainder queued and write interest armed, so
// the next writable tick resumes the drain instead of silently
// dropping the tail.
//
// Per spec.md §9, the pump only tears a shut-down session down once
// its shutdown flag is set *and* the send buffer is empty; flag-set
// with bytes still queued means keep writing, not force-close.
func (pu *Pump) drainWrites(fd int, ps *pumpedSession) {
	for {
		written, drained := ps.base.doWrite(pu.writeBuf)
		if drained {
			pu.setWritable(fd, false)
			break
		}
		if written == 0 {
			break
		}
	}

	if ps.base.HasBeenShutdown() && ps.base.SendBufferEmpty() {
		ps.base.ForceShutdown() // idempotent; closes fd once the half-close has drained
		pu.removeSession(fd)
	}
}

// asTcpSessionBase type-asserts session down to its embedded
// *TcpSessionBase via a small interface, since Session itself only
// exposes OnReadAvail.
func asTcpSessionBase(session Session) (*TcpSessionBase, bool) {
	type embedsBase interface {
		embeddedBase() *TcpSessionBase
	}
	if e, ok := session.(embedsBase); ok {
		return e.embeddedBase(), true
	}
	return nil, false
}

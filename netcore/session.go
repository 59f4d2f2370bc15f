// Package netcore is the socket I/O core: a non-blocking TCP listener
// pumped by an epoll/kqueue poller, sessions with a release-reacquire
// write path, and an optional TLS wrap exposing the same read/write
// shape as a raw fd. Grounded on the teacher's core/engine.go and
// core/poller, and on toastsandwich-epoll-learn's http1.0_server
// package for the raw Recv/Send retry-on-EAGAIN shape.
package netcore

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/poseidon/poseidon/logging"
)

// Session is the derived-class hook a concrete protocol session
// implements; TcpSessionBase (embedded by the concrete type) supplies
// everything else.
type Session interface {
	OnReadAvail(data []byte)
}

// RawIO is satisfied by both a plain fd and a TLS-wrapped fd, so
// TcpSessionBase.doRead/doWrite don't need to know which they have.
type RawIO interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// TcpSessionBase owns the connection fd, the derived remote-ip
// string, an append-only send buffer under a dedicated mutex, an
// atomic shutdown flag, and optionally TLS state — per spec.md §4.3.
type TcpSessionBase struct {
	fd       int
	remoteIP string
	io       RawIO // plain fd or *tlsIO

	sendMu  sync.Mutex
	sendBuf []byte

	shutdownFlag atomic.Bool

	self          Session     // the embedding concrete session, for OnReadAvail dispatch
	detachFn      func()      // unregisters this session from its pump; set by addSession
	requestWriteFn func(bool) // toggles write-readiness interest; set by addSession
}

// InitSession wires fd/remoteIP and the derived session's
// OnReadAvail hook. Concrete session constructors call this once
// after embedding TcpSessionBase; the server binds the plain or
// TLS-wrapped RawIO separately via bindIO once the TLS decision (if
// any) has been made, since that happens before the concrete
// constructor runs.
func (s *TcpSessionBase) InitSession(fd int, remoteIP string, self Session) {
	s.fd = fd
	s.remoteIP = remoteIP
	s.self = self
}

// bindIO attaches the RawIO (plain fd or TLS-wrapped) the server
// decided on for this session.
func (s *TcpSessionBase) bindIO(io RawIO) { s.io = io }

// embeddedBase lets the pump recover the base from a Session value
// without knowing the concrete embedding type.
func (s *TcpSessionBase) embeddedBase() *TcpSessionBase { return s }

// bindWriteInterestFn lets the pump hand this session a callback that
// arms or disarms write-readiness interest in the poller. Send and
// ShutdownWithFinal call it after queuing bytes so a session with
// nothing else to read still gets drained — per spec.md §4.3, Send
// "nudges the epoll pump to mark the session writable-interested"
// rather than relying on the next unrelated read event to trigger a
// write attempt.
func (s *TcpSessionBase) bindWriteInterestFn(fn func(bool)) { s.requestWriteFn = fn }

// bindDetachFn lets the pump hand this session a callback that
// unregisters its fd from the poller's readiness set, for sessions
// that hand their fd off to a different I/O model after a protocol
// upgrade (e.g. httpserver's WebSocket upgrade, which moves the fd to
// a blocking net.Conn and a dedicated goroutine pair).
func (s *TcpSessionBase) bindDetachFn(fn func()) { s.detachFn = fn }

// Detach unregisters this session from its pump without touching the
// fd itself. After Detach, the pump no longer calls doRead/doWrite or
// dispatch for this session; the caller takes over the fd's lifetime.
// It also marks the session shut down so a caller still holding the
// old *httpSession (e.g. to finish handling the request that
// triggered the upgrade) can't have a later Shutdown/ShutdownWithFinal
// call operate on an fd number that has since been reused.
func (s *TcpSessionBase) Detach() {
	s.shutdownFlag.Store(true)
	if s.detachFn != nil {
		s.detachFn()
	}
}

// FlushSync drains the send buffer synchronously, retrying briefly on
// EAGAIN. Used right before Detach, so a response queued via Send
// (e.g. a 101 Switching Protocols) reaches the wire before the fd is
// handed to a different I/O model that will start writing its own
// bytes on the same fd.
func (s *TcpSessionBase) FlushSync() {
	scratch := make([]byte, 4096)
	for attempt := 0; attempt < 100; attempt++ {
		written, drained := s.doWrite(scratch)
		if drained {
			return
		}
		if written == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	logging.Warning("netcore: FlushSync gave up with bytes still queued", "fd", s.fd)
}

func (s *TcpSessionBase) FD() int              { return s.fd }
func (s *TcpSessionBase) RemoteIP() string     { return s.remoteIP }
func (s *TcpSessionBase) HasBeenShutdown() bool { return s.shutdownFlag.Load() }

// SendBufferEmpty reports whether every queued byte has been written.
// The pump uses this to distinguish "shutdown flag set and the buffer
// has drained" (tear down) from "shutdown flag set but bytes are still
// queued" (keep writing), per spec.md §9.
func (s *TcpSessionBase) SendBufferEmpty() bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return len(s.sendBuf) == 0
}

// Send splices buffer onto the send queue and arms write-readiness
// interest so the pump drains it even if this session has nothing
// else to read. Returns false if the session has already been shut
// down. Thread-safe.
func (s *TcpSessionBase) Send(buffer []byte) bool {
	if s.shutdownFlag.Load() {
		return false
	}
	s.sendMu.Lock()
	s.sendBuf = append(s.sendBuf, buffer...)
	s.sendMu.Unlock()
	s.requestWrite()
	return true
}

func (s *TcpSessionBase) requestWrite() {
	if s.requestWriteFn != nil {
		s.requestWriteFn(true)
	}
}

// Shutdown performs the atomic shutdown-flag transition and
// half-closes the read side so already-queued outbound bytes can
// still drain. Returns true iff this call made the transition.
func (s *TcpSessionBase) Shutdown() bool {
	if !s.shutdownFlag.CompareAndSwap(false, true) {
		return false
	}
	if err := unix.Shutdown(s.fd, unix.SHUT_RD); err != nil {
		logging.Warning("netcore: half-close failed", "fd", s.fd, "err", err)
	}
	return true
}

// ShutdownWithFinal appends final bytes before half-closing.
func (s *TcpSessionBase) ShutdownWithFinal(final []byte) bool {
	s.sendMu.Lock()
	s.sendBuf = append(s.sendBuf, final...)
	s.sendMu.Unlock()
	s.requestWrite()
	return s.Shutdown()
}

// ForceShutdown performs the same flag transition, then closes both
// directions immediately, discarding any unsent bytes.
func (s *TcpSessionBase) ForceShutdown() bool {
	transitioned := s.shutdownFlag.CompareAndSwap(false, true)
	if err := unix.Close(s.fd); err != nil {
		logging.Warning("netcore: close failed", "fd", s.fd, "err", err)
	}
	return transitioned
}

// doRead delivers bytes into buf from the kernel (or, if TLS is
// active, from the TLS engine over the same fd). It returns 0 when no
// data is ready (EAGAIN), and a negative value on a read-terminating
// condition (peer close or a hard read error).
func (s *TcpSessionBase) doRead(buf []byte) int {
	n, err := s.io.Read(buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0
		}
		return -1
	}
	if n <= 0 {
		return -1
	}
	return n
}

// doWrite peeks up to len(scratch) bytes from the send buffer under
// sendMu, releases the mutex across the syscall/TLS write, then
// re-acquires it to discard the successfully-written prefix. The
// release-and-reacquire keeps a long syscall from holding off
// concurrent Send callers.
func (s *TcpSessionBase) doWrite(scratch []byte) (written int, drained bool) {
	s.sendMu.Lock()
	if len(s.sendBuf) == 0 {
		s.sendMu.Unlock()
		return 0, true
	}
	n := copy(scratch, s.sendBuf)
	s.sendMu.Unlock()

	wrote, err := s.io.Write(scratch[:n])
	if err != nil && wrote <= 0 {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, false
		}
		return 0, false
	}

	s.sendMu.Lock()
	s.sendBuf = s.sendBuf[wrote:]
	drained = len(s.sendBuf) == 0
	s.sendMu.Unlock()
	return wrote, drained
}

// dispatch hands received bytes to the embedding session's
// OnReadAvail hook.
func (s *TcpSessionBase) dispatch(data []byte) {
	if s.self != nil {
		s.self.OnReadAvail(data)
	}
}

// fdIO is the plain (non-TLS) RawIO implementation: direct syscalls on
// the non-blocking fd.
type fdIO struct{ fd int }

func (f fdIO) Read(p []byte) (int, error)  { return unix.Read(f.fd, p) }
func (f fdIO) Write(p []byte) (int, error) { return unix.Write(f.fd, p) }

package netcore

import (
	"testing"

	"golang.org/x/sys/unix"
)

type echoSession struct {
	TcpSessionBase
	received [][]byte
}

func (e *echoSession) OnReadAvail(data []byte) {
	cp := append([]byte(nil), data...)
	e.received = append(e.received, cp)
}

func newSocketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair failed: %v", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("setnonblock failed: %v", err)
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		t.Fatalf("setnonblock failed: %v", err)
	}
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func newEchoSession(fd int) *echoSession {
	s := &echoSession{}
	s.InitSession(fd, "127.0.0.1", s)
	s.bindIO(fdIO{fd: fd})
	return s
}

func TestSendThenDoWriteDrainsToPeer(t *testing.T) {
	local, peer := newSocketpair(t)
	s := newEchoSession(local)

	if !s.Send([]byte("hello")) {
		t.Fatal("expected Send to succeed before shutdown")
	}

	scratch := make([]byte, 64)
	written, drained := s.doWrite(scratch)
	if written != 5 {
		t.Fatalf("expected 5 bytes written, got %d", written)
	}
	if !drained {
		t.Fatal("expected send buffer to be fully drained")
	}

	buf := make([]byte, 64)
	n, err := unix.Read(peer, buf)
	if err != nil {
		t.Fatalf("peer read failed: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("expected peer to see %q, got %q", "hello", buf[:n])
	}
}

func TestDoReadDispatchesToOnReadAvail(t *testing.T) {
	local, peer := newSocketpair(t)
	s := newEchoSession(local)

	if _, err := unix.Write(peer, []byte("ping")); err != nil {
		t.Fatalf("peer write failed: %v", err)
	}

	buf := make([]byte, 64)
	n := s.doRead(buf)
	if n != 4 {
		t.Fatalf("expected 4 bytes read, got %d", n)
	}
	s.dispatch(buf[:n])

	if len(s.received) != 1 || string(s.received[0]) != "ping" {
		t.Fatalf("expected OnReadAvail to see %q, got %v", "ping", s.received)
	}
}

func TestSendAfterShutdownFails(t *testing.T) {
	local, _ := newSocketpair(t)
	s := newEchoSession(local)

	if !s.Shutdown() {
		t.Fatal("expected first Shutdown to make the transition")
	}
	if s.Shutdown() {
		t.Fatal("expected second Shutdown to report no transition")
	}
	if s.Send([]byte("too late")) {
		t.Fatal("expected Send to fail after shutdown")
	}
	if !s.HasBeenShutdown() {
		t.Fatal("expected HasBeenShutdown to report true")
	}
}

func TestForceShutdownClosesFd(t *testing.T) {
	local, peer := newSocketpair(t)
	s := newEchoSession(local)

	if !s.ForceShutdown() {
		t.Fatal("expected ForceShutdown to make the transition")
	}

	buf := make([]byte, 16)
	// The peer should now observe EOF (read returns 0) or ECONNRESET
	// since the local side closed both directions immediately.
	_, err := unix.Write(peer, []byte("x"))
	if err == nil {
		n, rerr := unix.Read(peer, buf)
		if rerr == nil && n != 0 {
			t.Fatalf("expected EOF-like behavior after ForceShutdown, got n=%d err=%v", n, rerr)
		}
	}
}

func TestDoReadReturnsZeroOnEAGAIN(t *testing.T) {
	local, _ := newSocketpair(t)
	s := newEchoSession(local)

	buf := make([]byte, 16)
	n := s.doRead(buf)
	if n != 0 {
		t.Fatalf("expected 0 (no data ready) on an idle non-blocking socket, got %d", n)
	}
}

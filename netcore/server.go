package netcore

import (
	"crypto/tls"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/poseidon/poseidon/logging"
	"github.com/poseidon/poseidon/netcore/poller"
)

// OnClientConnect is the subclass hook: given an accepted fd and its
// remote address, construct and return the concrete session. The
// returned session must have already called InitSession.
type OnClientConnect func(fd int, remote net.Addr) (Session, error)

// TcpServerBase owns a non-blocking listening socket and the pump
// that drives every accepted session, per spec.md §4.3.
type TcpServerBase struct {
	listenFd int
	addr     net.Addr
	tlsCfg   *tls.Config // nil means plain TCP

	onConnect OnClientConnect
	pump      *Pump
}

// NewTcpServerBase binds and listens on addr (e.g. "0.0.0.0:9000").
// If tlsCfg is non-nil, accepted sessions are wrapped in server-side
// TLS before onConnect's return value starts receiving reads.
func NewTcpServerBase(addr string, tlsCfg *tls.Config, onConnect OnClientConnect) (*TcpServerBase, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(nil, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return nil, fmt.Errorf("netcore: %s did not produce a TCP listener", addr)
	}
	file, err := tcpLn.File()
	if err != nil {
		return nil, fmt.Errorf("failed to extract listener fd: %w", err)
	}
	fd := int(file.Fd())
	if err := poller.SetNonblock(fd); err != nil {
		return nil, fmt.Errorf("failed to set listener non-blocking: %w", err)
	}

	s := &TcpServerBase{
		listenFd:  fd,
		addr:      tcpLn.Addr(),
		tlsCfg:    tlsCfg,
		onConnect: onConnect,
	}
	return s, nil
}

// Serve builds a Pump over the listening socket and runs it until
// stop is closed. It blocks; callers run it in its own goroutine.
func (s *TcpServerBase) Serve(stop <-chan struct{}) error {
	p, err := NewPump()
	if err != nil {
		return fmt.Errorf("failed to build pump: %w", err)
	}
	s.pump = p
	if err := p.addListener(s.listenFd, s.accept); err != nil {
		return fmt.Errorf("failed to register listener with pump: %w", err)
	}
	return p.run(stop)
}

// accept drains ready connections off the listening socket (level
// triggered, so loop until EAGAIN) and hands each to onConnect,
// wrapping in server TLS first when configured.
func (s *TcpServerBase) accept() {
	for {
		fd, sa, err := unix.Accept(s.listenFd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			logging.Error("netcore: accept failed", "err", err)
			return
		}
		if err := poller.SetNonblock(fd); err != nil {
			logging.Error("netcore: failed to set accepted fd non-blocking", "err", err)
			_ = unix.Close(fd)
			continue
		}

		remote := sockaddrToTCPAddr(sa)
		s.acceptOne(fd, remote)
	}
}

func (s *TcpServerBase) acceptOne(fd int, remote net.Addr) {
	var io RawIO = fdIO{fd: fd}
	if s.tlsCfg != nil {
		// wrapServerTLS's only error return is *TlsError, per spec.md §7.
		t, err := wrapServerTLS(fd, remote, s.tlsCfg)
		if err != nil {
			logging.Error("netcore: server tls handshake failed", "remote", remote, "err", err)
			_ = unix.Close(fd)
			return
		}
		io = t
	}

	session, err := s.onConnect(fd, remote)
	if err != nil {
		logging.Error("netcore: onClientConnect rejected session", "remote", remote, "err", err)
		_ = unix.Close(fd)
		return
	}
	if base, ok := session.(interface {
		bindIO(RawIO)
	}); ok {
		base.bindIO(io)
	}
	s.pump.addSession(fd, session)
}

func sockaddrToTCPAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return &net.TCPAddr{}
	}
}

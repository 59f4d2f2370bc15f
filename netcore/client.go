package netcore

import (
	"crypto/tls"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/poseidon/poseidon/netcore/poller"
)

// Dial opens a plain outbound TCP session and binds it to the given
// Session via its embedded *TcpSessionBase.
func Dial(network, addr string, construct func(fd int, remote net.Addr) (Session, error)) (Session, error) {
	return dial(network, addr, nil, construct)
}

// DialTLS opens an outbound TCP session and performs a client-side
// TLS handshake eagerly before construct runs. A nil cfg defaults to
// InsecureSkipVerify, per spec.md §4.3's "none by default" policy;
// callers wanting strict verification must pass their own *tls.Config.
func DialTLS(network, addr string, cfg *tls.Config, construct func(fd int, remote net.Addr) (Session, error)) (Session, error) {
	if cfg == nil {
		cfg = &tls.Config{InsecureSkipVerify: true}
	}
	return dial(network, addr, cfg, construct)
}

func dial(network, addr string, cfg *tls.Config, construct func(fd int, remote net.Addr) (Session, error)) (Session, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("netcore: dial %s failed: %w", addr, err)
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("netcore: %s did not produce a TCP connection", addr)
	}
	file, err := tcpConn.File()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("netcore: failed to extract connection fd: %w", err)
	}
	// tcpConn.File() dup()s the fd; the original managed by net.Conn
	// can be closed now, this session owns the duplicate.
	_ = conn.Close()
	fd := int(file.Fd())

	if err := poller.SetNonblock(fd); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netcore: failed to set dialed fd non-blocking: %w", err)
	}

	remote := tcpConn.RemoteAddr()
	var io RawIO = fdIO{fd: fd}
	if cfg != nil {
		t, err := wrapClientTLS(fd, remote, cfg)
		if err != nil {
			_ = unix.Close(fd)
			return nil, err
		}
		io = t
	}

	session, err := construct(fd, remote)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if base, ok := session.(interface{ bindIO(RawIO) }); ok {
		base.bindIO(io)
	}
	return session, nil
}

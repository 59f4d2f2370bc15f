package httpserver

import (
	"net"
	"time"

	"github.com/poseidon/poseidon/netcore"
)

// sessionConn adapts an *httpSession's embedded netcore.TcpSessionBase
// into the net.Conn the kept core/http.Context expects to Write
// responses onto. Reads are never issued through this adapter —
// httpSession receives bytes from OnReadAvail's push, not a pull
// Read() — so Read is a stub.
type sessionConn struct {
	base *netcore.TcpSessionBase
}

func (c *sessionConn) Read(p []byte) (int, error) { return 0, net.ErrClosed }

func (c *sessionConn) Write(p []byte) (int, error) {
	if !c.base.Send(p) {
		return 0, net.ErrClosed
	}
	return len(p), nil
}

func (c *sessionConn) Close() error                       { c.base.ForceShutdown(); return nil }
func (c *sessionConn) LocalAddr() net.Addr                { return nil }
func (c *sessionConn) RemoteAddr() net.Addr                { return nil }
func (c *sessionConn) SetDeadline(t time.Time) error       { return nil }
func (c *sessionConn) SetReadDeadline(t time.Time) error   { return nil }
func (c *sessionConn) SetWriteDeadline(t time.Time) error  { return nil }

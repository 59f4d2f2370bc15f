package httpserver

import (
	"crypto/tls"
	"net"

	"github.com/poseidon/poseidon/netcore"
)

// Server runs an HTTP/1.1 listener over netcore, dispatching parsed
// requests through a Mux's router + servlet registry.
type Server struct {
	base *netcore.TcpServerBase
	mux  *Mux
}

// NewServer binds addr. tlsCfg is nil for plain HTTP, non-nil for
// HTTPS — the TLS handshake happens inside netcore before any
// httpSession sees a byte.
func NewServer(addr string, tlsCfg *tls.Config, mux *Mux) (*Server, error) {
	s := &Server{mux: mux}
	base, err := netcore.NewTcpServerBase(addr, tlsCfg, s.onConnect)
	if err != nil {
		return nil, err
	}
	s.base = base
	return s, nil
}

func (s *Server) onConnect(fd int, remote net.Addr) (netcore.Session, error) {
	session := newHTTPSession(s.mux)
	session.InitSession(fd, remote.String(), session)
	return session, nil
}

// Serve blocks, running the accept/pump loop until stop is closed.
func (s *Server) Serve(stop <-chan struct{}) error {
	return s.base.Serve(stop)
}

package httpserver

import (
	"fmt"
	"net"
	"os"

	corehttp "github.com/poseidon/poseidon/core/http"
	"github.com/poseidon/poseidon/netcore"
)

// detachToBlockingConn flushes base's send buffer, pulls it out of its
// netcore pump, and promotes its fd to a plain blocking net.Conn via
// the Go runtime's own netpoller. Used for protocol upgrades (the
// WebSocket handshake) and for handlers that outlive the request that
// started them (a long-lived SSE stream): either way, the fd moves
// from netcore's single-pump model to a dedicated goroutine, and must
// stop being touched by the pump from this point on.
func detachToBlockingConn(base *netcore.TcpSessionBase) (net.Conn, error) {
	base.FlushSync()
	fd := base.FD()
	base.Detach()

	file := os.NewFile(uintptr(fd), "detached-conn")
	conn, err := net.FileConn(file)
	file.Close()
	return conn, err
}

// Detach hands the connection behind ctx off to the calling code as a
// plain blocking net.Conn, removing it from the netcore pump first. A
// servlet that needs to hold its connection open past the handler
// call that received it — an SSE stream, a long poll — must call this
// before spawning whatever goroutine owns the connection from then on;
// otherwise its blocking writes would stall the pump's single
// goroutine for every other session.
func Detach(ctx corehttp.Context) (net.Conn, error) {
	sc, ok := ctx.Conn().(*sessionConn)
	if !ok {
		return nil, fmt.Errorf("httpserver: Detach called on a connection netcore didn't hand out")
	}
	return detachToBlockingConn(sc.base)
}

package httpserver

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"
	"sync/atomic"

	corehttp "github.com/poseidon/poseidon/core/http"
	"github.com/poseidon/poseidon/core/websocket"
	"github.com/poseidon/poseidon/logging"
)

// Upgrade/Sec-WebSocket-Key are looked up via Context.Header-style
// canonicalization (corehttp.Request.SetHeader stores ExtraHeaders
// keyed by their canonical MIME form), not the literal wire casing.

// websocketAcceptGUID is RFC 6455's fixed handshake magic string.
// core/websocket has no handshake code of its own; this session's
// request has already been consumed by corehttp.ParseRequest by the
// time isWebsocketUpgrade runs, so the handshake response is built
// here from the already-parsed headers.
const websocketAcceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var wsConnSeq atomic.Uint64

// isWebsocketUpgrade reports whether req asks to switch to the
// WebSocket protocol.
func isWebsocketUpgrade(req *corehttp.Request) bool {
	return strings.EqualFold(req.GetHeader("Upgrade"), "websocket")
}

// upgradeToWebsocket completes the handshake on s's connection, hands
// the fd off to a blocking net.Conn, and registers it with hub —
// which spawns the read/write pump goroutines. s is detached from its
// netcore pump first: from this point on the fd belongs entirely to
// the teacher's websocket.Hub, not to the epoll/kqueue pump.
func (s *httpSession) upgradeToWebsocket(req *corehttp.Request, hub *websocket.Hub) {
	key := req.GetHeader("Sec-WebSocket-Key")
	if key == "" {
		s.Send([]byte("HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\n\r\n"))
		return
	}

	accept := computeWebsocketAccept(key)
	response := fmt.Sprintf(
		"HTTP/1.1 101 Switching Protocols\r\n"+
			"Upgrade: websocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Accept: %s\r\n\r\n",
		accept,
	)
	if !s.Send([]byte(response)) {
		return
	}

	conn, err := detachToBlockingConn(&s.TcpSessionBase)
	if err != nil {
		logging.Error("httpserver: failed to hand fd to a blocking net.Conn for websocket", "err", err)
		return
	}

	wsConn := websocket.NewConn(conn)
	clientID := fmt.Sprintf("ws-%d", wsConnSeq.Add(1))
	client := websocket.NewClient(clientID, wsConn)
	if err := hub.Register(client); err != nil {
		logging.Warning("httpserver: websocket hub rejected client", "client", clientID, "err", err)
		wsConn.Close()
	}
}

func computeWebsocketAccept(key string) string {
	h := sha1.New()
	h.Write([]byte(key + websocketAcceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

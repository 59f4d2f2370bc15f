package httpserver

import (
	"bytes"
	"strconv"

	corehttp "github.com/poseidon/poseidon/core/http"
	"github.com/poseidon/poseidon/netcore"
)

// httpSession adapts one accepted netcore connection into a pipeline
// of complete HTTP/1.1 requests: OnReadAvail accumulates bytes until
// a full request (headers plus any body declared by Content-Length)
// is available, then hands it to core/http's low-allocation parser
// and dispatches the resulting Context through mux.
//
// HTTP/1.1 keep-alive means a single session's buffer can hold more
// than one pipelined request; OnReadAvail drains all complete ones
// it finds before returning.
type httpSession struct {
	netcore.TcpSessionBase

	mux *Mux
	buf []byte
}

func newHTTPSession(mux *Mux) *httpSession {
	return &httpSession{mux: mux}
}

func (s *httpSession) OnReadAvail(data []byte) {
	s.buf = append(s.buf, data...)

	for {
		n, ok := s.extractRequest()
		if !ok {
			return
		}
		raw := s.buf[:n]
		s.buf = append([]byte(nil), s.buf[n:]...)
		s.handle(raw)
	}
}

// extractRequest reports the length of the first complete request in
// s.buf, if any: header terminator plus Content-Length bytes of body.
func (s *httpSession) extractRequest() (int, bool) {
	headerEnd := bytes.Index(s.buf, []byte("\r\n\r\n"))
	sep := 4
	if headerEnd == -1 {
		headerEnd = bytes.Index(s.buf, []byte("\n\n"))
		sep = 2
		if headerEnd == -1 {
			return 0, false
		}
	}

	bodyStart := headerEnd + sep
	contentLength := headerContentLength(s.buf[:headerEnd])
	total := bodyStart + contentLength
	if len(s.buf) < total {
		return 0, false
	}
	return total, true
}

func headerContentLength(header []byte) int {
	const key = "content-length:"
	lower := bytes.ToLower(header)
	idx := bytes.Index(lower, []byte(key))
	if idx == -1 {
		return 0
	}
	rest := header[idx+len(key):]
	lineEnd := bytes.IndexAny(rest, "\r\n")
	if lineEnd != -1 {
		rest = rest[:lineEnd]
	}
	n, err := strconv.Atoi(string(bytes.TrimSpace(rest)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (s *httpSession) handle(raw []byte) {
	req, err := corehttp.ParseRequest(raw)
	if err != nil {
		s.Send([]byte("HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\n\r\n"))
		return
	}
	defer corehttp.ReleaseRequest(req)

	if isWebsocketUpgrade(req) {
		if hub, ok := s.mux.websocketHub(req.Path); ok {
			s.upgradeToWebsocket(req, hub)
			return
		}
	}

	conn := &sessionConn{base: &s.TcpSessionBase}
	ctx := corehttp.AcquireContextForConn(conn, req)
	defer corehttp.ReleaseContext(ctx)

	s.mux.dispatch(ctx, req)

	if req.Connection == "close" {
		s.ShutdownWithFinal(nil)
	}
}

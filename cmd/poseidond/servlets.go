package main

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/poseidon/poseidon/config"
	corehttp "github.com/poseidon/poseidon/core/http"
	"github.com/poseidon/poseidon/core/pools"
	"github.com/poseidon/poseidon/core/sse"
	"github.com/poseidon/poseidon/core/websocket"
	"github.com/poseidon/poseidon/httpserver"
	"github.com/poseidon/poseidon/logging"
)

var sseClientSeq atomic.Uint64

// newMux registers the always-on servlets every Poseidon deployment
// carries regardless of application-specific routes: a liveness
// probe, a request-timing/GC snapshot, an admin config endpoint, a
// broadcast-to-everyone WebSocket endpoint, and a Server-Sent Events
// feed. Application servlets are registered the same way, typically
// gated on a dependency rather than RegisterServletAlways, from their
// own package's init path.
func newMux(mgr *config.Manager) *httpserver.Mux {
	mux := httpserver.NewMux()

	mux.RegisterServletAlways("GET", "/healthz", func(ctx any) {
		ctx.(corehttp.Context).Success(map[string]string{"status": "ok"})
	})

	mux.RegisterServletAlways("GET", "/metrics", func(ctxAny any) {
		ctx := ctxAny.(corehttp.Context)
		ctx.Success(map[string]any{
			"gc":          pools.GetGCStats(),
			"bottlenecks": mux.Monitor().GetBottlenecks(),
		})
	})

	mux.RegisterServletAlways("GET", "/admin/config", func(ctxAny any) {
		ctxAny.(corehttp.Context).Success(mgr.GetAll())
	})

	// POST /admin/config/:key edits a single config value live and
	// relies on mgr's Watch callbacks (app.New registers one for
	// "metrics_enabled") to push the change into whatever component
	// cares, rather than this handler knowing about them itself.
	mux.RegisterServletAlways("POST", "/admin/config/:key", func(ctxAny any) {
		ctx := ctxAny.(corehttp.Context)
		var body struct {
			Value any `json:"value"`
		}
		if err := ctx.Bind(&body); err != nil {
			ctx.Error(400, "invalid request body")
			return
		}
		key := ctx.Param("key")
		mgr.Set(key, body.Value)
		ctx.Success(map[string]any{"key": key, "value": body.Value})
	})

	chat := websocket.NewHub(0)
	mux.RegisterWebsocket("/ws/chat", chat)

	events := sse.NewStream("events")
	mux.RegisterServletAlways("GET", "/events", func(ctxAny any) {
		serveEvents(ctxAny.(corehttp.Context), events, "")
	})
	mux.RegisterServletAlways("GET", "/events/:room", func(ctxAny any) {
		ctx := ctxAny.(corehttp.Context)
		serveEvents(ctx, events, ctx.Param("room"))
	})

	return mux
}

// serveEvents detaches ctx's connection from the netcore pump so a
// long-lived stream doesn't block it, writes the SSE response headers
// by hand (the normal ctx.Success/ctx.JSON path assumes one response
// per request), then hands off to core/sse's own event loop. An empty
// room subscribes to every event on stream; a non-empty one scopes
// delivery to sse.Stream.Room(room).
func serveEvents(ctx corehttp.Context, stream *sse.Stream, room string) {
	conn, err := httpserver.Detach(ctx)
	if err != nil {
		ctx.Error(500, "stream unavailable")
		return
	}

	clientID := fmt.Sprintf("sse-%d", sseClientSeq.Add(1))
	go func() {
		defer conn.Close()

		var header strings.Builder
		header.WriteString("HTTP/1.1 200 OK\r\n")
		for k, v := range sse.WriteSSEHeaders() {
			fmt.Fprintf(&header, "%s: %s\r\n", k, v)
		}
		header.WriteString("\r\n")
		if _, err := conn.Write([]byte(header.String())); err != nil {
			return
		}

		writeFrame := func(chunk []byte) error {
			_, writeErr := conn.Write(chunk)
			return writeErr
		}

		var streamErr error
		if room == "" {
			streamErr = sse.NewHandler(stream).HandleConnection(clientID, writeFrame, nil)
		} else {
			streamErr = serveRoomEvents(stream.Room(room), clientID, writeFrame)
		}
		if streamErr != nil {
			logging.Warning("poseidond: sse stream ended", "client", clientID, "room", room, "err", streamErr)
		}
	}()
}

// serveRoomEvents mirrors Handler.HandleConnection's loop but against
// a room-scoped subscription rather than the whole stream.
func serveRoomEvents(room *sse.Room, clientID string, onEvent func([]byte) error) error {
	client, err := room.Join(clientID)
	if err != nil {
		return err
	}
	defer room.Leave(clientID)

	for event := range client.Channel {
		if err := onEvent(sse.FormatEvent(event)); err != nil {
			return err
		}
	}
	return nil
}

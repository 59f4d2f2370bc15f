package sse

import (
	"fmt"
)

type Handler struct {
	stream *Stream
}

func NewHandler(stream *Stream) *Handler {
	return &Handler{
		stream: stream,
	}
}

func (h *Handler) HandleConnection(clientID string, onEvent func([]byte) error, onClose func()) error {
	client, err := h.stream.Subscribe(clientID)
	if err != nil {
		return err
	}
	defer func() {
		h.stream.Unsubscribe(client)
		if onClose != nil {
			onClose()
		}
	}()

	connectEvent := &Event{
		Event: "connected",
		Data:  fmt.Sprintf("client_id:%s", clientID),
	}

	if err := onEvent(FormatEvent(connectEvent)); err != nil {
		return err
	}

	for {
		select {
		case event, ok := <-client.Channel:
			if !ok {
				return nil
			}

			if err := onEvent(FormatEvent(event)); err != nil {
				return err
			}

		case <-client.closeCh:
			return nil
		}
	}
}

// WriteSSEHeaders returns the response headers a long-lived event
// stream needs on top of the normal 200 status line; X-Accel-Buffering
// matters specifically when Poseidon sits behind an nginx proxy that
// would otherwise buffer the stream and defeat the point of it.
func WriteSSEHeaders() map[string]string {
	return map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"Connection":        "keep-alive",
		"X-Accel-Buffering": "no",
	}
}

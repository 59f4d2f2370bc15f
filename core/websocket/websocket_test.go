package websocket

import (
	"encoding/json"
	"net"
	"testing"
	"time"
)

func TestFrameRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	serverConn := NewConn(server)
	clientConn := NewConn(client)

	go clientConn.WriteText("Hello, World!")

	msg, err := serverConn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msg.OpCode != OpText {
		t.Errorf("OpCode = %v, want OpText", msg.OpCode)
	}
	if string(msg.Payload) != "Hello, World!" {
		t.Errorf("Payload = %q, want %q", msg.Payload, "Hello, World!")
	}
}

// TestReadMessageAnswersPingWithPong checks that ReadMessage answers
// an inbound ping itself rather than surfacing it as a Message — the
// peer sees a raw pong frame come back with no caller action needed.
func TestReadMessageAnswersPingWithPong(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	serverConn := NewConn(server)
	clientConn := NewConn(client)

	go clientConn.Ping()
	go serverConn.ReadMessage() // answers the ping with a pong, then blocks for more

	done := make(chan struct{})
	go func() {
		frame, err := clientConn.readFrame()
		if err == nil && frame.OpCode == OpPong {
			close(done)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pong")
	}
}

func TestHubRegisterEnforcesMaxClients(t *testing.T) {
	hub := NewHub(1)

	_, clientConn := net.Pipe()
	defer clientConn.Close()

	a := NewClient("a", NewConn(clientConn))
	if err := hub.Register(a); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	time.Sleep(10 * time.Millisecond) // let run() process the registration before the count check below

	b := NewClient("b", NewConn(clientConn))
	if err := hub.Register(b); err == nil {
		t.Fatal("expected second Register to fail once maxClients is reached")
	}
}

// TestReadPumpRelaysTextAsMessageEvent checks that an inbound text
// frame from one client is JSON-wrapped and relayed to the others,
// rather than silently dropped.
func TestReadPumpRelaysTextAsMessageEvent(t *testing.T) {
	hub := NewHub(10)

	senderSrv, senderCli := net.Pipe()
	defer senderSrv.Close()
	defer senderCli.Close()
	receiverSrv, receiverCli := net.Pipe()
	defer receiverSrv.Close()
	defer receiverCli.Close()

	sender := NewClient("sender", NewConn(senderSrv))
	receiver := NewClient("receiver", NewConn(receiverSrv))

	if err := hub.Register(sender); err != nil {
		t.Fatalf("register sender: %v", err)
	}
	if err := hub.Register(receiver); err != nil {
		t.Fatalf("register receiver: %v", err)
	}

	senderClientConn := NewConn(senderCli)
	if err := senderClientConn.WriteText("hi"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	receiverClientConn := NewConn(receiverCli)

	var gotMessage bool
	deadline := time.After(2 * time.Second)
	for !gotMessage {
		receiverCli.SetReadDeadline(time.Now().Add(2 * time.Second))
		msg, err := receiverClientConn.ReadMessage()
		if err != nil {
			select {
			case <-deadline:
				t.Fatalf("timed out waiting for relayed message: %v", err)
			default:
				continue
			}
		}

		var ev Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			continue
		}
		if ev.Type == EventMessage && ev.ClientID == "sender" && ev.Data == "hi" {
			gotMessage = true
		}
	}
}

package sse

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type Stream struct {
	broker    *Broker
	eventID   atomic.Uint64
	namespace string

	roomsMu sync.Mutex
	rooms   map[string]*Room
}

func NewStream(namespace string) *Stream {
	return &Stream{
		broker:    NewBroker(10000, 30*time.Second),
		namespace: namespace,
	}
}

func (s *Stream) WithBroker(broker *Broker) *Stream {
	s.broker = broker
	return s
}

func (s *Stream) Subscribe(clientID string) (*Client, error) {
	client := NewClient(clientID, 100)
	err := s.broker.Register(client)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (s *Stream) Unsubscribe(client *Client) {
	s.broker.Unregister(client)
}

func (s *Stream) Send(eventType, data string) error {
	id := s.eventID.Add(1)
	event := &Event{
		ID:    fmt.Sprintf("%s-%d", s.namespace, id),
		Event: eventType,
		Data:  data,
	}

	s.broker.Publish(event)
	return nil
}

func (s *Stream) SendTo(clientID, eventType, data string) error {
	id := s.eventID.Add(1)
	event := &Event{
		ID:    fmt.Sprintf("%s-%d", s.namespace, id),
		Event: eventType,
		Data:  data,
	}

	if !s.broker.PublishToClient(clientID, event) {
		return fmt.Errorf("client not found or channel full")
	}
	return nil
}

func (s *Stream) Broadcast(message string) error {
	return s.Send("message", message)
}

func (s *Stream) ClientCount() int {
	return s.broker.ClientCount()
}

func (s *Stream) Stats() map[string]interface{} {
	stats := s.broker.Stats()
	stats["namespace"] = s.namespace
	stats["event_id"] = s.eventID.Load()
	return stats
}

// Room scopes broadcasts to a named subset of a Stream's subscribers.
// Its clients are still registered with the stream's broker (so
// per-client backpressure and keepalives behave identically to an
// unscoped subscriber); Room only narrows who a Broadcast reaches.
type Room struct {
	name    string
	clients sync.Map
	stream  *Stream
}

// Room returns (creating if necessary) the named room scoped to s.
func (s *Stream) Room(name string) *Room {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()
	if s.rooms == nil {
		s.rooms = make(map[string]*Room)
	}
	if r, ok := s.rooms[name]; ok {
		return r
	}
	r := &Room{name: name, stream: s}
	s.rooms[name] = r
	return r
}

// Join subscribes clientID through the room's stream and adds it to
// the room's broadcast set; callers get back the same *Client a plain
// Stream.Subscribe would hand them, wired into a narrower audience.
func (r *Room) Join(clientID string) (*Client, error) {
	client, err := r.stream.Subscribe(clientID)
	if err != nil {
		return nil, err
	}
	r.clients.Store(client.ID, client)
	return client, nil
}

func (r *Room) Leave(clientID string) {
	if val, ok := r.clients.LoadAndDelete(clientID); ok {
		r.stream.Unsubscribe(val.(*Client))
	}
}

func (r *Room) Broadcast(eventType, data string) {
	id := r.stream.eventID.Add(1)
	event := &Event{
		ID:    fmt.Sprintf("%s-%s-%d", r.stream.namespace, r.name, id),
		Event: eventType,
		Data:  data,
	}

	r.clients.Range(func(key, value interface{}) bool {
		client := value.(*Client)
		client.Send(event)
		return true
	})
}

func (r *Room) ClientCount() int {
	count := 0
	r.clients.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

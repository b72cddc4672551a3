package relaysix

import (
	"sync"
	"time"

	"github.com/relaysix/relaysix/callback"
	siop "github.com/relaysix/relaysix/protocol"
	sess "github.com/relaysix/relaysix/session"
)

// reservedEventNames is consulted from exactly one place, On and the
// inbound EVENT dispatch path both call reserved(name), so registering
// a reserved name and receiving one from the wire are rejected
// consistently (spec.md §9, "the source enforces this in places only").
var reservedEventNames = map[string]struct{}{
	"connect":        {},
	"disconnect":     {},
	"disconnecting":  {},
	"connect_error":  {},
	"newListener":    {},
	"removeListener": {},
}

func reserved(name string) bool {
	_, ok := reservedEventNames[name]
	return ok
}

// NamespaceSocket is one connected peer's view of one Namespace
// (spec.md §3, NamespaceSocket). Its id equals the engine session id
// in the default namespace and is freshly generated in every other
// namespace.
type NamespaceSocket struct {
	ID sess.ID

	nsp    *Namespace
	client *Client
	req    *Request

	mu           sync.Mutex
	connected    bool
	listeners    map[string][]callback.Callback
	onDisconnect []func(reason string)
	data         map[string]interface{}

	acks *ackTracker
}

func newNamespaceSocket(nsp *Namespace, client *Client, id sess.ID, req *Request) *NamespaceSocket {
	return &NamespaceSocket{
		ID:        id,
		nsp:       nsp,
		client:    client,
		req:       req,
		connected: true,
		listeners: make(map[string][]callback.Callback),
		data:      make(map[string]interface{}),
		acks:      newAckTracker(),
	}
}

// On registers a listener for event. fn may be a callback.Callback
// built by hand, or an ordinary Go function — callback.FromFunc infers
// its wire conversion from its own signature. Reserved names are
// rejected (spec.md §9, reserved event names).
func (s *NamespaceSocket) On(event string, fn interface{}) error {
	if reserved(event) {
		return ErrUnsupportedEventName.F(event)
	}
	cb, err := callback.FromFunc(fn)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listeners[event] = append(s.listeners[event], cb)
	s.mu.Unlock()
	return nil
}

// OnDisconnect registers a hook run when this socket disconnects
// (client namespace disconnect, transport loss, or server-initiated).
func (s *NamespaceSocket) OnDisconnect(fn func(reason string)) {
	s.mu.Lock()
	s.onDisconnect = append(s.onDisconnect, fn)
	s.mu.Unlock()
}

func (s *NamespaceSocket) Set(key string, v interface{}) {
	s.mu.Lock()
	s.data[key] = v
	s.mu.Unlock()
}

func (s *NamespaceSocket) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *NamespaceSocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Join adds this socket to rooms in addition to its self-named room
// (spec.md §3 invariant 2, always kept).
func (s *NamespaceSocket) Join(rooms ...string) {
	s.nsp.adapter.AddAll(s.ID, rooms)
}

// Leave removes this socket from room.
func (s *NamespaceSocket) Leave(room string) {
	s.nsp.adapter.Del(s.ID, room)
}

// Rooms returns the rooms this socket currently belongs to, including
// its self-named room.
func (s *NamespaceSocket) Rooms() map[string]struct{} {
	return s.nsp.adapter.SocketRooms(s.ID)
}

// Emit sends an EVENT directly to this socket, with no ack requested.
func (s *NamespaceSocket) Emit(event string, args ...interface{}) error {
	pac, err := siop.EncodeEvent(s.nsp.server.codec, siop.Event, s.nsp.name, nil, append([]interface{}{event}, args...))
	if err != nil {
		return err
	}
	return s.client.bridge.Send(pac)
}

// EmitWithAck sends an EVENT with a server-assigned ackId and invokes
// fn once the peer replies or timeout elapses, whichever comes first
// (spec.md §4.3, "Ack timeouts"; a timeout of 0 disables the timer).
func (s *NamespaceSocket) EmitWithAck(event string, timeout time.Duration, fn func(args []interface{}, err error), args ...interface{}) error {
	id := s.acks.register(timeout, fn)
	pac, err := siop.EncodeEvent(s.nsp.server.codec, siop.Event, s.nsp.name, &id, append([]interface{}{event}, args...))
	if err != nil {
		s.acks.resolve(id, nil, err)
		return err
	}
	return s.client.bridge.Send(pac)
}

// dispatch routes one decoded EVENT/BINARY_EVENT payload to registered
// listeners (spec.md §4.3, "the NamespaceSocket delivers data[0] as
// event name and data[1..] as args").
func (s *NamespaceSocket) dispatch(data interface{}, ackID *uint64) {
	arr, ok := data.([]interface{})
	if !ok || len(arr) == 0 {
		return
	}
	name, ok := arr[0].(string)
	if !ok {
		return
	}
	if reserved(name) {
		return
	}

	s.mu.Lock()
	handlers := append([]callback.Callback(nil), s.listeners[name]...)
	s.mu.Unlock()
	if len(handlers) == 0 {
		return
	}

	args := arr[1:]

	for i, h := range handlers {
		callArgs := args
		if i == 0 && ackID != nil {
			ack := AckFunc(func(replyArgs ...interface{}) error {
				pac, err := siop.EncodeEvent(s.nsp.server.codec, siop.Ack, s.nsp.name, ackID, replyArgs)
				if err != nil {
					return err
				}
				return s.client.bridge.Send(pac)
			})
			callArgs = append(append([]interface{}{}, args...), ack)
		}
		_ = h.Callback(callArgs...)
	}
}

// handleAck resolves a pending server-side ack by id (spec.md §4.3,
// "On ACK/BINARY_ACK... look up the pending callback by id"). An id
// this socket's own emits never allocated belongs to a broadcast-with-
// ack instead (spec.md §4.4).
func (s *NamespaceSocket) handleAck(ackID uint64, data interface{}) {
	args, _ := data.([]interface{})
	if s.acks.resolve(ackID, args, nil) {
		return
	}
	s.nsp.reportBroadcastAck(ackID, s.ID, args)
}

// disconnect marks the socket gone, fails outstanding acks with
// ErrAckDisconnected, and leaves every room via the adapter atomically
// (spec.md §3, "Entries are removed atomically on socket disconnect").
func (s *NamespaceSocket) disconnect(reason string) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	s.connected = false
	hooks := s.onDisconnect
	s.mu.Unlock()

	s.acks.failAll(ErrAckDisconnected)
	s.nsp.adapter.DelAll(s.ID)
	s.nsp.remove(s)

	for _, fn := range hooks {
		fn(reason)
	}
}

package client

import (
	"sync"
	"time"

	"github.com/relaysix/relaysix/callback"
	siop "github.com/relaysix/relaysix/protocol"
)

// bufferedEmit is one application emit queued while the socket has no
// live CONNECT ack yet (spec.md §4.5, "Per-socket offline buffering").
type bufferedEmit struct {
	event string
	args  []interface{}
	ackID *uint64
}

// Socket is one namespace's view of a Manager's connection (spec.md
// §4.5, "Maintains per-namespace Sockets that share it").
type Socket struct {
	manager   *Manager
	namespace string
	retries   int

	mu         sync.Mutex
	id         string
	connected  bool
	sendBuffer []bufferedEmit
	listeners  map[string][]callback.Callback

	acks *ackTracker
}

func newSocket(m *Manager, namespace string, retries int) *Socket {
	return &Socket{
		manager:   m,
		namespace: namespace,
		retries:   retries,
		listeners: make(map[string][]callback.Callback),
		acks:      newAckTracker(retries),
	}
}

func (s *Socket) Namespace() string { return s.namespace }

func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// On registers a listener for event. fn may be a callback.Callback
// built by hand, or an ordinary Go function — callback.FromFunc infers
// its wire conversion from its own signature. A handler whose shape
// FromFunc cannot adapt is dropped rather than registered; most
// callers pass one of the common shapes and can ignore this case.
func (s *Socket) On(event string, fn interface{}) {
	cb, err := callback.FromFunc(fn)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.listeners[event] = append(s.listeners[event], cb)
	s.mu.Unlock()
}

// Emit sends event with no ack requested, buffering it if the socket
// has no live connection right now (spec.md §4.5, offline buffering).
func (s *Socket) Emit(event string, args ...interface{}) error {
	s.mu.Lock()
	if !s.connected {
		s.sendBuffer = append(s.sendBuffer, bufferedEmit{event: event, args: args})
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.send(event, nil, args)
}

// EmitWithAck sends event with an ack id and invokes fn once the peer
// replies or timeout elapses. While disconnected it buffers the same
// as Emit; the ack id is allocated and its timeout started at call
// time, also when the emit is buffered.
func (s *Socket) EmitWithAck(event string, timeout time.Duration, fn func(args []interface{}, err error), args ...interface{}) error {
	id := s.acks.register(timeout, fn)

	s.mu.Lock()
	if !s.connected {
		s.sendBuffer = append(s.sendBuffer, bufferedEmit{event: event, args: args, ackID: &id})
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.send(event, &id, args)
}

func (s *Socket) send(event string, ackID *uint64, args []interface{}) error {
	pac, err := siop.EncodeEvent(s.manager.codec, siop.Event, s.namespace, ackID, append([]interface{}{event}, args...))
	if err != nil {
		return err
	}
	return s.manager.sendPacket(pac)
}

// sendConnect writes this socket's CONNECT packet, used both for the
// first connect and for replay after a reconnect (spec.md §4.5, "On
// open: replays buffered CONNECT packets for each opened Socket").
func (s *Socket) sendConnect() error {
	return s.manager.sendPacket(siop.Packet{Type: siop.Connect, Namespace: s.namespace})
}

// handleConnect marks the socket connected and flushes anything queued
// while it was offline, in FIFO order (spec.md §4.5).
func (s *Socket) handleConnect(sid string) {
	s.mu.Lock()
	s.connected = true
	s.id = sid
	buffered := s.sendBuffer
	s.sendBuffer = nil
	s.mu.Unlock()

	for _, be := range buffered {
		_ = s.send(be.event, be.ackID, be.args)
	}
}

func (s *Socket) handleDisconnect() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.acks.disconnected()
}

func (s *Socket) handleAck(ackID uint64, data interface{}) {
	args, _ := data.([]interface{})
	s.acks.resolve(ackID, args, nil)
}

// dispatch routes a decoded EVENT payload to registered listeners,
// appending a reply capability to the first listener's args when the
// packet carried an ackId (spec.md §4.3, mirrored on the client).
func (s *Socket) dispatch(data interface{}, ackID *uint64) {
	arr, ok := data.([]interface{})
	if !ok || len(arr) == 0 {
		return
	}
	name, ok := arr[0].(string)
	if !ok {
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
			id := *ackID
			ack := AckFunc(func(replyArgs ...interface{}) error {
				pac, err := siop.EncodeEvent(s.manager.codec, siop.Ack, s.namespace, &id, replyArgs)
				if err != nil {
					return err
				}
				return s.manager.sendPacket(pac)
			})
			callArgs = append(append([]interface{}{}, args...), ack)
		}
		_ = h.Callback(callArgs...)
	}
}

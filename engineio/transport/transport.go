// Package transport implements the two carriers a Transport can be
// composed of: HTTP long-poll and a framed bidirectional WebSocket
// stream (spec.md §2, "Transport").
package transport

import (
	"context"
	"sync"

	eiop "github.com/relaysix/relaysix/engineio/protocol"
	sess "github.com/relaysix/relaysix/engineio/session"
)

type SessionID = sess.ID

// Name identifies a transport kind on the wire ("polling", "websocket").
type Name string

const (
	Polling   Name = "polling"
	WebSocket Name = "websocket"
)

// Transporter is the carrier a Transport swaps in and out of an
// EngineSession across upgrades. Implementations are single-shot: once
// closed, they are never reused.
type Transporter interface {
	ID() SessionID
	Name() Name

	// Send enqueues a packet for delivery. Never blocks the caller's
	// session lock (spec.md §5, "Suspension points"): implementations
	// buffer internally.
	Send(eiop.Packet) error

	// Receive returns the channel of packets read off the wire. Closed
	// when the transport itself closes.
	Receive() <-chan eiop.Packet

	// Writable reports whether Send would not block or drop right now,
	// used by volatile broadcasts (spec.md §4.4).
	Writable() bool

	Close() error
	Closed() bool
}

// base holds the state shared by both transport kinds.
type base struct {
	id   SessionID
	name Name

	mu     sync.Mutex
	closed bool

	send    chan eiop.Packet
	receive chan eiop.Packet

	ctx    context.Context
	cancel context.CancelFunc
}

func newBase(id SessionID, name Name, chanBuf int) *base {
	ctx, cancel := context.WithCancel(context.Background())
	return &base{
		id:      id,
		name:    name,
		send:    make(chan eiop.Packet, chanBuf),
		receive: make(chan eiop.Packet, chanBuf),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *base) ID() SessionID               { return b.id }
func (b *base) Name() Name                  { return b.name }
func (b *base) Receive() <-chan eiop.Packet { return b.receive }

func (b *base) Writable() bool {
	return len(b.send) < cap(b.send)
}

func (b *base) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.cancel()
	close(b.send)
	close(b.receive)
	return nil
}

func (b *base) Send(p eiop.Packet) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}
	select {
	case b.send <- p:
		return nil
	default:
		return ErrSendBufferFull
	}
}

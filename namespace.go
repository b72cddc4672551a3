package relaysix

import (
	"sync"
	"sync/atomic"
	"time"

	memory "github.com/relaysix/relaysix/adaptor/memory"
	siop "github.com/relaysix/relaysix/protocol"
	sess "github.com/relaysix/relaysix/session"
	trns "github.com/relaysix/relaysix/transport"
)

// ConnectAuthorizer decides whether a CONNECT to a namespace is
// accepted (spec.md §4.3, step 2). Returning ok=false rejects with
// CONNECT_ERROR{message: reason}.
type ConnectAuthorizer func(req *Request, auth interface{}) (ok bool, reason string)

// Middleware gates a socket after authorization; calling next with a
// non-nil error aborts the connect (spec.md §4.3, step 4; §9,
// "Middleware chain").
type Middleware func(socket *NamespaceSocket, next func(error))

// Namespace is one addressable slice of the server's socket space
// (spec.md §3, Namespace). The default namespace "/" always exists.
type Namespace struct {
	name   string
	server *Server

	adapter    *memory.Adapter
	ackTracker *memory.AckTracker

	mu          sync.RWMutex
	sockets     map[sess.ID]*NamespaceSocket
	authorizer  ConnectAuthorizer
	middlewares []Middleware
	onConnect   func(*NamespaceSocket) error

	broadcastAckSeq      uint64
	broadcastCorrelation map[uint64]string
}

func newNamespace(server *Server, name string) *Namespace {
	return &Namespace{
		name:                 name,
		server:               server,
		adapter:              memory.New(name, server.metrics),
		ackTracker:           memory.NewAckTracker(),
		sockets:              make(map[sess.ID]*NamespaceSocket),
		broadcastCorrelation: make(map[uint64]string),
	}
}

func (n *Namespace) Name() string { return n.name }

// Use appends a middleware to the connect chain.
func (n *Namespace) Use(mw Middleware) {
	n.mu.Lock()
	n.middlewares = append(n.middlewares, mw)
	n.mu.Unlock()
}

// Authorize sets the connectAuthorizer for CONNECT requests to this
// namespace (spec.md §4.3, step 2).
func (n *Namespace) Authorize(fn ConnectAuthorizer) {
	n.mu.Lock()
	n.authorizer = fn
	n.mu.Unlock()
}

// OnConnect registers the handler invoked once a NamespaceSocket
// finishes connecting (spec.md §4.3, step 5: "emit connect/connection
// to application listeners").
func (n *Namespace) OnConnect(fn func(*NamespaceSocket) error) {
	n.mu.Lock()
	n.onConnect = fn
	n.mu.Unlock()
}

func (n *Namespace) remove(s *NamespaceSocket) {
	n.mu.Lock()
	delete(n.sockets, s.ID)
	n.mu.Unlock()
}

func (n *Namespace) socket(id sess.ID) (*NamespaceSocket, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s, ok := n.sockets[id]
	return s, ok
}

// Sockets returns the ids of every currently connected socket.
func (n *Namespace) Sockets() map[sess.ID]struct{} { return n.adapter.Sockets(nil) }

// broadcastOp is the fluent In/To/Except/Volatile/Emit chain shared by
// Namespace and NamespaceSocket (spec.md §4.4, target selection).
type broadcastOp struct {
	nsp      *Namespace
	rooms    []string
	except   map[sess.ID]struct{}
	volatile bool
}

func (n *Namespace) In(room string) *broadcastOp { return (&broadcastOp{nsp: n}).In(room) }
func (n *Namespace) To(room string) *broadcastOp { return (&broadcastOp{nsp: n}).To(room) }
func (n *Namespace) Except(ids ...sess.ID) *broadcastOp {
	return (&broadcastOp{nsp: n}).Except(ids...)
}
func (n *Namespace) Volatile() *broadcastOp { return (&broadcastOp{nsp: n}).Volatile() }

// Emit broadcasts to every connected socket in the namespace.
func (n *Namespace) Emit(event string, args ...interface{}) error {
	return (&broadcastOp{nsp: n}).Emit(event, args...)
}

func (b *broadcastOp) In(room string) *broadcastOp { b.rooms = append(b.rooms, room); return b }
func (b *broadcastOp) To(room string) *broadcastOp { return b.In(room) }

func (b *broadcastOp) Except(ids ...sess.ID) *broadcastOp {
	if b.except == nil {
		b.except = make(map[sess.ID]struct{}, len(ids))
	}
	for _, id := range ids {
		b.except[id] = struct{}{}
	}
	return b
}

func (b *broadcastOp) Volatile() *broadcastOp { b.volatile = true; return b }

func (b *broadcastOp) opts() memory.BroadcastOptions {
	return memory.BroadcastOptions{Rooms: b.rooms, Except: b.except, Volatile: b.volatile}
}

// Emit delivers event to every socket the chain selects, encoding the
// packet exactly once and replaying the same frames to each target
// (spec.md §4.4, "Pre-encoding optimization").
func (b *broadcastOp) Emit(event string, args ...interface{}) error {
	pac, err := siop.EncodeEvent(b.nsp.server.codec, siop.Event, b.nsp.name, nil, append([]interface{}{event}, args...))
	if err != nil {
		return err
	}
	b.nsp.adapter.Broadcast(trns.Encode(pac), b.opts())
	return nil
}

// EmitWithAck is the broadcast form of NamespaceSocket.EmitWithAck: it
// assigns one server-side ack id shared by every target, and onDone
// fires once every target has replied or timeout elapses (spec.md
// §4.4, "broadcastWithAck").
func (b *broadcastOp) EmitWithAck(event string, timeout time.Duration, onDone func([]memory.AckResult), args ...interface{}) error {
	ackID := atomic.AddUint64(&b.nsp.broadcastAckSeq, 1) | (1 << 63)
	pac, err := siop.EncodeEvent(b.nsp.server.codec, siop.Event, b.nsp.name, &ackID, append([]interface{}{event}, args...))
	if err != nil {
		return err
	}

	wrapped := func(results []memory.AckResult) {
		b.nsp.mu.Lock()
		delete(b.nsp.broadcastCorrelation, ackID)
		b.nsp.mu.Unlock()
		if onDone != nil {
			onDone(results)
		}
	}

	corrID := b.nsp.adapter.BroadcastWithAck(b.nsp.ackTracker, trns.Encode(pac), b.opts(), timeout, wrapped)

	b.nsp.mu.Lock()
	b.nsp.broadcastCorrelation[ackID] = corrID
	b.nsp.mu.Unlock()
	return nil
}

// reportBroadcastAck routes one socket's ACK reply to a pending
// broadcast-with-ack, if ackID belongs to one (checked only after the
// socket's own per-emit ack tracker has no match for it).
func (n *Namespace) reportBroadcastAck(ackID uint64, sid sess.ID, args interface{}) bool {
	n.mu.RLock()
	corrID, ok := n.broadcastCorrelation[ackID]
	n.mu.RUnlock()
	if !ok {
		return false
	}
	n.ackTracker.Report(corrID, sid, args)
	return true
}

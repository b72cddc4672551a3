package relaysix

import (
	"sync"
	"time"
)

// AckFunc is the reply capability handed to an EVENT listener when the
// packet carried an ackId: calling it sends ACK(namespace, ackId,
// args) back to the peer (spec.md §4.3, "the first listener is
// provided with a reply capability").
type AckFunc func(args ...interface{}) error

type pendingAck struct {
	fn    func(args []interface{}, err error)
	timer *time.Timer
}

// ackTracker holds one NamespaceSocket's outstanding server-initiated
// acks (spec.md §3, NamespaceSocket.acks / nextAckId).
type ackTracker struct {
	mu     sync.Mutex
	acks   map[uint64]*pendingAck
	nextID uint64
}

func newAckTracker() *ackTracker {
	return &ackTracker{acks: make(map[uint64]*pendingAck)}
}

// register allocates a strictly increasing ack id (spec.md §8 invariant
// 8) and, if timeout > 0, arms a timer that fails the callback with
// ErrAckTimeout (spec.md §4.3, "Ack timeouts").
func (t *ackTracker) register(timeout time.Duration, fn func(args []interface{}, err error)) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++

	pa := &pendingAck{fn: fn}
	if timeout > 0 {
		pa.timer = time.AfterFunc(timeout, func() { t.resolve(id, nil, ErrAckTimeout) })
	}
	t.acks[id] = pa
	return id
}

// resolve fires the callback for id, if still pending, exactly once
// (spec.md §5, "the callback for ack id N is called at most once"). It
// reports whether id was actually pending, so a broadcast-scoped ack
// id can fall through to the namespace-level tracker when it isn't.
func (t *ackTracker) resolve(id uint64, args []interface{}, err error) bool {
	t.mu.Lock()
	pa, ok := t.acks[id]
	if ok {
		delete(t.acks, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	if pa.timer != nil {
		pa.timer.Stop()
	}
	pa.fn(args, err)
	return true
}

// failAll fires every outstanding callback with err (spec.md §4.3,
// "on disconnect, all pending acks are invoked with a disconnect-error
// sentinel").
func (t *ackTracker) failAll(err error) {
	t.mu.Lock()
	acks := t.acks
	t.acks = make(map[uint64]*pendingAck)
	t.mu.Unlock()

	for _, pa := range acks {
		if pa.timer != nil {
			pa.timer.Stop()
		}
		pa.fn(nil, err)
	}
}

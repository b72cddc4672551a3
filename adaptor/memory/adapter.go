// Package memory implements the default in-memory Adapter: the
// per-namespace room membership index and broadcast executor (spec.md
// §4.4). It is the pluggable seam a cross-process adapter (e.g.
// Redis-backed) would replace; nothing above this package depends on
// it being in-memory.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaysix/relaysix/internal/metrics"
	sess "github.com/relaysix/relaysix/session"
	trns "github.com/relaysix/relaysix/transport"
)

type (
	SocketID = sess.ID
	Room     = string
)

// Socket is the delivery target an Adapter dispatches pre-encoded
// frames to. transport.Bridge satisfies it.
type Socket interface {
	SendFrames(trns.Frames) error
	Writable() bool
}

// BroadcastOptions selects a broadcast's targets (spec.md §4.4).
type BroadcastOptions struct {
	Rooms    []Room
	Except   map[SocketID]struct{}
	Volatile bool
}

// Adapter is the per-namespace room index: two mutually consistent
// maps, `rooms` and `sids`, guarded by one lock (spec.md §3, "Adapter
// state").
type Adapter struct {
	namespace string
	metrics   *metrics.Metrics

	mu      sync.Mutex
	rooms   map[Room]map[SocketID]struct{}
	sids    map[SocketID]map[Room]struct{}
	sockets map[SocketID]Socket
}

func New(namespace string, m *metrics.Metrics) *Adapter {
	return &Adapter{
		namespace: namespace,
		metrics:   m,
		rooms:     make(map[Room]map[SocketID]struct{}),
		sids:      make(map[SocketID]map[Room]struct{}),
		sockets:   make(map[SocketID]Socket),
	}
}

// Register associates a socket id with its delivery target. Every
// connected NamespaceSocket calls this once, then AddAll to join its
// self-named room (spec.md §3 invariant 2).
func (a *Adapter) Register(id SocketID, s Socket) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sockets[id] = s
	if _, ok := a.sids[id]; !ok {
		a.sids[id] = make(map[Room]struct{})
	}
}

// AddAll inserts sid into each room, updating both indexes.
func (a *Adapter) AddAll(sid SocketID, rooms []Room) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sids[sid]; !ok {
		a.sids[sid] = make(map[Room]struct{})
	}
	for _, r := range rooms {
		if _, ok := a.rooms[r]; !ok {
			a.rooms[r] = make(map[SocketID]struct{})
		}
		a.rooms[r][sid] = struct{}{}
		a.sids[sid][r] = struct{}{}
	}
}

// Del removes sid from room, deleting the room entry once empty.
func (a *Adapter) Del(sid SocketID, room Room) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delLocked(sid, room)
}

func (a *Adapter) delLocked(sid SocketID, room Room) {
	if members, ok := a.rooms[room]; ok {
		delete(members, sid)
		if len(members) == 0 {
			delete(a.rooms, room)
		}
	}
	if rs, ok := a.sids[sid]; ok {
		delete(rs, room)
	}
}

// DelAll removes sid from every room it belongs to and drops its
// registration, atomically (spec.md §3, "removed atomically on socket
// disconnect").
func (a *Adapter) DelAll(sid SocketID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for r := range a.sids[sid] {
		if members, ok := a.rooms[r]; ok {
			delete(members, sid)
			if len(members) == 0 {
				delete(a.rooms, r)
			}
		}
	}
	delete(a.sids, sid)
	delete(a.sockets, sid)
}

// Sockets enumerates the members of the union of rooms, or of the
// whole namespace when rooms is empty.
func (a *Adapter) Sockets(rooms []Room) map[SocketID]struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.targetSetLocked(rooms, nil)
}

// SocketRooms returns the rooms sid currently belongs to.
func (a *Adapter) SocketRooms(sid SocketID) map[Room]struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[Room]struct{}, len(a.sids[sid]))
	for r := range a.sids[sid] {
		out[r] = struct{}{}
	}
	return out
}

// targetSetLocked computes the broadcast target set: union of the
// named rooms (or everyone, if none named), minus except. Must be
// called with a.mu held (spec.md §4.4, "Consistency": a snapshot is
// taken at the start of broadcast).
func (a *Adapter) targetSetLocked(rooms []Room, except map[SocketID]struct{}) map[SocketID]struct{} {
	out := make(map[SocketID]struct{})
	if len(rooms) == 0 {
		for sid := range a.sids {
			if _, excluded := except[sid]; !excluded {
				out[sid] = struct{}{}
			}
		}
		return out
	}
	for _, r := range rooms {
		for sid := range a.rooms[r] {
			if _, excluded := except[sid]; !excluded {
				out[sid] = struct{}{}
			}
		}
	}
	return out
}

// DefaultVolatileBufferThreshold records the default send-buffer size
// past which a volatile broadcast drops a target instead of blocking or
// queuing (spec.md §9, open question; see DESIGN.md). Broadcast does not
// read it: a volatile broadcast skips any target whose Writable reports
// false.
const DefaultVolatileBufferThreshold = 1000

// Broadcast delivers frames to every socket selected by opts. The
// target set is snapshotted once, under the lock, before any writes
// happen — membership changes during delivery never affect this call
// (spec.md §4.4, "Consistency"). A write failure to one target never
// aborts delivery to the others (spec.md §4.4, "Failure semantics").
func (a *Adapter) Broadcast(frames trns.Frames, opts BroadcastOptions) {
	a.mu.Lock()
	targets := a.targetSetLocked(opts.Rooms, opts.Except)
	sockets := make(map[SocketID]Socket, len(targets))
	for sid := range targets {
		if s, ok := a.sockets[sid]; ok {
			sockets[sid] = s
		}
	}
	a.mu.Unlock()

	a.metrics.Broadcast(a.namespace, len(sockets))

	for _, s := range sockets {
		if opts.Volatile && !s.Writable() {
			continue
		}
		_ = s.SendFrames(frames)
	}
}

// AckResult is one socket's reply to a broadcast-with-ack.
type AckResult struct {
	SocketID SocketID
	Args     interface{}
}

type ackWait struct {
	remaining map[SocketID]struct{}
	results   []AckResult
	onDone    func([]AckResult)
	mu        sync.Mutex
	done      bool
}

type AckTracker struct {
	mu    sync.Mutex
	waits map[string]*ackWait
}

func NewAckTracker() *AckTracker { return &AckTracker{waits: make(map[string]*ackWait)} }

// BroadcastWithAck delivers frames (which the caller has already
// encoded with a server-assigned ack id) to every matching socket,
// collects replies via Report, and calls onDone once every target has
// replied or timeout elapses — whichever comes first (spec.md §4.4).
// The correlation id returned lets a cross-process adapter route
// replies back to this call.
func (a *Adapter) BroadcastWithAck(tracker *AckTracker, frames trns.Frames, opts BroadcastOptions, timeout time.Duration, onDone func([]AckResult)) (correlationID string) {
	a.mu.Lock()
	targets := a.targetSetLocked(opts.Rooms, opts.Except)
	sockets := make(map[SocketID]Socket, len(targets))
	for sid := range targets {
		if s, ok := a.sockets[sid]; ok {
			sockets[sid] = s
		}
	}
	a.mu.Unlock()

	id := uuid.NewString()
	w := &ackWait{remaining: make(map[SocketID]struct{}, len(sockets)), onDone: onDone}
	for sid := range sockets {
		w.remaining[sid] = struct{}{}
	}

	tracker.mu.Lock()
	tracker.waits[id] = w
	tracker.mu.Unlock()

	a.metrics.Broadcast(a.namespace, len(sockets))

	if len(sockets) == 0 {
		w.finish(tracker, id)
		return id
	}

	for _, s := range sockets {
		_ = s.SendFrames(frames)
	}

	time.AfterFunc(timeout, func() {
		a.metrics.AckTimeout()
		w.finish(tracker, id)
	})

	return id
}

// Report records one socket's reply for the given broadcast
// correlation id; once every target has replied, onDone fires early.
func (t *AckTracker) Report(correlationID string, sid SocketID, args interface{}) {
	t.mu.Lock()
	w, ok := t.waits[correlationID]
	t.mu.Unlock()
	if !ok {
		return
	}

	w.mu.Lock()
	if _, waiting := w.remaining[sid]; waiting {
		delete(w.remaining, sid)
		w.results = append(w.results, AckResult{SocketID: sid, Args: args})
	}
	empty := len(w.remaining) == 0
	w.mu.Unlock()

	if empty {
		w.finish(t, correlationID)
	}
}

func (w *ackWait) finish(t *AckTracker, id string) {
	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return
	}
	w.done = true
	results := w.results
	onDone := w.onDone
	w.mu.Unlock()

	t.mu.Lock()
	delete(t.waits, id)
	t.mu.Unlock()

	if onDone != nil {
		onDone(results)
	}
}

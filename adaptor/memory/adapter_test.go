package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sess "github.com/relaysix/relaysix/session"
	trns "github.com/relaysix/relaysix/transport"
)

// fakeSocket is an in-memory stand-in for transport.Bridge, recording
// every Frames it's asked to deliver.
type fakeSocket struct {
	mu       sync.Mutex
	writable bool
	received []trns.Frames
}

func newFakeSocket() *fakeSocket { return &fakeSocket{writable: true} }

func (f *fakeSocket) SendFrames(fr trns.Frames) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, fr)
	return nil
}

func (f *fakeSocket) Writable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writable
}

func (f *fakeSocket) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func TestAdapterRegisterAndBroadcast(t *testing.T) {
	a := New("/", nil)
	s1, s2 := newFakeSocket(), newFakeSocket()
	a.Register(sess.ID("a"), s1)
	a.Register(sess.ID("b"), s2)
	a.AddAll(sess.ID("a"), []Room{"room1"})
	a.AddAll(sess.ID("b"), []Room{"room1"})

	a.Broadcast(trns.Frames{Text: "hello"}, BroadcastOptions{})

	assert.Equal(t, 1, s1.count())
	assert.Equal(t, 1, s2.count())
}

func TestAdapterBroadcastToRoomOnly(t *testing.T) {
	a := New("/", nil)
	s1, s2 := newFakeSocket(), newFakeSocket()
	a.Register(sess.ID("a"), s1)
	a.Register(sess.ID("b"), s2)
	a.AddAll(sess.ID("a"), []Room{"lobby"})
	a.AddAll(sess.ID("b"), []Room{"other"})

	a.Broadcast(trns.Frames{Text: "hi"}, BroadcastOptions{Rooms: []Room{"lobby"}})

	assert.Equal(t, 1, s1.count())
	assert.Equal(t, 0, s2.count())
}

func TestAdapterBroadcastExcept(t *testing.T) {
	a := New("/", nil)
	s1, s2 := newFakeSocket(), newFakeSocket()
	a.Register(sess.ID("a"), s1)
	a.Register(sess.ID("b"), s2)
	a.AddAll(sess.ID("a"), []Room{"lobby"})
	a.AddAll(sess.ID("b"), []Room{"lobby"})

	a.Broadcast(trns.Frames{Text: "hi"}, BroadcastOptions{
		Rooms:  []Room{"lobby"},
		Except: map[SocketID]struct{}{sess.ID("b"): {}},
	})

	assert.Equal(t, 1, s1.count())
	assert.Equal(t, 0, s2.count())
}

func TestAdapterVolatileDropsUnwritable(t *testing.T) {
	a := New("/", nil)
	s1 := newFakeSocket()
	s1.writable = false
	a.Register(sess.ID("a"), s1)
	a.AddAll(sess.ID("a"), []Room{"lobby"})

	a.Broadcast(trns.Frames{Text: "hi"}, BroadcastOptions{Volatile: true})

	assert.Equal(t, 0, s1.count(), "volatile broadcast drops a target that isn't writable")
}

func TestAdapterDelAllRemovesFromEveryRoom(t *testing.T) {
	a := New("/", nil)
	s1 := newFakeSocket()
	a.Register(sess.ID("a"), s1)
	a.AddAll(sess.ID("a"), []Room{"r1", "r2"})

	a.DelAll(sess.ID("a"))

	assert.Empty(t, a.SocketRooms(sess.ID("a")))
	assert.Empty(t, a.Sockets(nil))
}

func TestAdapterBroadcastWithAckCollectsRepliesAndFires(t *testing.T) {
	a := New("/", nil)
	tracker := NewAckTracker()
	s1, s2 := newFakeSocket(), newFakeSocket()
	a.Register(sess.ID("a"), s1)
	a.Register(sess.ID("b"), s2)
	a.AddAll(sess.ID("a"), []Room{"lobby"})
	a.AddAll(sess.ID("b"), []Room{"lobby"})

	done := make(chan []AckResult, 1)
	corrID := a.BroadcastWithAck(tracker, trns.Frames{Text: "hi"}, BroadcastOptions{Rooms: []Room{"lobby"}}, time.Second, func(results []AckResult) {
		done <- results
	})

	tracker.Report(corrID, sess.ID("a"), "ack-a")
	tracker.Report(corrID, sess.ID("b"), "ack-b")

	select {
	case results := <-done:
		assert.Len(t, results, 2)
	case <-time.After(time.Second):
		t.Fatal("onDone never fired after all targets replied")
	}
}

func TestAdapterBroadcastWithAckTimesOut(t *testing.T) {
	a := New("/", nil)
	tracker := NewAckTracker()
	s1 := newFakeSocket()
	a.Register(sess.ID("a"), s1)
	a.AddAll(sess.ID("a"), []Room{"lobby"})

	done := make(chan []AckResult, 1)
	a.BroadcastWithAck(tracker, trns.Frames{Text: "hi"}, BroadcastOptions{Rooms: []Room{"lobby"}}, 10*time.Millisecond, func(results []AckResult) {
		done <- results
	})

	select {
	case results := <-done:
		assert.Empty(t, results, "no reply arrived before the timeout")
	case <-time.After(time.Second):
		t.Fatal("onDone never fired after timeout")
	}
}

func TestAdapterBroadcastSnapshotExcludesLateJoiners(t *testing.T) {
	a := New("/", nil)
	s1 := newFakeSocket()
	a.Register(sess.ID("a"), s1)
	a.AddAll(sess.ID("a"), []Room{"lobby"})

	targets := a.Sockets([]Room{"lobby"})
	require.Len(t, targets, 1)

	// a socket joining after the snapshot must not appear in it.
	s2 := newFakeSocket()
	a.Register(sess.ID("b"), s2)
	a.AddAll(sess.ID("b"), []Room{"lobby"})

	_, ok := targets[sess.ID("b")]
	assert.False(t, ok)
}

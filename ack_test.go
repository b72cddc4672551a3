package relaysix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAckTrackerRegisterResolveFiresOnce(t *testing.T) {
	tr := newAckTracker()
	calls := 0
	var gotArgs []interface{}
	var gotErr error

	id := tr.register(0, func(args []interface{}, err error) {
		calls++
		gotArgs = args
		gotErr = err
	})

	ok := tr.resolve(id, []interface{}{"reply"}, nil)
	require.True(t, ok)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []interface{}{"reply"}, gotArgs)
	assert.NoError(t, gotErr)

	// resolving again is a no-op: the callback already fired.
	ok = tr.resolve(id, []interface{}{"again"}, nil)
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestAckTrackerResolveUnknownIDReturnsFalse(t *testing.T) {
	tr := newAckTracker()
	assert.False(t, tr.resolve(999, nil, nil))
}

func TestAckTrackerIDsAreStrictlyIncreasing(t *testing.T) {
	tr := newAckTracker()
	id1 := tr.register(0, func([]interface{}, error) {})
	id2 := tr.register(0, func([]interface{}, error) {})
	assert.Less(t, id1, id2)
}

func TestAckTrackerTimeoutFiresErrAckTimeout(t *testing.T) {
	tr := newAckTracker()
	done := make(chan error, 1)
	tr.register(10*time.Millisecond, func(args []interface{}, err error) {
		done <- err
	})

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrAckTimeout)
	case <-time.After(time.Second):
		t.Fatal("ack timeout callback never fired")
	}
}

func TestAckTrackerFailAllFiresEveryPendingOnce(t *testing.T) {
	tr := newAckTracker()
	var fired []uint64
	for i := 0; i < 3; i++ {
		tr.register(time.Hour, func(args []interface{}, err error) {
			fired = append(fired, 0)
		})
	}

	tr.failAll(ErrAckDisconnected)
	assert.Len(t, fired, 3)

	// a second failAll on an already-drained tracker fires nothing more.
	tr.failAll(ErrAckDisconnected)
	assert.Len(t, fired, 3)
}

func TestAckTrackerFailAllCancelsTimeoutTimer(t *testing.T) {
	tr := newAckTracker()
	var err error
	done := make(chan struct{})
	tr.register(50*time.Millisecond, func(args []interface{}, e error) {
		err = e
		close(done)
	})

	tr.failAll(ErrAckDisconnected)

	select {
	case <-done:
		assert.ErrorIs(t, err, ErrAckDisconnected)
	case <-time.After(time.Second):
		t.Fatal("failAll never fired the pending callback")
	}

	// the timer must be stopped, not just lost the race: wait past its
	// original deadline and confirm the callback never fires a second
	// time with ErrAckTimeout instead.
	time.Sleep(100 * time.Millisecond)
	assert.ErrorIs(t, err, ErrAckDisconnected)
}

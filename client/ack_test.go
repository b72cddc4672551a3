package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAckTrackerResolve(t *testing.T) {
	tr := newAckTracker(0)
	var gotArgs []interface{}
	var gotErr error
	id := tr.register(0, func(args []interface{}, err error) {
		gotArgs, gotErr = args, err
	})

	ok := tr.resolve(id, []interface{}{"pong"}, nil)
	assert.True(t, ok)
	assert.Equal(t, []interface{}{"pong"}, gotArgs)
	assert.NoError(t, gotErr)

	assert.False(t, tr.resolve(id, nil, nil), "resolving twice reports not-found")
}

func TestAckTrackerTimeout(t *testing.T) {
	tr := newAckTracker(0)
	done := make(chan error, 1)
	tr.register(10*time.Millisecond, func(_ []interface{}, err error) { done <- err })

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrAckTimeout)
	case <-time.After(time.Second):
		t.Fatal("ack callback never fired")
	}
}

func TestAckTrackerDisconnectedNoRetries(t *testing.T) {
	tr := newAckTracker(0)
	done := make(chan error, 1)
	tr.register(0, func(_ []interface{}, err error) { done <- err })

	tr.disconnected()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrAckDisconnected)
	case <-time.After(time.Second):
		t.Fatal("ack callback never fired on disconnect")
	}
}

func TestAckTrackerDisconnectedWithRetriesKeepsPending(t *testing.T) {
	tr := newAckTracker(3)
	fired := false
	tr.register(0, func(_ []interface{}, _ error) { fired = true })

	tr.disconnected()

	assert.False(t, fired, "acks with retries configured survive a disconnect")
}

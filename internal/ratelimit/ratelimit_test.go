package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestPerKeyAllowsBurstThenBlocks(t *testing.T) {
	p := NewPerKey(rate.Limit(1), 2)

	assert.True(t, p.Allow("1.2.3.4"), "first request within burst")
	assert.True(t, p.Allow("1.2.3.4"), "second request within burst")
	assert.False(t, p.Allow("1.2.3.4"), "third request exceeds burst before refill")
}

func TestPerKeyTracksKeysIndependently(t *testing.T) {
	p := NewPerKey(rate.Limit(1), 1)

	assert.True(t, p.Allow("a"))
	assert.False(t, p.Allow("a"))
	assert.True(t, p.Allow("b"), "a different key has its own bucket")
}

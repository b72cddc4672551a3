// Package ratelimit gates handshake attempts per remote address with a
// token bucket, so a single noisy peer cannot exhaust session ids or
// file descriptors before a session is even allocated.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// PerKey holds one token bucket per key (typically remote address).
// A bucket is created on a key's first use and is never evicted.
type PerKey struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	r       rate.Limit
	burst   int
}

// NewPerKey returns a limiter allowing r handshakes/sec per key, with
// burst allowed immediately.
func NewPerKey(r rate.Limit, burst int) *PerKey {
	return &PerKey{buckets: make(map[string]*rate.Limiter), r: r, burst: burst}
}

// Allow reports whether the next handshake attempt for key is
// permitted right now.
func (p *PerKey) Allow(key string) bool {
	p.mu.Lock()
	b, ok := p.buckets[key]
	if !ok {
		b = rate.NewLimiter(p.r, p.burst)
		p.buckets[key] = b
	}
	p.mu.Unlock()
	return b.Allow()
}

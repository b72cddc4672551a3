package client

import (
	"log/slog"
	"time"

	siop "github.com/relaysix/relaysix/protocol"
)

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithAutoReconnect toggles automatic reconnection after transport loss
// (spec.md §4.5, default on).
func WithAutoReconnect(enabled bool) Option {
	return func(m *Manager) { m.autoReconnect = enabled }
}

// WithBackoff sets the exponential-backoff parameters used between
// reconnect attempts: delay starts at initial, is multiplied by factor
// each attempt, and never exceeds max (spec.md §4.5, "exponential
// backoff with jitter, capped attempts, capped max delay").
func WithBackoff(initial, max time.Duration, factor float64) Option {
	return func(m *Manager) {
		m.backoffInitial = initial
		m.backoffMax = max
		m.backoffFactor = factor
	}
}

// WithMaxReconnectAttempts caps the number of reconnect attempts before
// reconnect_failed fires. 0 means unlimited.
func WithMaxReconnectAttempts(n int) Option {
	return func(m *Manager) { m.maxReconnectAttempts = n }
}

func WithCodec(c siop.Codec) Option { return func(m *Manager) { m.codec = c } }

func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

// WithOnOpen registers a hook run every time the Manager finishes
// opening (including after a reconnect).
func WithOnOpen(fn func()) Option { return func(m *Manager) { m.onOpen = fn } }

// WithOnClose registers a hook run every time the underlying connection
// closes, before any reconnect attempt is scheduled.
func WithOnClose(fn func(reason string)) Option { return func(m *Manager) { m.onClose = fn } }

// WithOnReconnectAttempt registers a hook run before each reconnect
// dial, receiving the 1-based attempt number.
func WithOnReconnectAttempt(fn func(attempt int)) Option {
	return func(m *Manager) { m.onReconnectAttempt = fn }
}

// WithOnReconnectFailed registers a hook run once the reconnect attempt
// cap is exceeded (spec.md §4.5, "emit reconnect_failed and stop").
func WithOnReconnectFailed(fn func()) Option {
	return func(m *Manager) { m.onReconnectFailed = fn }
}

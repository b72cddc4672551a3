package engineio

import (
	"log/slog"
	"sync"
	"time"

	eiop "github.com/relaysix/relaysix/engineio/protocol"
	sess "github.com/relaysix/relaysix/engineio/session"
	eiot "github.com/relaysix/relaysix/engineio/transport"
)

// State is an EngineSession's position in its lifecycle. Transitions
// only move forward (spec.md §3, "States").
type State int

const (
	StateOpening State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is one client's engine.io session: it owns the current
// Transport, the write buffer, and the heartbeat state machine
// (spec.md §3, EngineSession). All mutation happens under mu, per
// spec.md §5's single-threaded-per-session scheduling model.
type Session struct {
	ID sess.ID

	mu        sync.Mutex
	transport eiot.Transporter
	upgrading bool
	state     State

	pingInterval time.Duration
	pingTimeout  time.Duration
	maxPayload   int

	writeBuffer []eiop.Packet
	messages    chan eiop.Packet

	lastPongAt time.Time
	pingTimer  *time.Timer

	closeHandlers []func(reason string)
	closeOnce     sync.Once
	log           *slog.Logger
}

type Config struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
	MaxPayload   int
	Logger       *slog.Logger
}

func NewSession(id sess.ID, t eiot.Transporter, cfg Config) *Session {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		ID:           id,
		transport:    t,
		state:        StateOpening,
		pingInterval: cfg.PingInterval,
		pingTimeout:  cfg.PingTimeout,
		maxPayload:   cfg.MaxPayload,
		lastPongAt:   time.Now(),
		log:          log,
		messages:     make(chan eiop.Packet, 256),
	}
	return s
}

// Messages returns the stream of decoded MESSAGE packets destined for
// the messaging layer (Client), in receive order (spec.md §5,
// "Ordering guarantees").
func (s *Session) Messages() <-chan eiop.Packet { return s.messages }

// Open marks the session ready for traffic and starts the
// server-initiated heartbeat (spec.md §4.2, "Heartbeat").
func (s *Session) Open() {
	s.mu.Lock()
	s.state = StateOpen
	s.mu.Unlock()
	s.resetPingTimer()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) OnClose(fn func(reason string)) {
	s.mu.Lock()
	s.closeHandlers = append(s.closeHandlers, fn)
	s.mu.Unlock()
}

// Write appends a packet to the write buffer and flushes it through the
// current transport. Flush is atomic with the append with respect to
// the session lock (spec.md §4.2, "Write buffering").
func (s *Session) Write(p eiop.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	s.writeBuffer = append(s.writeBuffer, p)
	return s.flushLocked()
}

func (s *Session) flushLocked() error {
	if s.upgrading {
		// spec.md §9, "Transport upgrade race": writes during the probe
		// window stay queued against the OLD transport until UPGRADE is
		// confirmed by Upgrade().
	}
	for len(s.writeBuffer) > 0 {
		p := s.writeBuffer[0]
		if err := s.transport.Send(p); err != nil {
			return err
		}
		s.writeBuffer = s.writeBuffer[1:]
	}
	return nil
}

// Transport returns the currently active transport.
func (s *Session) Transport() eiot.Transporter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// BeginUpgrade marks the session as mid-upgrade: subsequent writes
// still target the old transport until Upgrade() completes the swap
// (spec.md §4.2, "Upgrade protocol").
func (s *Session) BeginUpgrade() {
	s.mu.Lock()
	s.upgrading = true
	s.mu.Unlock()
}

// Upgrade swaps in the new transport, flushing anything still queued
// from the old one, then clears the upgrading flag.
func (s *Session) Upgrade(next eiot.Transporter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.transport
	s.transport = next
	s.upgrading = false

	err := s.flushLocked()
	if old != nil {
		_ = old.Close()
	}
	return err
}

// HandlePong resets the ping-timeout deadline (spec.md §4.2,
// "A PONG before expiry resets the timer").
func (s *Session) HandlePong() {
	s.mu.Lock()
	s.lastPongAt = time.Now()
	s.mu.Unlock()
	s.resetPingTimer()
}

func (s *Session) resetPingTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pingTimer != nil {
		s.pingTimer.Stop()
	}
	s.pingTimer = time.AfterFunc(s.pingInterval, s.sendPing)
}

func (s *Session) sendPing() {
	if s.State() != StateOpen {
		return
	}
	if err := s.Write(eiop.Packet{T: eiop.PingPacket}); err != nil {
		s.Close("transport error")
		return
	}

	timeout := s.pingTimeout
	time.AfterFunc(timeout, func() {
		s.mu.Lock()
		expired := time.Since(s.lastPongAt) >= timeout
		s.mu.Unlock()
		if expired && s.State() == StateOpen {
			s.Close("ping timeout")
		}
	})
}

// Close is idempotent: it empties the write buffer, drops the
// transport, and fires close handlers exactly once (spec.md §4.2,
// "Closing").
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.writeBuffer = nil
		t := s.transport
		if s.pingTimer != nil {
			s.pingTimer.Stop()
		}
		handlers := s.closeHandlers
		s.mu.Unlock()

		if t != nil {
			_ = t.Close()
		}
		close(s.messages)
		for _, fn := range handlers {
			fn(reason)
		}
	})
}

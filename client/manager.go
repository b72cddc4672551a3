// Package client implements the client-side connection manager: it
// mirrors the server's EngineServer/Session pair from the dialing side,
// adding exponential-backoff reconnection and per-socket offline
// buffering (spec.md §4.5).
package client

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	eiop "github.com/relaysix/relaysix/engineio/protocol"
	siop "github.com/relaysix/relaysix/protocol"
)

type state int

const (
	stateClosed state = iota
	stateOpening
	stateOpen
)

// Manager owns one client-role connection and the set of Sockets
// multiplexed over it (spec.md §4.5, "Owns one EngineSession (client
// role). Maintains per-namespace Sockets that share it.").
type Manager struct {
	url   string
	codec siop.Codec
	log   *slog.Logger

	autoReconnect        bool
	backoffInitial       time.Duration
	backoffMax           time.Duration
	backoffFactor        float64
	maxReconnectAttempts int
	socketRetries        int

	onOpen             func()
	onClose            func(reason string)
	onReconnectAttempt func(attempt int)
	onReconnectFailed  func()

	mu                sync.Mutex
	state             state
	opening           bool
	conn              *websocket.Conn
	sid               string
	pingTimeout       time.Duration
	pingDeadlineTimer *time.Timer
	cancel            context.CancelFunc
	send              chan eiop.Packet
	reconnectAttempts int
	manualClose       bool

	smu     sync.Mutex
	sockets map[string]*Socket
}

// Dial opens a connection to url and blocks until the handshake
// completes or ctx is done.
func Dial(ctx context.Context, url string, opts ...Option) (*Manager, error) {
	m := &Manager{
		url:            url,
		codec:          siop.JSONCodec{},
		autoReconnect:  true,
		backoffInitial: 500 * time.Millisecond,
		backoffMax:     30 * time.Second,
		backoffFactor:  2,
		sockets:        make(map[string]*Socket),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}

	if err := m.open(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Socket returns the Socket for namespace, creating it if this is the
// first call for it, and sending its CONNECT packet right away if the
// Manager is currently open.
func (m *Manager) Socket(namespace string) *Socket {
	m.smu.Lock()
	s, ok := m.sockets[namespace]
	if !ok {
		s = newSocket(m, namespace, m.socketRetries)
		m.sockets[namespace] = s
	}
	m.smu.Unlock()

	if m.isOpen() {
		_ = s.sendConnect()
	}
	return s
}

func (m *Manager) isOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == stateOpen
}

// open performs one handshake-and-run cycle: dial, read the OPEN
// packet, start the read/write pumps, and block returning only once
// the handshake itself either succeeds or fails (spec.md §4.5,
// "Not idempotent while already opening.").
func (m *Manager) open(ctx context.Context) error {
	m.mu.Lock()
	if m.opening {
		m.mu.Unlock()
		return ErrAlreadyOpening
	}
	m.opening = true
	m.state = stateOpening
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.opening = false
		m.mu.Unlock()
	}()

	conn, _, err := websocket.Dial(ctx, m.url, nil)
	if err != nil {
		return err
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		conn.CloseNow()
		return ErrHandshakeFailed.F(err)
	}
	pac, err := eiop.DecodeText(string(data))
	if err != nil || pac.T != eiop.OpenPacket {
		conn.CloseNow()
		return ErrHandshakeFailed.F(eiop.ErrBadPacketType)
	}
	hs, err := eiop.UnmarshalHandshake(pac.Data)
	if err != nil {
		conn.CloseNow()
		return ErrHandshakeFailed.F(err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.conn = conn
	m.sid = hs.SID
	m.pingTimeout = time.Duration(hs.PingTimeout) * time.Millisecond
	m.state = stateOpen
	m.reconnectAttempts = 0
	m.manualClose = false
	m.cancel = cancel
	m.send = make(chan eiop.Packet, 256)
	m.mu.Unlock()

	m.armPingDeadline()

	grp, gctx := errgroup.WithContext(runCtx)
	grp.Go(func() error { return m.readLoop(gctx, conn) })
	grp.Go(func() error { return m.writeLoop(gctx, conn) })

	go func() {
		reason := "transport closed"
		if err := grp.Wait(); errors.Is(err, ErrParseError) {
			reason = "parse error"
		}
		m.handleClose(reason)
	}()

	m.replayConnects()

	if m.onOpen != nil {
		m.onOpen()
	}
	return nil
}

// replayConnects resends every known Socket's CONNECT packet, covering
// both the first connect and post-reconnect replay (spec.md §4.5, "On
// open: replays buffered CONNECT packets for each opened Socket").
func (m *Manager) replayConnects() {
	m.smu.Lock()
	sockets := make([]*Socket, 0, len(m.sockets))
	for _, s := range m.sockets {
		sockets = append(sockets, s)
	}
	m.smu.Unlock()

	for _, s := range sockets {
		_ = s.sendConnect()
	}
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) error {
	var dec siop.Decoder
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var epac eiop.Packet
		if typ == websocket.MessageBinary {
			epac = eiop.Packet{T: eiop.MessagePacket, IsBinary: true, Binary: data}
		} else {
			epac, err = eiop.DecodeText(string(data))
			if err != nil {
				return ErrParseError
			}
		}

		switch epac.T {
		case eiop.PingPacket:
			m.armPingDeadline()
			select {
			case m.send <- eiop.Packet{T: eiop.PongPacket}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case eiop.ClosePacket:
			return nil
		case eiop.MessagePacket:
			raw := epac.Data
			if epac.IsBinary {
				raw = epac.Binary
			}
			pac, complete, err := dec.Feed(epac.IsBinary, raw)
			if err != nil {
				return ErrParseError
			}
			if complete {
				m.route(pac)
			}
		}
	}
}

func (m *Manager) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case p, ok := <-m.send:
			if !ok {
				return nil
			}
			if p.IsBinary {
				if err := conn.Write(ctx, websocket.MessageBinary, p.Binary); err != nil {
					return err
				}
				continue
			}
			frame, err := eiop.EncodeText(p)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// armPingDeadline resets the timer that closes the connection if the
// server's next PING never arrives (spec.md §4.2's heartbeat, mirrored
// from the receiving side).
func (m *Manager) armPingDeadline() {
	m.mu.Lock()
	if m.pingDeadlineTimer != nil {
		m.pingDeadlineTimer.Stop()
	}
	timeout := m.pingTimeout
	m.pingDeadlineTimer = time.AfterFunc(timeout+timeout/2, func() {
		m.forceClose("ping timeout")
	})
	m.mu.Unlock()
}

func (m *Manager) forceClose(reason string) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn != nil {
		conn.CloseNow()
	}
}

func (m *Manager) sendPacket(pac siop.Packet) error {
	m.mu.Lock()
	ch := m.send
	open := m.state == stateOpen
	m.mu.Unlock()
	if !open || ch == nil {
		return ErrManagerClosed
	}

	text := siop.EncodeFrame(pac)
	select {
	case ch <- eiop.Packet{T: eiop.MessagePacket, Data: []byte(text)}:
	default:
		return ErrManagerClosed
	}
	for _, a := range pac.Attachments {
		select {
		case ch <- eiop.Packet{T: eiop.MessagePacket, IsBinary: true, Binary: a}:
		default:
			return ErrManagerClosed
		}
	}
	return nil
}

func (m *Manager) route(pac siop.Packet) {
	ns := pac.Namespace
	if ns == "" {
		ns = "/"
	}

	m.smu.Lock()
	s, ok := m.sockets[ns]
	m.smu.Unlock()
	if !ok {
		return
	}

	switch pac.Type {
	case siop.Connect:
		var payload struct {
			SID string `json:"sid"`
		}
		_ = m.codec.Unmarshal(pac.Data, &payload)
		s.handleConnect(payload.SID)
	case siop.Disconnect:
		s.handleDisconnect()
	case siop.Event, siop.BinaryEvent:
		data, err := siop.DecodeEventData(m.codec, pac)
		if err != nil {
			return
		}
		s.dispatch(data, pac.AckID)
	case siop.Ack, siop.BinaryAck:
		if pac.AckID == nil {
			return
		}
		data, err := siop.DecodeEventData(m.codec, pac)
		if err != nil {
			return
		}
		s.handleAck(*pac.AckID, data)
	}
}

// handleClose runs once the read/write pumps exit for any reason: every
// Socket is told it lost its connection, and a reconnect is scheduled
// unless this was a caller-initiated Close (spec.md §4.5, "On
// close(reason): if auto-reconnect enabled and not suppressed, schedule
// reconnect()").
func (m *Manager) handleClose(reason string) {
	m.mu.Lock()
	if m.state == stateClosed {
		m.mu.Unlock()
		return
	}
	m.state = stateClosed
	if m.pingDeadlineTimer != nil {
		m.pingDeadlineTimer.Stop()
	}
	if m.send != nil {
		close(m.send)
		m.send = nil
	}
	manual := m.manualClose
	m.mu.Unlock()

	m.smu.Lock()
	sockets := make([]*Socket, 0, len(m.sockets))
	for _, s := range m.sockets {
		sockets = append(sockets, s)
	}
	m.smu.Unlock()
	for _, s := range sockets {
		s.handleDisconnect()
	}

	if m.onClose != nil {
		m.onClose(reason)
	}

	if !manual && m.autoReconnect {
		m.scheduleReconnect()
	}
}

// scheduleReconnect arms the next reconnect attempt using exponential
// backoff with jitter, capped at backoffMax (spec.md §4.5).
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	attempt := m.reconnectAttempts + 1
	m.reconnectAttempts = attempt
	maxAttempts := m.maxReconnectAttempts
	m.mu.Unlock()

	if maxAttempts > 0 && attempt > maxAttempts {
		if m.onReconnectFailed != nil {
			m.onReconnectFailed()
		}
		return
	}

	delay := backoffDelay(m.backoffInitial, m.backoffMax, m.backoffFactor, attempt)
	delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))

	time.AfterFunc(delay, func() { m.attemptReconnect(attempt) })
}

// backoffDelay computes the un-jittered delay before the given 1-based
// attempt: initial * factor^(attempt-1), capped at max (spec.md §4.5,
// "exponential backoff... capped max delay").
func backoffDelay(initial, max time.Duration, factor float64, attempt int) time.Duration {
	delay := float64(initial) * math.Pow(factor, float64(attempt-1))
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}

func (m *Manager) attemptReconnect(attempt int) {
	if m.onReconnectAttempt != nil {
		m.onReconnectAttempt(attempt)
	}
	if err := m.open(context.Background()); err != nil {
		m.log.Warn("reconnect attempt failed", "attempt", attempt, "err", err)
		m.scheduleReconnect()
	}
}

// Close shuts the connection down and disables auto-reconnect for this
// closure (an explicit Close is never followed by a scheduled retry).
func (m *Manager) Close() {
	m.mu.Lock()
	m.manualClose = true
	conn := m.conn
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

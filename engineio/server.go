// Package engineio implements the transport-selection, handshake, and
// heartbeat layer beneath the messaging protocol (spec.md §4.2).
package engineio

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	eiop "github.com/relaysix/relaysix/engineio/protocol"
	sess "github.com/relaysix/relaysix/engineio/session"
	eiot "github.com/relaysix/relaysix/engineio/transport"
	"github.com/relaysix/relaysix/internal/metrics"
	"github.com/relaysix/relaysix/internal/ratelimit"
)

const DefaultChanBuffer = 1000

// Server accepts handshakes, instantiates Sessions, and routes further
// requests to the right one, including transport upgrade (spec.md §2,
// EngineServer).
type Server struct {
	sessions *sess.Registry[*Session]
	closed   atomic.Bool

	Path         string
	PingInterval time.Duration
	PingTimeout  time.Duration
	MaxPayload   int
	ChanBuffer   int

	// Upgrades lists transport names offered in the OPEN handshake in
	// addition to the one the client connected on.
	Upgrades []string

	// OnOpen is called once a session finishes its handshake and is
	// registered. It runs on the handshake request's goroutine and
	// receives the originating HTTP request for callers that need
	// handshake-time headers/cookies (e.g. a connect authorizer).
	OnOpen func(*Session, *http.Request)

	Limiter *ratelimit.PerKey
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

func NewServer(opts ...func(*Server)) *Server {
	s := &Server{
		sessions:     sess.NewRegistry[*Session](),
		Path:         "/socket.io/",
		PingInterval: 25 * time.Second,
		PingTimeout:  20 * time.Second,
		MaxPayload:   1_000_000,
		ChanBuffer:   DefaultChanBuffer,
		Upgrades:     []string{string(eiot.WebSocket)},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Log == nil {
		s.Log = slog.Default()
	}
	return s
}

func (srv *Server) config() Config {
	return Config{PingInterval: srv.PingInterval, PingTimeout: srv.PingTimeout, MaxPayload: srv.MaxPayload, Logger: srv.Log}
}

// Session looks up a live session by id.
func (srv *Server) Session(id sess.ID) (*Session, bool) { return srv.sessions.Get(id) }

// Close stops accepting new handshakes and closes every open session,
// each of which fires its own close handlers (spec.md §2, "Exit from
// server").
func (srv *Server) Close() {
	srv.closed.Store(true)

	var sessions []*Session
	srv.sessions.Range(func(_ sess.ID, s *Session) bool {
		sessions = append(sessions, s)
		return true
	})
	for _, s := range sessions {
		s.Close("server shutdown")
	}
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sid := q.Get("sid")
	transportName := q.Get("transport")
	if transportName == "" {
		transportName = string(eiot.Polling)
	}

	if sid == "" {
		srv.handshake(w, r, transportName)
		return
	}

	s, ok := srv.sessions.Get(sess.ID(sid))
	if !ok {
		http.Error(w, ErrSessionUnknown.Error(), http.StatusBadRequest)
		return
	}

	current := s.Transport()
	if transportName == string(eiot.WebSocket) && current.Name() != eiot.WebSocket {
		srv.upgrade(w, r, s)
		return
	}

	switch t := current.(type) {
	case *eiot.PollingTransport:
		if r.Method == http.MethodPost {
			if err := t.AcceptPost(r); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				s.Close("parse error")
			}
			return
		}
		if err := t.ServePoll(w, r); err != nil {
			srv.Log.Warn("poll failed", "sid", sid, "err", err)
		}
	default:
		http.Error(w, ErrBadTransport.Error(), http.StatusBadRequest)
	}
}

func (srv *Server) handshake(w http.ResponseWriter, r *http.Request, transportName string) {
	if srv.closed.Load() {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	if srv.Limiter != nil && !srv.Limiter.Allow(r.RemoteAddr) {
		http.Error(w, ErrRateLimited.Error(), http.StatusTooManyRequests)
		return
	}

	id := sess.GenerateID()

	var t eiot.Transporter
	switch transportName {
	case string(eiot.Polling):
		t = eiot.NewPollingTransport(id, srv.ChanBuffer, srv.MaxPayload)
	case string(eiot.WebSocket):
		t = eiot.NewWebsocketTransport(id, srv.ChanBuffer)
	default:
		http.Error(w, ErrBadTransport.Error(), http.StatusBadRequest)
		return
	}

	s := NewSession(id, t, srv.config())
	srv.sessions.Set(id, s)
	srv.Metrics.SessionOpened()

	s.OnClose(func(reason string) {
		srv.sessions.Delete(id)
		srv.Metrics.SessionClosed()
		srv.Log.Info("session closed", "sid", id, "reason", reason)
	})

	go srv.pump(s, t)

	hs, err := (eiop.Handshake{
		SID:          id.String(),
		Upgrades:     srv.Upgrades,
		PingInterval: int(srv.PingInterval / time.Millisecond),
		PingTimeout:  int(srv.PingTimeout / time.Millisecond),
		MaxPayload:   srv.MaxPayload,
	}).Marshal()
	if err != nil {
		http.Error(w, ErrHandshakeFailed.F(err).Error(), http.StatusInternalServerError)
		return
	}

	if err := s.Write(eiop.Packet{T: eiop.OpenPacket, Data: hs}); err != nil {
		http.Error(w, ErrHandshakeFailed.F(err).Error(), http.StatusInternalServerError)
		return
	}
	s.Open()

	if srv.OnOpen != nil {
		srv.OnOpen(s, r)
	}

	switch wt := t.(type) {
	case *eiot.WebsocketTransport:
		if err := wt.Accept(w, r); err != nil {
			srv.Log.Warn("websocket accept failed", "sid", id, "err", err)
		}
	case *eiot.PollingTransport:
		if err := wt.ServePoll(w, r); err != nil {
			srv.Log.Warn("poll failed", "sid", id, "err", err)
		}
	}
}

// upgrade runs the probe handshake for a new stream transport
// alongside an existing polling session (spec.md §4.2, "Upgrade
// protocol"): the probe/UPGRADE exchange is handled inline in pump();
// this method just brings the new transport's physical connection up.
func (srv *Server) upgrade(w http.ResponseWriter, r *http.Request, s *Session) {
	next := eiot.NewWebsocketTransport(s.ID, srv.ChanBuffer)
	s.BeginUpgrade()
	go srv.pump(s, next)

	if err := next.Accept(w, r); err != nil {
		srv.Log.Warn("upgrade probe failed", "sid", s.ID, "err", err)
	}
}

// pump is the sole reader of one Transporter's decoded packets for its
// entire lifetime, handling engine-level packet types (PING probe
// replies, UPGRADE, CLOSE, PONG) and forwarding MESSAGE packets up to
// the messaging layer via Session.Messages().
func (srv *Server) pump(s *Session, t eiot.Transporter) {
	for p := range t.Receive() {
		switch p.T {
		case eiop.PongPacket:
			s.HandlePong()
		case eiop.PingPacket:
			if string(p.Data) == "probe" {
				_ = t.Send(eiop.Packet{T: eiop.PongPacket, Data: []byte("probe")})
			}
		case eiop.UpgradePacket:
			if err := s.Upgrade(t); err != nil {
				srv.Log.Warn("upgrade failed", "sid", s.ID, "err", err)
			}
		case eiop.ClosePacket:
			s.Close("client close")
			return
		case eiop.MessagePacket:
			select {
			case s.messages <- p:
			default:
				srv.Log.Warn("session message buffer full, dropping packet", "sid", s.ID)
			}
		}
	}

	if s.Transport() == t && s.State() != StateClosed {
		s.Close("transport error")
	}
}

// Package relaysix is the server-side core of a realtime bidirectional
// messaging system multiplexing client sessions over pluggable
// transports (long-poll HTTP and a stream transport carried over
// WebSocket), following socket.io/engine.io wire semantics.
package relaysix

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"golang.org/x/time/rate"

	eio "github.com/relaysix/relaysix/engineio"
	"github.com/relaysix/relaysix/internal/metrics"
	"github.com/relaysix/relaysix/internal/ratelimit"
	siop "github.com/relaysix/relaysix/protocol"
)

// NamespaceFactory builds a Namespace the first time a dynamic matcher
// accepts a CONNECT to an unknown name (spec.md §9, "Dynamic
// namespaces").
type NamespaceFactory func(name string) *Namespace

type dynamicMatcher struct {
	match   func(name string) bool
	factory NamespaceFactory
}

// Server is the root of one messaging deployment: it owns the engine.io
// transport-selection layer, the namespace registry, and every
// connected Client (spec.md §2, "Server").
type Server struct {
	engine *eio.Server

	path         string
	pingInterval time.Duration
	pingTimeout  time.Duration
	maxPayload   int
	rateLimit    float64
	rateBurst    int
	registerer   prometheus.Registerer
	log          *slog.Logger
	codec        siop.Codec

	metrics *metrics.Metrics

	mu         sync.RWMutex
	namespaces map[string]*Namespace
	matchers   []dynamicMatcher

	cmu     sync.Mutex
	clients map[string]*Client
}

// New builds a Server and its default namespace "/" (spec.md §3, "The
// default namespace / always exists").
func New(opts ...Option) *Server {
	s := &Server{
		path:         "/socket.io/",
		pingInterval: 25 * time.Second,
		pingTimeout:  20 * time.Second,
		maxPayload:   1_000_000,
		codec:        siop.JSONCodec{},
		namespaces:   make(map[string]*Namespace),
		clients:      make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.registerer == nil {
		s.registerer = prometheus.NewRegistry()
	}
	s.metrics = metrics.New(s.registerer)

	s.engine = eio.NewServer(func(e *eio.Server) {
		e.Path = s.path
		e.PingInterval = s.pingInterval
		e.PingTimeout = s.pingTimeout
		e.MaxPayload = s.maxPayload
		e.Metrics = s.metrics
		e.Log = s.log
		if s.rateLimit > 0 {
			e.Limiter = ratelimit.NewPerKey(rate.Limit(s.rateLimit), s.rateBurst)
		}
		e.OnOpen = func(session *eio.Session, r *http.Request) { s.onEngineOpen(session, r) }
	})

	s.namespaces["/"] = newNamespace(s, "/")
	return s
}

// onEngineOpen wires a freshly handshaken EngineSession into a Client,
// keyed by its engine session id for HTTP-request-scoped bookkeeping
// (spec.md §3, "Client: one-to-one with EngineSession").
func (s *Server) onEngineOpen(session *eio.Session, r *http.Request) {
	c := newClient(s, session, newRequest(r))
	s.cmu.Lock()
	s.clients[session.ID.String()] = c
	s.cmu.Unlock()
	session.OnClose(func(string) {
		s.cmu.Lock()
		delete(s.clients, session.ID.String())
		s.cmu.Unlock()
	})
}

// Of returns the Namespace named name, creating it (with no
// authorizer, no middleware) if it does not yet exist.
func (s *Server) Of(name string) *Namespace {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nsp, ok := s.namespaces[name]; ok {
		return nsp
	}
	nsp := newNamespace(s, name)
	s.namespaces[name] = nsp
	return nsp
}

// OfMatch registers a dynamic namespace matcher: on CONNECT to a name
// with no existing Namespace, matchers are tried in registration order
// and the first match's factory instantiates and caches the result
// (spec.md §9, "Dynamic namespaces").
func (s *Server) OfMatch(match func(name string) bool, factory NamespaceFactory) {
	s.mu.Lock()
	s.matchers = append(s.matchers, dynamicMatcher{match: match, factory: factory})
	s.mu.Unlock()
}

// namespaceFor resolves name to an existing or dynamically created
// Namespace, or ErrNamespaceNotFound (spec.md §4.3, step 1).
func (s *Server) namespaceFor(name string) (*Namespace, error) {
	s.mu.RLock()
	nsp, ok := s.namespaces[name]
	matchers := s.matchers
	s.mu.RUnlock()
	if ok {
		return nsp, nil
	}

	for _, m := range matchers {
		if !m.match(name) {
			continue
		}
		nsp = m.factory(name)
		s.mu.Lock()
		s.namespaces[name] = nsp
		s.mu.Unlock()
		return nsp, nil
	}

	return nil, ErrNamespaceNotFound.F(name)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// Shutdown stops the engine.io listener from accepting new handshakes
// and closes every open EngineSession, which in turn disconnects every
// NamespaceSocket it owns via Client.disconnectAll (spec.md §6, "Exit
// from server"). The caller's own http.Server.Shutdown still handles
// draining in-flight HTTP requests.
func (s *Server) Shutdown() {
	s.engine.Close()
}

package relaysix

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	siop "github.com/relaysix/relaysix/protocol"
)

// Option configures a Server at construction time (teacher pattern:
// functional options applied in New).
type Option func(*Server)

// WithPath sets the HTTP path prefix recorded on the engine server
// (spec.md §6, default "/socket.io/"). Requests are not filtered by it:
// the handler answers on whatever path it is mounted at.
func WithPath(path string) Option { return func(s *Server) { s.path = path } }

func WithPingInterval(d time.Duration) Option { return func(s *Server) { s.pingInterval = d } }
func WithPingTimeout(d time.Duration) Option  { return func(s *Server) { s.pingTimeout = d } }
func WithMaxPayload(n int) Option             { return func(s *Server) { s.maxPayload = n } }

// WithCodec selects the messaging payload codec (default JSONCodec;
// see protocol.MsgpackCodec for the alternate "custom parser").
func WithCodec(c siop.Codec) Option { return func(s *Server) { s.codec = c } }

// WithHandshakeRateLimit gates handshake requests per remote address
// with a token bucket (spec.md §9 ambient hardening, not a spec
// feature): r is the sustained rate, burst the bucket size.
func WithHandshakeRateLimit(r float64, burst int) Option {
	return func(s *Server) { s.rateLimit, s.rateBurst = r, burst }
}

// WithMetrics registers Prometheus collectors against reg instead of
// the default registerer.
func WithMetrics(reg prometheus.Registerer) Option { return func(s *Server) { s.registerer = reg } }

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.log = l } }

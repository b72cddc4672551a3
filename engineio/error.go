package engineio

import erro "github.com/relaysix/relaysix/internal/errors"

const (
	ErrSessionUnknown  erro.String  = "engineio: session id unknown"
	ErrSessionClosed   erro.State   = "engineio: session already closed"
	ErrBadTransport    erro.String  = "engineio: unknown transport"
	ErrHandshakeFailed erro.StringF = "engineio: handshake failed: %w"
	ErrRateLimited     erro.String  = "engineio: too many handshake attempts"
	ErrServerClosed    erro.String  = "engineio: server is shutting down"
)

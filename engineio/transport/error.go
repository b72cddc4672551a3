package transport

import erro "github.com/relaysix/relaysix/internal/errors"

const (
	ErrTransportClosed erro.String = "engineio: transport closed"
	ErrSendBufferFull  erro.String = "engineio: send buffer full"
	ErrUpgradeMismatch erro.String = "engineio: upgrade probe on wrong transport"
	ErrBadHandshake    erro.String = "engineio: bad handshake request"
)

package client

import (
	erro "github.com/relaysix/relaysix/internal/errors"
)

const (
	ErrAlreadyOpening  erro.State   = "manager: open already in progress"
	ErrHandshakeFailed erro.StringF = "manager: handshake failed: %w"
	ErrManagerClosed   erro.State   = "manager: closed"
	ErrReconnectFailed erro.State   = "manager: reconnect attempts exhausted"
	ErrAckTimeout      erro.State   = "ack: timed out waiting for reply"
	ErrAckDisconnected erro.State   = "ack: socket disconnected before reply"
	ErrParseError      erro.State   = "manager: malformed frame from server"
)

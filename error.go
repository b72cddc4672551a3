package relaysix

import (
	erro "github.com/relaysix/relaysix/internal/errors"
)

const (
	ErrNamespaceNotFound    erro.StringF = "namespace %q not found"
	ErrUnsupportedEventName erro.StringF = "event name unsupported, cannot use the reserved name %q as an event name"
	ErrUnknownEventName     erro.String  = "unknown event name, the first field is not a string"
	ErrEmptyEventData       erro.String  = "event carried no data"
	ErrSocketDisconnected   erro.State   = "socket: already disconnected"
	ErrConnectRejected      erro.StringF = "connect rejected: %s"
	ErrAckTimeout           erro.State   = "ack: timed out waiting for reply"
	ErrAckDisconnected      erro.State   = "ack: socket disconnected before reply"
	ErrAckUnknown           erro.String  = "ack: no pending callback for this id"
)

// Package protocol implements the messaging-layer wire format: type /
// namespace / ack-id / payload, with attachments split out of the JSON
// (or MessagePack) payload graph (spec.md §4.1, "Messaging codec").
package protocol

// Type is the messaging packet's type digit.
type Type byte

const (
	Connect Type = iota
	Disconnect
	Event
	Ack
	ConnectError
	BinaryEvent
	BinaryAck
)

func (t Type) Byte() byte { return byte(t) + '0' }

func (t Type) IsBinary() bool { return t == BinaryEvent || t == BinaryAck }

func (t Type) String() string {
	switch t {
	case Connect:
		return "CONNECT"
	case Disconnect:
		return "DISCONNECT"
	case Event:
		return "EVENT"
	case Ack:
		return "ACK"
	case ConnectError:
		return "CONNECT_ERROR"
	case BinaryEvent:
		return "BINARY_EVENT"
	case BinaryAck:
		return "BINARY_ACK"
	}
	return "UNKNOWN"
}

// Packet is one application-visible messaging unit (spec.md §3,
// MessagingPacket).
type Packet struct {
	Type        Type
	Namespace   string // defaults to "/"
	AckID       *uint64
	Data        []byte // raw JSON (or codec-specific) payload, nil if empty
	Attachments [][]byte
}

func (p Packet) namespaceOrDefault() string {
	if p.Namespace == "" {
		return "/"
	}
	return p.Namespace
}

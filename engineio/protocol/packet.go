// Package protocol implements the engine.io wire framing: one packet is
// one frame, a single ASCII digit packet-type prefix followed by the
// payload (spec.md §4.1, "Engine codec").
package protocol

// PacketType is the single-digit prefix identifying an EnginePacket's
// kind on the wire.
type PacketType byte

const (
	OpenPacket PacketType = iota
	ClosePacket
	PingPacket
	PongPacket
	MessagePacket
	UpgradePacket
	NoopPacket

	// BinaryPacket is not a wire type digit; it marks a MESSAGE packet
	// carrying a binary (as opposed to text) payload.
	BinaryPacket PacketType = 255
)

func (t PacketType) String() string {
	switch t {
	case OpenPacket:
		return "open"
	case ClosePacket:
		return "close"
	case PingPacket:
		return "ping"
	case PongPacket:
		return "pong"
	case MessagePacket:
		return "message"
	case UpgradePacket:
		return "upgrade"
	case NoopPacket:
		return "noop"
	}
	return "unknown"
}

// Byte returns the ASCII digit this type is encoded as on the wire.
func (t PacketType) Byte() byte { return byte(t) + '0' }

// Packet is one engine.io frame: a type and either a text or binary
// payload.
type Packet struct {
	T        PacketType
	Data     []byte // text payload, valid when !IsBinary
	Binary   []byte // binary payload, valid when IsBinary
	IsBinary bool
}

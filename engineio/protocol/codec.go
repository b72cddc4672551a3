package protocol

import (
	"encoding/base64"

	errs "github.com/relaysix/relaysix/internal/errors"
)

const (
	ErrPacketDecode  errs.StringF = "engineio: decode failed: %w"
	ErrPacketEncode  errs.StringF = "engineio: encode failed: %w"
	ErrBadPacketType errs.String  = "engineio: unknown packet type prefix"
)

// EncodeText renders a Packet as a single text frame. Binary payloads
// are base64-encoded with a "b" prefix, matching the fallback the spec
// describes for transports without native binary frames (spec.md
// §4.1).
func EncodeText(p Packet) (string, error) {
	if p.IsBinary {
		return "b" + base64.StdEncoding.EncodeToString(p.Binary), nil
	}
	return string(p.T.Byte()) + string(p.Data), nil
}

// EncodeBinary renders a Packet as raw bytes for transports that carry
// binary frames natively (no type prefix; the frame boundary itself
// carries the MESSAGE type).
func EncodeBinary(p Packet) []byte {
	return p.Binary
}

// DecodeText parses a single text frame into a Packet.
func DecodeText(s string) (Packet, error) {
	if len(s) == 0 {
		return Packet{}, ErrPacketDecode.F(ErrBadPacketType)
	}
	if s[0] == 'b' {
		bin, err := base64.StdEncoding.DecodeString(s[1:])
		if err != nil {
			return Packet{}, ErrPacketDecode.F(err)
		}
		return Packet{T: MessagePacket, IsBinary: true, Binary: bin}, nil
	}

	t := s[0]
	if t < '0' || t > '6' {
		return Packet{}, ErrPacketDecode.F(ErrBadPacketType)
	}
	return Packet{T: PacketType(t - '0'), Data: []byte(s[1:])}, nil
}

package protocol

import (
	"strconv"
	"strings"

	erro "github.com/relaysix/relaysix/internal/errors"
)

const (
	ErrBadType      erro.String  = "protocol: bad or missing type digit"
	ErrBadAttachCnt erro.String  = "protocol: malformed attachment count"
	ErrBadJSON      erro.StringF = "protocol: bad payload: %w"
)

// EncodeFrame renders a Packet as the single textual frame described in
// spec.md §4.1 ("Messaging codec"): type digit, optional attachment
// count, optional namespace, optional ackId, optional JSON payload.
func EncodeFrame(p Packet) string {
	var b strings.Builder
	b.WriteByte(p.Type.Byte())

	if p.Type.IsBinary() {
		b.WriteString(strconv.Itoa(len(p.Attachments)))
		b.WriteByte('-')
	}

	if ns := p.namespaceOrDefault(); ns != "/" {
		b.WriteString(ns)
		b.WriteByte(',')
	}

	if p.AckID != nil {
		b.WriteString(strconv.FormatUint(*p.AckID, 10))
	}

	if len(p.Data) > 0 {
		b.Write(p.Data)
	}

	return b.String()
}

// DecodeFrame parses a single textual frame into a Packet. For
// BINARY_* types, Attachments is left empty; the caller must collect
// the following binary frames separately (see Decoder).
func DecodeFrame(frame string) (Packet, error) {
	if len(frame) == 0 {
		return Packet{}, ErrBadType
	}

	t := frame[0]
	if t < '0' || t > '6' {
		return Packet{}, ErrBadType
	}
	pac := Packet{Type: Type(t - '0'), Namespace: "/"}
	rest := frame[1:]

	if pac.Type.IsBinary() {
		i := strings.IndexByte(rest, '-')
		if i < 0 {
			return Packet{}, ErrBadAttachCnt
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil || n < 1 {
			return Packet{}, ErrBadAttachCnt
		}
		pac.Attachments = make([][]byte, 0, n)
		rest = rest[i+1:]
	}

	if strings.HasPrefix(rest, "/") {
		i := strings.IndexByte(rest, ',')
		if i < 0 {
			return Packet{}, ErrBadType.KV("reason", "unterminated namespace")
		}
		pac.Namespace = rest[:i]
		rest = rest[i+1:]
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i > 0 {
		ackID, err := strconv.ParseUint(rest[:i], 10, 64)
		if err != nil {
			return Packet{}, ErrBadType.KV("reason", "bad ackId")
		}
		pac.AckID = &ackID
		rest = rest[i:]
	}

	if len(rest) > 0 {
		pac.Data = []byte(rest)
	}

	return pac, nil
}

// PendingAttachments reports how many more binary frames this packet
// still needs before it is complete.
func (p Packet) PendingAttachments() int {
	if !p.Type.IsBinary() {
		return 0
	}
	return cap(p.Attachments) - len(p.Attachments)
}

// Decoder accumulates a BINARY_* packet across its trailing binary
// frames. It is streaming: a new text frame arriving before the
// expected attachments finish is an error, and the decoder resets
// (spec.md §4.1, "Failure modes").
type Decoder struct {
	pending *Packet
}

// Feed processes one frame (isBinary=false for a textual frame,
// true for a raw binary frame) and returns a completed Packet once one
// is ready.
func (d *Decoder) Feed(isBinary bool, data []byte) (pac Packet, complete bool, err error) {
	if isBinary {
		if d.pending == nil {
			return Packet{}, false, ErrAttachmentMismatch
		}
		d.pending.Attachments = append(d.pending.Attachments, data)
		if d.pending.PendingAttachments() == 0 {
			done := *d.pending
			d.pending = nil
			return done, true, nil
		}
		return Packet{}, false, nil
	}

	if d.pending != nil {
		// a new text frame arrived before attachments finished: reset.
		d.pending = nil
		return Packet{}, false, ErrAttachmentMismatch
	}

	p, err := DecodeFrame(string(data))
	if err != nil {
		return Packet{}, false, err
	}
	if p.Type.IsBinary() && p.PendingAttachments() > 0 {
		d.pending = &p
		return Packet{}, false, nil
	}
	return p, true, nil
}

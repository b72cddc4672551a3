package protocol

import (
	"bytes"
	"strconv"
	"strings"

	rw "github.com/relaysix/relaysix/internal/readwriter"
)

// Payload is a batch of engine.io packets combined into a single
// long-poll body, using the "<length>:<frame>" record-separator
// scheme (spec.md §4.1, "Long-poll combines multiple frames").
type Payload []Packet

// Encode concatenates the payload's packets, each preceded by its
// character length and a colon, through the same sticky-error buffered
// Writer Decode reads back with. Stops (leaving the rest for the next
// poll) once adding another frame would exceed maxPayload bytes, when
// maxPayload > 0.
func Encode(payload Payload, maxPayload int) (out string, remaining Payload) {
	var buf bytes.Buffer
	wtr := rw.NewWriter(&buf)

	written := 0
	for i, pac := range payload {
		frame, err := EncodeText(pac)
		if err != nil {
			continue
		}
		rec := strconv.Itoa(len(frame)) + ":" + frame
		if maxPayload > 0 && written+len(rec) > maxPayload && written > 0 {
			remaining = payload[i:]
			break
		}
		wtr.WriteBytes([]byte(rec))
		written += len(rec)
	}

	if err := wtr.Err(); err != nil {
		return "", remaining
	}
	return buf.String(), remaining
}

// Decode splits a long-poll body back into its constituent packets.
func Decode(body string) (Payload, error) {
	r := rw.NewReader(strings.NewReader(body))
	var out Payload

	for {
		lenBytes, found := r.ReadUntil(':')
		if len(lenBytes) == 0 && !found {
			break
		}
		if !found {
			return nil, ErrPacketDecode.F(ErrBadPacketType)
		}
		n, err := strconv.Atoi(string(lenBytes))
		if err != nil {
			return nil, ErrPacketDecode.F(err)
		}
		frame := r.ReadN(n)
		if r.IsErr() {
			return nil, ErrPacketDecode.F(r.Err())
		}
		pac, err := DecodeText(string(frame))
		if err != nil {
			return nil, err
		}
		out = append(out, pac)
	}
	return out, nil
}

package protocol

import "github.com/buger/jsonparser"

// EncodeEvent turns application data (typically []interface{}{event,
// args...}) into a wire Packet, splitting out binary blobs into
// BINARY_EVENT/BINARY_ACK attachments as needed (spec.md §4.1, "Binary
// handling"). baseType must be Event or Ack; it is promoted to the
// corresponding BINARY_* type when attachments are produced.
func EncodeEvent(codec Codec, baseType Type, namespace string, ackID *uint64, data interface{}) (Packet, error) {
	cleaned, attachments, err := splitBinary(data)
	if err != nil {
		return Packet{}, err
	}

	pac := Packet{Namespace: namespace, AckID: ackID}
	if len(attachments) > 0 {
		if baseType == Event {
			pac.Type = BinaryEvent
		} else {
			pac.Type = BinaryAck
		}
		pac.Attachments = attachments
	} else {
		pac.Type = baseType
	}

	raw, err := codec.Marshal(cleaned)
	if err != nil {
		return Packet{}, err
	}
	pac.Data = raw
	return pac, nil
}

// DecodeEventData unmarshals a packet's payload back into a generic Go
// value, rejoining any binary attachments at their placeholder
// positions.
func DecodeEventData(codec Codec, pac Packet) (interface{}, error) {
	if len(pac.Data) == 0 {
		return nil, nil
	}

	var v interface{}
	if err := codec.Unmarshal(pac.Data, &v); err != nil {
		return nil, ErrBadJSON.F(err)
	}

	if len(pac.Attachments) == 0 {
		return v, nil
	}
	if codec.Name() == "json" && !hasPlaceholder(pac.Data) {
		return v, nil
	}
	return joinBinary(v, pac.Attachments)
}

// hasPlaceholder scans raw JSON for a "_placeholder" marker at any
// depth. DecodeEventData consults it only for JSON packets that carry
// attachments, after the payload is already unmarshaled, and skips the
// graph walk when no marker is found (SPEC_FULL.md §4.1 domain-stack
// note).
func hasPlaceholder(data []byte) bool {
	found := false
	var scan func(value []byte, dt jsonparser.ValueType)
	scan = func(value []byte, dt jsonparser.ValueType) {
		if found {
			return
		}
		switch dt {
		case jsonparser.Object:
			if b, err := jsonparser.GetBoolean(value, "_placeholder"); err == nil && b {
				found = true
				return
			}
			_ = jsonparser.ObjectEach(value, func(_, val []byte, vt jsonparser.ValueType, _ int) error {
				if vt == jsonparser.Object || vt == jsonparser.Array {
					scan(val, vt)
				}
				return nil
			})
		case jsonparser.Array:
			_, _ = jsonparser.ArrayEach(value, func(val []byte, vt jsonparser.ValueType, _ int, _ error) {
				if vt == jsonparser.Object || vt == jsonparser.Array {
					scan(val, vt)
				}
			})
		}
	}
	scan(data, jsonparser.Array)
	return found
}

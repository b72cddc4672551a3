package protocol

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec (un)marshals the payload portion of a messaging packet. The
// wire framing around it (type/namespace/ackId/attachment-count) is
// codec-independent (spec.md §9, "Dynamic namespaces" area of the
// source treats parsers as pluggable in the same way).
type Codec interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	Name() string
}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONCodec is the default wire codec, backed by json-iterator/go for
// its drop-in encoding/json compatibility with lower allocation cost.
type JSONCodec struct{}

func (JSONCodec) Marshal(v interface{}) ([]byte, error)      { return jsonAPI.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v interface{}) error { return jsonAPI.Unmarshal(data, v) }
func (JSONCodec) Name() string                               { return "json" }

// MsgpackCodec is an opt-in alternate wire codec (socket.io's "custom
// parsers" extension point, spec.md §9), useful when payloads are
// dominated by numeric/binary data rather than text.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(v interface{}) ([]byte, error) { return msgpack.Marshal(v) }
func (MsgpackCodec) Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}
func (MsgpackCodec) Name() string { return "msgpack" }

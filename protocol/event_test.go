package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEventRoundTrip(t *testing.T) {
	codec := JSONCodec{}
	pac, err := EncodeEvent(codec, Event, "/chat", nil, []interface{}{"greet", "world", 3})
	require.NoError(t, err)
	assert.Equal(t, Event, pac.Type)
	assert.Empty(t, pac.Attachments)

	data, err := DecodeEventData(codec, pac)
	require.NoError(t, err)

	arr, ok := data.([]interface{})
	require.True(t, ok)
	require.Len(t, arr, 3)
	assert.Equal(t, "greet", arr[0])
	assert.Equal(t, "world", arr[1])
}

func TestEncodeEventPromotesToBinaryEventWithAttachments(t *testing.T) {
	codec := JSONCodec{}
	pac, err := EncodeEvent(codec, Event, "/", nil, []interface{}{"upload", []byte("payload")})
	require.NoError(t, err)
	assert.Equal(t, BinaryEvent, pac.Type)
	require.Len(t, pac.Attachments, 1)
	assert.Equal(t, []byte("payload"), pac.Attachments[0])

	data, err := DecodeEventData(codec, pac)
	require.NoError(t, err)
	arr, ok := data.([]interface{})
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), arr[1])
}

func TestEncodeEventBaseTypeAckPromotesToBinaryAck(t *testing.T) {
	codec := JSONCodec{}
	pac, err := EncodeEvent(codec, Ack, "/", nil, []interface{}{[]byte("reply")})
	require.NoError(t, err)
	assert.Equal(t, BinaryAck, pac.Type)
}

func TestDecodeEventDataEmptyPayload(t *testing.T) {
	data, err := DecodeEventData(JSONCodec{}, Packet{Type: Event})
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestHasPlaceholderFastPath(t *testing.T) {
	assert.True(t, hasPlaceholder([]byte(`[{"_placeholder":true,"num":0}]`)))
	assert.True(t, hasPlaceholder([]byte(`[{"nested":{"_placeholder":true,"num":0}}]`)))
	assert.False(t, hasPlaceholder([]byte(`["hello",1,{"a":1}]`)))
}

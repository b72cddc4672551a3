package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// splitBinary's cleaned output only round-trips through joinBinary after
// a marshal/unmarshal pass, since the wire graph really is JSON travel
// in between (matches how EncodeEvent/DecodeEventData use these).
func TestSplitJoinBinaryRoundTrip(t *testing.T) {
	codec := JSONCodec{}
	original := map[string]interface{}{
		"blob": []byte("hello"),
		"name": "file",
	}

	cleaned, attachments, err := splitBinary(original)
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, []byte("hello"), attachments[0])

	raw, err := codec.Marshal(cleaned)
	require.NoError(t, err)

	var decoded interface{}
	require.NoError(t, codec.Unmarshal(raw, &decoded))

	joined, err := joinBinary(decoded, attachments)
	require.NoError(t, err)

	m, ok := joined.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "file", m["name"])
	assert.Equal(t, []byte("hello"), m["blob"])
}

func TestSplitBinaryMultipleAttachmentsOrdered(t *testing.T) {
	original := []interface{}{[]byte("a"), []byte("b"), []byte("c")}
	_, attachments, err := splitBinary(original)
	require.NoError(t, err)
	require.Len(t, attachments, 3)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, attachments)
}

func TestJoinBinaryAttachmentMismatch(t *testing.T) {
	v := map[string]interface{}{"_placeholder": true, "num": float64(5)}
	_, err := joinBinary(v, [][]byte{[]byte("only one")})
	assert.ErrorIs(t, err, ErrAttachmentMismatch)
}

func TestSplitBinaryCycleCaughtByDepthGuard(t *testing.T) {
	m := map[string]interface{}{}
	m["self"] = m
	_, _, err := splitBinary(m)
	assert.ErrorIs(t, err, ErrTooDeep)
}

func TestSplitBinaryTooDeep(t *testing.T) {
	var v interface{} = []byte("leaf")
	for i := 0; i < maxGraphDepth+2; i++ {
		v = []interface{}{v}
	}
	_, _, err := splitBinary(v)
	assert.ErrorIs(t, err, ErrTooDeep)
}

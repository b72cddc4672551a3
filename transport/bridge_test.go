package transport

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	eio "github.com/relaysix/relaysix/engineio"
	eiop "github.com/relaysix/relaysix/engineio/protocol"
	sess "github.com/relaysix/relaysix/engineio/session"
	siop "github.com/relaysix/relaysix/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBridgeFixture brings up a real engine.io server, drives a handshake
// through it, and returns the resulting Session plus the srv and sid so
// a test can post raw engine.io frames the same way a client would.
func newBridgeFixture(t *testing.T) (srv *eio.Server, sid string, session *eio.Session) {
	t.Helper()
	srv = eio.NewServer()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/?transport=polling", nil)
	srv.ServeHTTP(w, r)

	payload, err := eiop.Decode(w.Body.String())
	require.NoError(t, err)
	hs, err := eiop.UnmarshalHandshake(payload[0].Data)
	require.NoError(t, err)

	s, ok := srv.Session(sess.ID(hs.SID))
	require.True(t, ok)
	return srv, hs.SID, s
}

func TestBridgeSendWritesEncodedFrameThroughSession(t *testing.T) {
	srv, sid, session := newBridgeFixture(t)
	b := NewBridge(session)

	ackID := uint64(7)
	pac := siop.Packet{Type: siop.Event, Namespace: "/chat", AckID: &ackID, Data: []byte(`["hi"]`)}
	require.NoError(t, b.Send(pac))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/?sid="+sid+"&transport=polling", nil)
	srv.ServeHTTP(w, r)

	payload, err := eiop.Decode(w.Body.String())
	require.NoError(t, err)
	require.Len(t, payload, 1)
	assert.Equal(t, eiop.MessagePacket, payload[0].T)
	assert.Equal(t, siop.EncodeFrame(pac), string(payload[0].Data))
}

func TestBridgeSendFramesReplaysAttachmentsInOrder(t *testing.T) {
	srv, sid, session := newBridgeFixture(t)
	b := NewBridge(session)

	pac := siop.Packet{Type: siop.BinaryEvent, Attachments: [][]byte{[]byte("a"), []byte("b")}}
	require.NoError(t, b.SendFrames(Encode(pac)))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/?sid="+sid+"&transport=polling", nil)
	srv.ServeHTTP(w, r)

	payload, err := eiop.Decode(w.Body.String())
	require.NoError(t, err)
	require.Len(t, payload, 3)
	assert.Equal(t, siop.EncodeFrame(pac), string(payload[0].Data))
	assert.Equal(t, []byte("a"), payload[1].Binary)
	assert.Equal(t, []byte("b"), payload[2].Binary)
}

func TestBridgeReceiveReassemblesPostedPacket(t *testing.T) {
	srv, sid, session := newBridgeFixture(t)
	b := NewBridge(session)

	frame := siop.EncodeFrame(siop.Packet{Type: siop.Event, Data: []byte(`["ping"]`)})
	postBody, err := eiop.EncodeText(eiop.Packet{T: eiop.MessagePacket, Data: []byte(frame)})
	require.NoError(t, err)
	body := encodeLongPollRecord(postBody)

	postReq := httptest.NewRequest(http.MethodPost, "/?sid="+sid+"&transport=polling", strings.NewReader(body))
	postW := httptest.NewRecorder()
	srv.ServeHTTP(postW, postReq)
	require.Equal(t, http.StatusOK, postW.Code)

	select {
	case pac := <-b.Receive():
		assert.Equal(t, siop.Event, pac.Type)
		assert.Equal(t, `["ping"]`, string(pac.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("posted frame never reassembled into a messaging packet")
	}
}

func TestBridgeReceiveClosesSessionOnMalformedFrame(t *testing.T) {
	srv, sid, session := newBridgeFixture(t)
	b := NewBridge(session)

	postBody, err := eiop.EncodeText(eiop.Packet{T: eiop.MessagePacket, Data: []byte("not-a-packet")})
	require.NoError(t, err)
	body := encodeLongPollRecord(postBody)

	postReq := httptest.NewRequest(http.MethodPost, "/?sid="+sid+"&transport=polling", strings.NewReader(body))
	postW := httptest.NewRecorder()
	srv.ServeHTTP(postW, postReq)
	require.Equal(t, http.StatusOK, postW.Code)

	select {
	case _, ok := <-b.Receive():
		assert.False(t, ok, "a malformed frame must close Receive instead of yielding a packet")
	case <-time.After(2 * time.Second):
		t.Fatal("malformed frame never closed the bridge's receive channel")
	}
	assert.Equal(t, eio.StateClosed, session.State())
}

func TestBridgeWritableReflectsTransportWritability(t *testing.T) {
	_, _, session := newBridgeFixture(t)
	b := NewBridge(session)
	assert.True(t, b.Writable())
}

func encodeLongPollRecord(frame string) string {
	return strconv.Itoa(len(frame)) + ":" + frame
}

package relaysix

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	eio "github.com/relaysix/relaysix/engineio"
	eiop "github.com/relaysix/relaysix/engineio/protocol"
	eiosess "github.com/relaysix/relaysix/engineio/session"
	eiot "github.com/relaysix/relaysix/engineio/transport"
	siop "github.com/relaysix/relaysix/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient wires a Client to a real engine.io session over a
// polling transport, so handleConnect's CONNECT/CONNECT_ERROR replies
// can be read back off the wire the same way a real peer would.
func newTestClient(t *testing.T, s *Server) (*Client, *eiot.PollingTransport) {
	t.Helper()
	tr := eiot.NewPollingTransport(eiosess.ID("e1"), 16, 0)
	session := eio.NewSession(eiosess.ID("e1"), tr, eio.Config{PingInterval: time.Hour, PingTimeout: time.Hour})
	session.Open()

	req := newRequest(httptest.NewRequest(http.MethodGet, "/socket.io/", nil))
	c := newClient(s, session, req)
	return c, tr
}

func lastReplyPacket(t *testing.T, tr *eiot.PollingTransport) siop.Packet {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, tr.ServePoll(w, r))

	payload, err := eiop.Decode(w.Body.String())
	require.NoError(t, err)
	require.Len(t, payload, 1)
	require.Equal(t, eiop.MessagePacket, payload[0].T)

	pac, err := siop.DecodeFrame(string(payload[0].Data))
	require.NoError(t, err)
	return pac
}

func TestClientHandleConnectAcceptsDefaultNamespace(t *testing.T) {
	s := newTestServer()
	s.namespaces = map[string]*Namespace{"/": newNamespace(s, "/")}
	c, tr := newTestClient(t, s)

	c.handleConnect("/", siop.Packet{Type: siop.Connect, Namespace: "/"})

	pac := lastReplyPacket(t, tr)
	assert.Equal(t, siop.Connect, pac.Type)

	_, ok := c.namespaceSocket("/")
	assert.True(t, ok)
}

func TestClientHandleConnectRejectedByAuthorizerSendsConnectError(t *testing.T) {
	s := newTestServer()
	nsp := newNamespace(s, "/")
	nsp.Authorize(func(req *Request, auth interface{}) (bool, string) {
		return false, "not allowed"
	})
	s.namespaces = map[string]*Namespace{"/": nsp}
	c, tr := newTestClient(t, s)

	c.handleConnect("/", siop.Packet{Type: siop.Connect, Namespace: "/"})

	pac := lastReplyPacket(t, tr)
	assert.Equal(t, siop.ConnectError, pac.Type)

	_, ok := c.namespaceSocket("/")
	assert.False(t, ok, "a rejected connect must not register a NamespaceSocket")
	assert.Empty(t, nsp.sockets, "a rejected connect must not leave a socket behind in the namespace")
}

func TestClientHandleConnectRejectedByMiddlewareSendsConnectErrorAndCleansUp(t *testing.T) {
	s := newTestServer()
	nsp := newNamespace(s, "/")
	nsp.Use(func(socket *NamespaceSocket, next func(error)) {
		next(errors.New("middleware says no"))
	})
	s.namespaces = map[string]*Namespace{"/": nsp}
	c, tr := newTestClient(t, s)

	c.handleConnect("/", siop.Packet{Type: siop.Connect, Namespace: "/"})

	pac := lastReplyPacket(t, tr)
	assert.Equal(t, siop.ConnectError, pac.Type)

	_, ok := c.namespaceSocket("/")
	assert.False(t, ok, "a middleware-rejected connect must not register a NamespaceSocket on the Client")
	assert.Empty(t, nsp.sockets, "a middleware-rejected connect must disconnect and remove its socket from the namespace")
}

func TestClientHandleConnectUnknownNamespaceSendsConnectError(t *testing.T) {
	s := newTestServer()
	s.namespaces = map[string]*Namespace{"/": newNamespace(s, "/")}
	c, tr := newTestClient(t, s)

	c.handleConnect("/missing", siop.Packet{Type: siop.Connect, Namespace: "/missing"})

	pac := lastReplyPacket(t, tr)
	assert.Equal(t, siop.ConnectError, pac.Type)
}

func TestClientHandleConnectMatchesDynamicNamespaceFactory(t *testing.T) {
	s := newTestServer()
	s.namespaces = map[string]*Namespace{"/": newNamespace(s, "/")}
	var built string
	s.matchers = []dynamicMatcher{{
		match: func(name string) bool { return name == "/rooms/42" },
		factory: func(name string) *Namespace {
			built = name
			return newNamespace(s, name)
		},
	}}
	c, tr := newTestClient(t, s)

	c.handleConnect("/rooms/42", siop.Packet{Type: siop.Connect, Namespace: "/rooms/42"})

	assert.Equal(t, "/rooms/42", built)
	pac := lastReplyPacket(t, tr)
	assert.Equal(t, siop.Connect, pac.Type)

	_, ok := c.namespaceSocket("/rooms/42")
	assert.True(t, ok)

	s.mu.RLock()
	_, cached := s.namespaces["/rooms/42"]
	s.mu.RUnlock()
	assert.True(t, cached, "a dynamically matched namespace must be cached for later connects")
}

func TestClientHandleDisconnectRemovesSocketAndDisconnectsIt(t *testing.T) {
	s := newTestServer()
	nsp := newNamespace(s, "/")
	s.namespaces = map[string]*Namespace{"/": nsp}
	c, tr := newTestClient(t, s)

	c.handleConnect("/", siop.Packet{Type: siop.Connect, Namespace: "/"})
	_ = lastReplyPacket(t, tr) // drain the CONNECT reply

	socket, ok := c.namespaceSocket("/")
	require.True(t, ok)

	var reason string
	socket.OnDisconnect(func(r string) { reason = r })

	c.handleDisconnect("/")

	assert.Equal(t, "client namespace disconnect", reason)
	_, ok = c.namespaceSocket("/")
	assert.False(t, ok)
}

func TestClientHandleDisconnectUnknownNamespaceIsANoop(t *testing.T) {
	s := newTestServer()
	s.namespaces = map[string]*Namespace{"/": newNamespace(s, "/")}
	c, _ := newTestClient(t, s)

	require.NotPanics(t, func() { c.handleDisconnect("/never-connected") })
}

func TestClientDisconnectAllDisconnectsEverySocket(t *testing.T) {
	s := newTestServer()
	nsp := newNamespace(s, "/")
	s.namespaces = map[string]*Namespace{"/": nsp}
	c, tr := newTestClient(t, s)

	c.handleConnect("/", siop.Packet{Type: siop.Connect, Namespace: "/"})
	_ = lastReplyPacket(t, tr)

	socket, ok := c.namespaceSocket("/")
	require.True(t, ok)

	var gotReason string
	socket.OnDisconnect(func(r string) { gotReason = r })

	c.disconnectAll("transport closed")

	assert.Equal(t, "transport closed", gotReason)
	assert.Empty(t, c.sockets)
}

func TestClientRouteDispatchesByPacketType(t *testing.T) {
	s := newTestServer()
	nsp := newNamespace(s, "/")
	s.namespaces = map[string]*Namespace{"/": nsp}
	c, tr := newTestClient(t, s)

	c.route(siop.Packet{Type: siop.Connect, Namespace: "/"})
	_ = lastReplyPacket(t, tr)

	_, ok := c.namespaceSocket("/")
	require.True(t, ok)

	c.route(siop.Packet{Type: siop.Disconnect, Namespace: "/"})
	_, ok = c.namespaceSocket("/")
	assert.False(t, ok)
}

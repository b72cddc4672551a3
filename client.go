package relaysix

import (
	"sync"

	eio "github.com/relaysix/relaysix/engineio"
	siop "github.com/relaysix/relaysix/protocol"
	sess "github.com/relaysix/relaysix/session"
	trns "github.com/relaysix/relaysix/transport"
)

// Client wraps one EngineSession with the messaging layer above it: a
// bridge turning MessagingPackets into engine.io frames, and the set
// of NamespaceSockets riding on it, one per namespace it has joined
// (spec.md §3, Client).
type Client struct {
	engine *eio.Session
	bridge *trns.Bridge
	server *Server
	req    *Request

	mu      sync.Mutex
	sockets map[string]*NamespaceSocket
}

func newClient(server *Server, engineSession *eio.Session, req *Request) *Client {
	c := &Client{
		engine:  engineSession,
		bridge:  trns.NewBridge(engineSession),
		server:  server,
		req:     req,
		sockets: make(map[string]*NamespaceSocket),
	}
	go c.pump()
	engineSession.OnClose(func(reason string) { c.disconnectAll(reason) })
	return c
}

// pump is the sole reader of this client's reassembled messaging
// packets for its lifetime, routing CONNECT/DISCONNECT/EVENT/ACK to
// the right Namespace and NamespaceSocket (spec.md §4.3).
func (c *Client) pump() {
	for pac := range c.bridge.Receive() {
		c.route(pac)
	}
}

func (c *Client) route(pac siop.Packet) {
	ns := pac.Namespace
	if ns == "" {
		ns = "/"
	}

	switch pac.Type {
	case siop.Connect:
		c.handleConnect(ns, pac)
	case siop.Disconnect:
		c.handleDisconnect(ns)
	case siop.Event, siop.BinaryEvent:
		c.handleEvent(ns, pac)
	case siop.Ack, siop.BinaryAck:
		c.handleAck(ns, pac)
	}
}

func (c *Client) handleConnect(ns string, pac siop.Packet) {
	nsp, err := c.server.namespaceFor(ns)
	if err != nil {
		c.sendConnectError(ns, "Invalid namespace", nil)
		return
	}

	var auth interface{}
	if len(pac.Data) > 0 {
		_ = c.server.codec.Unmarshal(pac.Data, &auth)
	}

	nsp.mu.RLock()
	authorizer := nsp.authorizer
	middlewares := append([]Middleware(nil), nsp.middlewares...)
	onConnect := nsp.onConnect
	nsp.mu.RUnlock()

	if authorizer != nil {
		ok, reason := authorizer(c.req, auth)
		if !ok {
			c.sendConnectError(ns, reason, nil)
			return
		}
	}

	id := c.socketIDFor(ns)
	socket := newNamespaceSocket(nsp, c, id, c.req)

	nsp.mu.Lock()
	nsp.sockets[id] = socket
	nsp.mu.Unlock()
	nsp.adapter.Register(id, c.bridge)
	nsp.adapter.AddAll(id, []string{id.Room()})

	for _, mw := range middlewares {
		errCh := make(chan error, 1)
		mw(socket, func(err error) { errCh <- err })
		if err := <-errCh; err != nil {
			socket.disconnect("middleware rejected")
			c.sendConnectError(ns, err.Error(), nil)
			return
		}
	}

	c.mu.Lock()
	c.sockets[ns] = socket
	c.mu.Unlock()

	c.sendConnect(ns, id)

	if onConnect != nil {
		if err := onConnect(socket); err != nil {
			c.server.log.Warn("onConnect handler failed", "namespace", ns, "err", err)
		}
	}
}

func (c *Client) handleDisconnect(ns string) {
	c.mu.Lock()
	socket, ok := c.sockets[ns]
	if ok {
		delete(c.sockets, ns)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	socket.disconnect("client namespace disconnect")
}

func (c *Client) handleEvent(ns string, pac siop.Packet) {
	socket, ok := c.namespaceSocket(ns)
	if !ok {
		return
	}
	data, err := siop.DecodeEventData(c.server.codec, pac)
	if err != nil {
		return
	}
	socket.dispatch(data, pac.AckID)
}

func (c *Client) handleAck(ns string, pac siop.Packet) {
	socket, ok := c.namespaceSocket(ns)
	if !ok || pac.AckID == nil {
		return
	}
	data, err := siop.DecodeEventData(c.server.codec, pac)
	if err != nil {
		return
	}
	socket.handleAck(*pac.AckID, data)
}

func (c *Client) namespaceSocket(ns string) (*NamespaceSocket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sockets[ns]
	return s, ok
}

// socketIDFor mints the NamespaceSocket id for ns: the engine session
// id itself in the default namespace, a fresh id everywhere else
// (spec.md §3, NamespaceSocket.id).
func (c *Client) socketIDFor(ns string) sess.ID {
	if ns == "/" {
		return sess.ID(c.engine.ID.String())
	}
	return sess.GenerateID()
}

func (c *Client) sendConnect(ns string, id sess.ID) {
	payload := map[string]interface{}{"sid": id.String()}
	raw, err := c.server.codec.Marshal(payload)
	if err != nil {
		return
	}
	_ = c.bridge.Send(siop.Packet{Type: siop.Connect, Namespace: ns, Data: raw})
}

func (c *Client) sendConnectError(ns, message string, data interface{}) {
	payload := map[string]interface{}{"message": message}
	if data != nil {
		payload["data"] = data
	}
	raw, err := c.server.codec.Marshal(payload)
	if err != nil {
		return
	}
	_ = c.bridge.Send(siop.Packet{Type: siop.ConnectError, Namespace: ns, Data: raw})
}

// disconnectAll runs when the underlying EngineSession closes: every
// NamespaceSocket owned by this client is disconnected (spec.md §4.2,
// "On destruction, each NamespaceSocket owned via Client is
// disconnected").
func (c *Client) disconnectAll(reason string) {
	c.mu.Lock()
	sockets := make([]*NamespaceSocket, 0, len(c.sockets))
	for _, s := range c.sockets {
		sockets = append(sockets, s)
	}
	c.sockets = make(map[string]*NamespaceSocket)
	c.mu.Unlock()

	for _, s := range sockets {
		s.disconnect(reason)
	}
}

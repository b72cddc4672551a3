package transport

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	eiop "github.com/relaysix/relaysix/engineio/protocol"
)

// WebsocketTransport carries engine.io packets over a single framed
// bidirectional stream: one frame in, one frame out, no batching
// (spec.md §4.1, contrasted with the long-poll transport).
type WebsocketTransport struct {
	*base

	conn   *websocket.Conn
	origin []string
}

func NewWebsocketTransport(id SessionID, chanBuf int) *WebsocketTransport {
	return &WebsocketTransport{base: newBase(id, WebSocket, chanBuf), origin: []string{"*"}}
}

// Accept upgrades the HTTP connection and runs the read/write pumps
// until either side closes or ctx is cancelled. It blocks until the
// stream ends.
func (t *WebsocketTransport) Accept(w http.ResponseWriter, r *http.Request) error {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: t.origin})
	if err != nil {
		return err
	}
	t.conn = conn
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	t.cancel = joinCancel(t.cancel, cancel)

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return t.readPump(ctx) })
	grp.Go(func() error { return t.writePump(ctx) })

	err = grp.Wait()
	_ = t.base.Close()
	return err
}

func joinCancel(a, b context.CancelFunc) context.CancelFunc {
	return func() { a(); b() }
}

func (t *WebsocketTransport) readPump(ctx context.Context) error {
	for {
		typ, data, err := t.conn.Read(ctx)
		if err != nil {
			_ = t.Close()
			return err
		}

		var pac eiop.Packet
		if typ == websocket.MessageBinary {
			pac = eiop.Packet{T: eiop.MessagePacket, IsBinary: true, Binary: data}
		} else {
			pac, err = eiop.DecodeText(string(data))
			if err != nil {
				_ = t.Close()
				return err
			}
		}

		select {
		case t.receive <- pac:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *WebsocketTransport) writePump(ctx context.Context) error {
	for {
		select {
		case p, ok := <-t.send:
			if !ok {
				return t.conn.Close(websocket.StatusNormalClosure, "")
			}
			if p.IsBinary {
				if err := t.conn.Write(ctx, websocket.MessageBinary, p.Binary); err != nil {
					return err
				}
				continue
			}
			frame, err := eiop.EncodeText(p)
			if err != nil {
				continue
			}
			if err := t.conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

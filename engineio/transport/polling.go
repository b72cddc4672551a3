package transport

import (
	"io"
	"net/http"
	"time"

	eiop "github.com/relaysix/relaysix/engineio/protocol"
)

// PollingTransport carries engine.io packets over successive HTTP
// request/response pairs, batching outgoing frames with the
// "<length>:<frame>" payload scheme (spec.md §4.1).
type PollingTransport struct {
	*base
	maxPayload int
}

func NewPollingTransport(id SessionID, chanBuf, maxPayload int) *PollingTransport {
	return &PollingTransport{base: newBase(id, Polling, chanBuf), maxPayload: maxPayload}
}

// ServePoll writes one long-poll response body: it blocks until at
// least one packet is queued (or the request context is cancelled),
// then flushes as many buffered packets as fit under maxPayload.
func (t *PollingTransport) ServePoll(w http.ResponseWriter, r *http.Request) error {
	select {
	case p, ok := <-t.send:
		if !ok {
			return ErrTransportClosed
		}
		payload := eiop.Payload{p}
	drain:
		for {
			select {
			case p, ok := <-t.send:
				if !ok {
					break drain
				}
				payload = append(payload, p)
			default:
				break drain
			}
		}

		body, remaining := eiop.Encode(payload, t.maxPayload)
		for _, p := range remaining {
			_ = t.Send(p) // put back what didn't fit this poll
		}

		w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
		_, err := io.WriteString(w, body)
		return err
	case <-r.Context().Done():
		return r.Context().Err()
	case <-time.After(pollTimeout):
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
}

// pollTimeout bounds how long a GET is held open with nothing to send,
// so idle long-poll connections cycle instead of tying up a handler
// goroutine forever.
var pollTimeout = 25 * time.Second

// AcceptPost decodes an incoming POST body into packets and enqueues
// them onto Receive().
func (t *PollingTransport) AcceptPost(r *http.Request) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	payload, err := eiop.Decode(string(body))
	if err != nil {
		return err
	}
	for _, p := range payload {
		select {
		case t.receive <- p:
		case <-t.ctx.Done():
			return ErrTransportClosed
		}
	}
	return nil
}

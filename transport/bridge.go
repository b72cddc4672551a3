// Package transport bridges one engine.io Session to the messaging
// layer above it: it turns Packets into engine.io MESSAGE frames (a
// text frame plus zero or more binary frames) and turns the session's
// incoming MESSAGE frames back into reassembled Packets (spec.md §4.3,
// "Client... exposes writeToEngine").
package transport

import (
	eio "github.com/relaysix/relaysix/engineio"
	eiop "github.com/relaysix/relaysix/engineio/protocol"
	siop "github.com/relaysix/relaysix/protocol"
)

// Bridge is the per-EngineSession messaging transport.
type Bridge struct {
	session *eio.Session
	receive chan siop.Packet
}

func NewBridge(session *eio.Session) *Bridge {
	b := &Bridge{session: session, receive: make(chan siop.Packet, 256)}
	go b.pump()
	return b
}

// Send writes one messaging packet as a pre-encoded set of engine.io
// frames: the text frame first, then any binary attachments in order
// (spec.md §4.4, "Pre-encoding optimization" — Frames may be computed
// once by the caller and reused across many Sends via SendFrames).
func (b *Bridge) Send(pac siop.Packet) error {
	return b.SendFrames(Encode(pac))
}

// Frames is a packet pre-encoded into engine.io payloads: one text
// frame plus its binary attachments, computed once and replayed to
// every broadcast target without re-encoding (spec.md §4.4).
type Frames struct {
	Text        string
	Attachments [][]byte
}

func Encode(pac siop.Packet) Frames {
	return Frames{Text: siop.EncodeFrame(pac), Attachments: pac.Attachments}
}

// SendFrames writes a pre-encoded Frames value to this session.
func (b *Bridge) SendFrames(f Frames) error {
	if err := b.session.Write(eiop.Packet{T: eiop.MessagePacket, Data: []byte(f.Text)}); err != nil {
		return err
	}
	for _, a := range f.Attachments {
		if err := b.session.Write(eiop.Packet{T: eiop.MessagePacket, IsBinary: true, Binary: a}); err != nil {
			return err
		}
	}
	return nil
}

// Receive returns the stream of fully reassembled messaging packets.
func (b *Bridge) Receive() <-chan siop.Packet { return b.receive }

// Writable reports whether the underlying transport can accept a write
// right now, used by volatile broadcasts (spec.md §4.4).
func (b *Bridge) Writable() bool { return b.session.Transport().Writable() }

func (b *Bridge) pump() {
	defer close(b.receive)

	var dec siop.Decoder
	for msg := range b.session.Messages() {
		pac, complete, err := dec.Feed(msg.IsBinary, dataOf(msg))
		if err != nil {
			b.session.Close("parse error")
			return
		}
		if complete {
			b.receive <- pac
		}
	}
}

func dataOf(p eiop.Packet) []byte {
	if p.IsBinary {
		return p.Binary
	}
	return p.Data
}

// Package session provides socket ids: the identity of a NamespaceSocket,
// distinct from the underlying engine.io SessionID it rides on.
package session

import (
	"crypto/rand"
	"encoding/base64"
)

// ID is a socket id. For the default namespace it equals the engine.io
// session id; for every other namespace it is freshly generated at
// CONNECT time (spec.md §3, NamespaceSocket).
type ID string

func (id ID) String() string { return string(id) }

// Room returns the name of the room a socket auto-joins on connect: a
// room named by its own id (spec.md §3 invariant 2).
func (id ID) Room() string { return string(id) }

// GenerateID returns a fresh, URL-safe, globally unique socket id.
var GenerateID = func() ID {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return ID("sio:" + base64.RawURLEncoding.EncodeToString(b))
}

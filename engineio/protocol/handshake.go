package protocol

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handshake is the JSON body of the OPEN packet sent at the start of
// every session (spec.md §6, "Handshake response").
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // milliseconds
	PingTimeout  int      `json:"pingTimeout"`  // milliseconds
	MaxPayload   int      `json:"maxPayload"`
}

func (h Handshake) Marshal() ([]byte, error) { return json.Marshal(h) }

func UnmarshalHandshake(b []byte) (Handshake, error) {
	var h Handshake
	err := json.Unmarshal(b, &h)
	return h, err
}

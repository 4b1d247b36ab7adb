package protocol

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// MessageKind defines type of message
type MessageKind string

const (
	MessageKindEvent  MessageKind = "event"
	MessageKindStatus MessageKind = "status"
)

// Action defines action within a message kind
type Action string

const (
	ActionPosted Action = "posted"
	ActionError  Action = "error"
	ActionVoted  Action = "voted"
	ActionEcho   Action = "echo"
)

// Message represents a protocol message
type Message struct {
	Kind   MessageKind `json:"kind"`
	Action Action      `json:"action,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Payload is an opaque JSON document forwarded as received.
type Payload json.RawMessage

// Get looks up a gjson path in the payload.
func (p Payload) Get(path string) gjson.Result {
	return gjson.GetBytes(p, path)
}

// Valid reports whether the payload is well-formed JSON.
func (p Payload) Valid() bool {
	return gjson.ValidBytes(p)
}

// MarshalJSON emits the payload verbatim.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// UnmarshalJSON stores a copy of data.
func (p *Payload) UnmarshalJSON(data []byte) error {
	*p = append((*p)[0:0], data...)
	return nil
}

// StatusInfo describes the autoposter and webhook state for status reporting.
type StatusInfo struct {
	Autopost string `json:"autopost"`
	Attempts int    `json:"attempts"`
	LastPost string `json:"last_post,omitempty"`
	LastFail string `json:"last_error,omitempty"`
	Webhook  string `json:"webhook,omitempty"`
}

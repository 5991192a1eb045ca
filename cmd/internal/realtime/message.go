package realtime

import (
	"encoding/json"
	"errors"
	"time"

	"workfolio/cmd/internal/events"
	"workfolio/cmd/internal/ids"
)

// Version is the wire version of Message.
const Version = 1

// Message types.
const (
	TypeHello      = "hello"
	TypeHelloAck   = "hello.ack"
	TypeError      = "error"
	TypeRenewed    = events.CredentialsRenewed
	TypeTerminated = events.SessionTerminated
)

// Message is the only frame exchanged on the auth events socket.
type Message struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HelloAckPayload answers a client hello.
type HelloAckPayload struct {
	SessionID string `json:"session_id"`
	Namespace string `json:"namespace"`
}

// ErrorPayload reports a rejected client frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validate checks the fields every inbound frame must carry.
func (m Message) Validate() error {
	if m.V != Version {
		return errors.New("unsupported version")
	}
	if m.Type == "" {
		return errors.New("missing type")
	}
	return nil
}

func newMessage(typ string, payload any, ts time.Time) Message {
	m := Message{
		V:    Version,
		Type: typ,
		ID:   ids.NewOrEmpty(ts),
		TS:   ts,
	}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			m.Payload = b
		}
	}
	return m
}

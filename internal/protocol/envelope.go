// Package protocol defines the websocket wire contract between the client
// and the chat server: the {type, payload} envelope, the closed set of
// inbound event variants and the outbound commands.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var ErrMalformedFrame = errors.New("malformed frame")

// EventType is the envelope discriminant.
type EventType string

// Envelope wraps every frame exchanged over the transport.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ParseEnvelope validates a raw frame and splits it into its discriminant
// and undecoded payload.
func ParseEnvelope(data []byte) (Envelope, error) {
	if !gjson.ValidBytes(data) {
		return Envelope{}, fmt.Errorf("%w: invalid json", ErrMalformedFrame)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Envelope{}, fmt.Errorf("%w: not an object", ErrMalformedFrame)
	}
	typ := root.Get("type")
	if typ.Type != gjson.String || typ.Str == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	env := Envelope{Type: EventType(typ.Str)}
	if payload := root.Get("payload"); payload.Exists() {
		env.Payload = json.RawMessage(payload.Raw)
	}
	return env, nil
}

// EncodeCommand serializes an outbound command as an envelope.
func EncodeCommand(cmd Command) ([]byte, error) {
	payload, err := json.Marshal(commandPayload{ChatID: cmd.ChatID})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: EventType(cmd.Kind), Payload: payload})
}

// ABOUTME: Wire format for relay frames: a type-tagged JSON envelope.
// ABOUTME: Stateless encode/decode; malformed inbound frames are non-fatal.

package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope types the relay server is known to emit. The set is open: the
// dispatcher forwards unrecognized types untouched, subscribers decide.
const (
	TypePing      = "ping"
	TypePong      = "pong"
	TypeConnected = "connected"
	TypeWebhook   = "webhook"
	TypeLog       = "log"
)

// ErrMissingType is returned when a frame parses as JSON but carries no
// usable "type" discriminator.
var ErrMissingType = errors.New("envelope missing type")

// Envelope is the unit of application data exchanged over the relay channel.
// The Type field routes the message; Payload is opaque to this layer.
// Envelopes are immutable once constructed.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds an outbound envelope, marshaling payload immediately so
// a non-serializable payload fails here, synchronously, not later in Send.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	if typ == "" {
		return Envelope{}, ErrMissingType
	}
	if payload == nil {
		return Envelope{Type: typ}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshaling %s payload: %w", typ, err)
	}
	return Envelope{Type: typ, Payload: raw}, nil
}

// decodeEnvelope parses a raw inbound frame. Failures are the caller's cue to
// drop the frame and log; the connection itself is unaffected.
func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("parsing frame: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// encodeEnvelope serializes an envelope for the transport.
func encodeEnvelope(env Envelope) ([]byte, error) {
	if env.Type == "" {
		return nil, ErrMissingType
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", env.Type, err)
	}
	return raw, nil
}

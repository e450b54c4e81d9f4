// Package protocol defines the wire envelope, the closed set of inbound
// events and the outbound requests exchanged with the quiz channel.
package protocol

import (
	"encoding/json"
	"fmt"

	"livequiz/internal/domain"
)

// FrameAck is the envelope type the channel uses to answer a request.
const FrameAck = "ack"

// Frame is the envelope every message travels in. Requests carry an ID that
// the matching ack frame echoes back.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewFrame marshals payload into a frame of the given type.
func NewFrame(typ, id string, payload any) (Frame, error) {
	f := Frame{Type: typ, ID: id}
	if payload == nil {
		return f, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	f.Payload = raw
	return f, nil
}

// Ack is the single reply to a request.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ParseAck decodes an ack payload while keeping the raw body for typed decoding.
func ParseAck(raw json.RawMessage) (Ack, error) {
	var ack Ack
	if len(raw) == 0 {
		return ack, fmt.Errorf("empty ack payload")
	}
	if err := json.Unmarshal(raw, &ack); err != nil {
		return ack, err
	}
	ack.Raw = raw
	return ack, nil
}

// Decode unmarshals the full ack body into v.
func (a Ack) Decode(v any) error {
	if len(a.Raw) == 0 {
		return nil
	}
	return json.Unmarshal(a.Raw, v)
}

// Err converts a failed ack into a CommandRejected.
func (a Ack) Err(command RequestType) error {
	if a.Success {
		return nil
	}
	return &domain.CommandRejected{Command: string(command), Reason: a.Message}
}

// LinkStatus is the connection state reported by the transport.
type LinkStatus int

const (
	LinkConnecting LinkStatus = iota
	LinkConnected
	LinkReconnecting
	LinkDisconnected
)

func (s LinkStatus) String() string {
	switch s {
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkReconnecting:
		return "reconnecting"
	case LinkDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("LinkStatus(%d)", int(s))
	}
}

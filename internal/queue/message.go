package queue

import (
	"encoding/json"
	"errors"
	"strings"
)

// CurrentVersion is the envelope version written by Send.
const CurrentVersion = 1

// Message is the envelope sent to downstream queue consumers. Payload is
// decoded by the consumer registered for Kind. GroupKey orders messages on
// FIFO queues.
type Message struct {
	Kind       string          `json:"kind"`
	ID         string          `json:"id"`
	EnqueuedAt string          `json:"enqueuedAt"`
	Version    int             `json:"version"`
	GroupKey   string          `json:"groupKey,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// ErrMissingKind is returned when an envelope carries no kind.
var ErrMissingKind = errors.New("queue message kind is required")

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	if strings.TrimSpace(msg.Kind) == "" {
		return nil, ErrMissingKind
	}
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Broadcast is the recipient marker that addresses a message to every
// registered participant instead of a single one.
const Broadcast = "*"

// Message is the unit of communication on the bus. Messages are ephemeral:
// created by a sender, routed, and discarded after delivery.
type Message struct {
	// ID is a unique identifier for this message, automatically generated.
	ID string

	// Kind tags the message for subscription filtering
	// (e.g., "data.collected", "request.completed").
	Kind string

	// Sender is the registered name of the originating participant.
	Sender string

	// Recipient is the registered name of the target participant, or
	// Broadcast to address everyone.
	Recipient string

	// Payload contains the message data as a JSON string.
	// Use UnmarshalPayload to deserialize into a specific type.
	Payload string

	// SentAt is when the message was created.
	SentAt time.Time
}

// NewMessage creates a message from sender to recipient with the given kind.
// The payload is serialized to JSON; an ID and timestamp are generated.
func NewMessage(kind, sender, recipient string, payload any) *Message {
	payloadJSON, _ := json.Marshal(payload)
	return &Message{
		ID:        uuid.New().String(),
		Kind:      kind,
		Sender:    sender,
		Recipient: recipient,
		Payload:   string(payloadJSON),
		SentAt:    time.Now().UTC(),
	}
}

// NewBroadcast creates a message addressed to every registered participant.
func NewBroadcast(kind, sender string, payload any) *Message {
	return NewMessage(kind, sender, Broadcast, payload)
}

// UnmarshalPayload deserializes the message payload into the provided value.
// The value should be a pointer to the desired type.
func (m *Message) UnmarshalPayload(v any) error {
	if m.Payload == "" {
		return fmt.Errorf("message payload is empty")
	}
	return json.Unmarshal([]byte(m.Payload), v)
}

// Clone creates a copy of the message. The bus clones before handing a
// broadcast to multiple recipients so subscribers never share storage.
func (m *Message) Clone() *Message {
	clone := *m
	return &clone
}

// String returns a short representation for debugging.
func (m *Message) String() string {
	return fmt.Sprintf("Message{ID:%s, Kind:%s, %s->%s}", m.ID, m.Kind, m.Sender, m.Recipient)
}

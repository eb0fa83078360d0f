package domain

import "github.com/google/uuid"

// Direction classifies a message relative to the session viewing it
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Sender identifies the author of a chat message
type Sender struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ChatMessage is one entry in a session's transcript. Messages are
// immutable once created and appended to an ordered per-session sequence;
// they are never deleted. IDs are locally generated and collision-tolerant,
// not globally unique.
type ChatMessage struct {
	ID            string    `json:"id"`
	Sender        Sender    `json:"sender"`
	FromAssistant bool      `json:"fromAssistant"`
	Body          string    `json:"message"`
	Direction     Direction `json:"direction,omitempty"`
}

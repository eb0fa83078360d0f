package domain

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Session is one authenticated participant's runtime context within a
// room. It is created by the gateway on a successful handshake and
// destroyed on disconnect; a session belongs to exactly one room for its
// whole lifetime.
type Session struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	UserName string    `json:"user_name"`
	RoomID   string    `json:"room_id"`

	seq atomic.Uint64
}

// NewSession creates a session bound to a single room
func NewSession(userID uuid.UUID, userName, roomID string) *Session {
	return &Session{
		ID:       uuid.New(),
		UserID:   userID,
		UserName: userName,
		RoomID:   roomID,
	}
}

// NextMessageID returns the next message identifier for this session:
// a per-session monotonic counter combined with the session's stable
// identifier. Unique without relying on timing-based randomness.
func (s *Session) NextMessageID() string {
	return fmt.Sprintf("%d-%s", s.seq.Add(1), s.ID)
}

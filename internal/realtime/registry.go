// Package realtime is the collaborative session engine's front door:
// authenticated admission into per-project rooms, ordered fan-out of
// events to room members, and the websocket transport binding both to
// connected clients.
package realtime

import (
	"sync"

	"github.com/devroom-sh/devroom/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	roomQueueSize  = 256
	memberSendSize = 64
)

// Registry owns every room. It is constructed at service start and
// closed at service stop; rooms come and go with their members.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	closed bool
	logger zerolog.Logger
}

// NewRegistry creates an empty room registry
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Room is the set of sessions currently associated with one project.
// One goroutine drains the room's event queue, which is what gives a
// single sender FIFO delivery to every member.
type Room struct {
	ID string

	mu      sync.Mutex
	members map[uuid.UUID]*Member

	events chan envelope
	done   chan struct{}
	logger zerolog.Logger
}

type envelope struct {
	payload []byte
	exclude uuid.UUID
}

// Member is one session's membership in a room. The registry holds only
// this weak handle; the session itself is owned by the gateway/transport.
// References to a member routinely outlive its room membership (sandbox
// notify closures keep delivering after a disconnect), so delivery and
// close are serialized under the member's own lock.
type Member struct {
	Session *domain.Session

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// Send is the member's outbound event stream; closed when the member
// leaves or the registry shuts down.
func (m *Member) Send() <-chan []byte {
	return m.send
}

// Deliver queues a payload for this member only. Delivery is
// at-most-once: a full buffer drops the payload and reports false, as
// does delivery to a member that has already left.
func (m *Member) Deliver(payload []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	select {
	case m.send <- payload:
		return true
	default:
		return false
	}
}

func (m *Member) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.send)
}

// Join adds the session to its project's room, creating the room on
// first join. Returns nil after the registry has been closed.
func (r *Registry) Join(session *domain.Session) *Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	room, ok := r.rooms[session.RoomID]
	if !ok {
		room = &Room{
			ID:      session.RoomID,
			members: make(map[uuid.UUID]*Member),
			events:  make(chan envelope, roomQueueSize),
			done:    make(chan struct{}),
			logger:  r.logger.With().Str("room", session.RoomID).Logger(),
		}
		r.rooms[session.RoomID] = room
		go room.drain()
	}

	member := &Member{Session: session, send: make(chan []byte, memberSendSize)}

	room.mu.Lock()
	room.members[session.ID] = member
	room.mu.Unlock()

	room.logger.Info().Str("session", session.ID.String()).
		Str("user", session.UserName).Msg("session joined room")
	return member
}

// Leave removes the session from its room and closes its member handle.
// An empty room is torn down.
func (r *Registry) Leave(session *domain.Session) {
	r.mu.Lock()
	room, ok := r.rooms[session.RoomID]
	if !ok {
		r.mu.Unlock()
		return
	}

	room.mu.Lock()
	member, present := room.members[session.ID]
	delete(room.members, session.ID)
	empty := len(room.members) == 0
	room.mu.Unlock()

	if empty {
		delete(r.rooms, session.RoomID)
		close(room.done)
	}
	r.mu.Unlock()

	if present {
		member.close()
		room.logger.Info().Str("session", session.ID.String()).Msg("session left room")
	}
}

// Publish queues a payload for every member of the room except the
// excluded session. Publishes from one sender are delivered to all
// members in publish order; nothing is promised across senders. There
// is no persistence: members not currently joined never see it.
func (r *Registry) Publish(roomID string, payload []byte, exclude uuid.UUID) bool {
	r.mu.Lock()
	room, ok := r.rooms[roomID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case room.events <- envelope{payload: payload, exclude: exclude}:
		return true
	case <-room.done:
		return false
	}
}

// Broadcast queues a payload for every member of the room
func (r *Registry) Broadcast(roomID string, payload []byte) bool {
	return r.Publish(roomID, payload, uuid.Nil)
}

// RoomSize reports how many sessions are currently in a room
func (r *Registry) RoomSize(roomID string) int {
	r.mu.Lock()
	room, ok := r.rooms[roomID]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.members)
}

// Close tears down every room and member handle
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	for id, room := range r.rooms {
		close(room.done)
		room.mu.Lock()
		for _, member := range room.members {
			member.close()
		}
		room.members = make(map[uuid.UUID]*Member)
		room.mu.Unlock()
		delete(r.rooms, id)
	}
}

func (room *Room) drain() {
	for {
		select {
		case env := <-room.events:
			room.deliver(env)
		case <-room.done:
			return
		}
	}
}

func (room *Room) deliver(env envelope) {
	room.mu.Lock()
	members := make([]*Member, 0, len(room.members))
	for _, m := range room.members {
		if m.Session.ID != env.exclude {
			members = append(members, m)
		}
	}
	room.mu.Unlock()

	for _, m := range members {
		if !m.Deliver(env.payload) {
			room.logger.Warn().Str("session", m.Session.ID.String()).
				Msg("member buffer full, dropping event")
		}
	}
}

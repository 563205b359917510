package session

import (
	"sort"
	"sync"

	"skillswap-realtime/internal/models"
)

// Rooms manages conversation-scoped event routing. Join and Leave are
// idempotent and connection-gated: while disconnected they no-op. Joined
// rooms survive a transport drop and are re-announced on reconnect.
type Rooms struct {
	mu     sync.Mutex
	joined map[string]bool

	// active is the room held by the current Enter scope; a view shows at
	// most one conversation at a time.
	active string

	connected func() bool
	emit      func(eventType, conversationId string)
}

func newRooms(connected func() bool, emit func(eventType, conversationId string)) *Rooms {
	return &Rooms{
		joined:    make(map[string]bool),
		connected: connected,
		emit:      emit,
	}
}

func (r *Rooms) Join(conversationId string) {
	if conversationId == "" || !r.connected() {
		return
	}

	r.mu.Lock()
	already := r.joined[conversationId]
	if !already {
		r.joined[conversationId] = true
	}
	r.mu.Unlock()

	if !already {
		r.emit(models.EventRoomJoin, conversationId)
	}
}

func (r *Rooms) Leave(conversationId string) {
	r.mu.Lock()
	wasJoined := r.joined[conversationId]
	delete(r.joined, conversationId)
	if r.active == conversationId {
		r.active = ""
	}
	r.mu.Unlock()

	if wasJoined && r.connected() {
		r.emit(models.EventRoomLeave, conversationId)
	}
}

// Enter is the scoped acquisition used by the chat view: it leaves the
// previously entered room, joins the new one, and returns a release func
// for the consumer's exit path. Switching rooms through Enter guarantees
// the old room is left before the new one is joined.
func (r *Rooms) Enter(conversationId string) (release func()) {
	r.mu.Lock()
	previous := r.active
	r.mu.Unlock()

	if previous != "" && previous != conversationId {
		r.Leave(previous)
	}

	r.Join(conversationId)

	r.mu.Lock()
	r.active = conversationId
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		still := r.active == conversationId
		r.mu.Unlock()
		if still {
			r.Leave(conversationId)
		}
	}
}

func (r *Rooms) Joined() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.joined))
	for id := range r.joined {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// rejoin re-announces every held room after a reconnect.
func (r *Rooms) rejoin() {
	for _, id := range r.Joined() {
		r.emit(models.EventRoomJoin, id)
	}
}

package ws

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"skillswap-realtime/internal/models"
	"skillswap-realtime/internal/store"
)

// Publisher defines the redis surface the hub needs: event fanout plus the
// authoritative unread counters.
type Publisher interface {
	PublishMessageCreated(conversationId string, message interface{}) error
	PublishMessageRead(conversationId, messageId, readerId string) error
	PublishMessageDelivered(conversationId, messageId, recipientId string) error
	PublishTyping(conversationId, userId, userName string, isTyping bool) error
	PublishPresenceOnline(userId string) error
	PublishPresenceOffline(userId string) error
	PublishUnreadDelta(userId string, delta models.UnreadDeltaData) error
	IncrConversationUnread(userId, conversationId string) error
	ResetConversationUnread(userId, conversationId string) error
	UnreadSnapshot(userId string) (models.UnreadSnapshotData, error)
}

// Hub maintains active WebSocket connections, their room memberships, and
// fans redis events out to them.
type Hub struct {
	// connections per user id; a user may hold several (one per tab)
	users map[string]map[*Client]bool

	// conversation id -> clients joined to the room
	rooms map[string]map[*Client]bool

	mu sync.RWMutex

	register   chan *Client
	unregister chan *Client

	// Broadcast receives events from the redis fanout (exported for the
	// pubsub bridge).
	Broadcast chan *models.BroadcastMessage

	publisher Publisher
	store     *store.Store
}

func NewHub(publisher Publisher, store *store.Store) *Hub {
	return &Hub{
		users:      make(map[string]map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		Broadcast:  make(chan *models.BroadcastMessage),
		publisher:  publisher,
		store:      store,
	}
}

func (h *Hub) Run() {
	slog.Info("[HUB] Starting hub event loop")
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.Broadcast:
			h.broadcast(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()

	if h.users[client.userId] == nil {
		h.users[client.userId] = make(map[*Client]bool)
	}
	h.users[client.userId][client] = true
	firstConnection := len(h.users[client.userId]) == 1

	online := make([]string, 0, len(h.users))
	for userId := range h.users {
		online = append(online, userId)
	}
	sort.Strings(online)

	h.mu.Unlock()

	slog.Info("[HUB] Client registered", "user", client.userId, "userName", client.userName)

	// The newcomer gets the full presence picture before any deltas.
	h.sendEvent(client, models.Event{
		Type:      models.EventPresenceSnapshot,
		Timestamp: time.Now().Unix(),
		Data:      models.PresenceSnapshotData{Online: online},
	})

	if snapshot, err := h.publisher.UnreadSnapshot(client.userId); err != nil {
		slog.Error("[HUB] Failed to load unread snapshot", "user", client.userId, "error", err)
	} else {
		h.sendEvent(client, models.Event{
			Type:      models.EventUnreadSnapshot,
			Timestamp: time.Now().Unix(),
			Data:      snapshot,
		})
	}

	if firstConnection {
		if err := h.publisher.PublishPresenceOnline(client.userId); err != nil {
			slog.Error("[HUB] Failed to publish presence online", "user", client.userId, "error", err)
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()

	clients, ok := h.users[client.userId]
	if !ok || !clients[client] {
		h.mu.Unlock()
		slog.Warn("[HUB] Attempted to unregister unknown client", "user", client.userId)
		return
	}

	delete(clients, client)
	close(client.send)
	lastConnection := len(clients) == 0
	if lastConnection {
		delete(h.users, client.userId)
	}

	for conversationId, members := range h.rooms {
		if members[client] {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, conversationId)
			}
		}
	}

	h.mu.Unlock()

	slog.Info("[HUB] Client unregistered", "user", client.userId)

	if lastConnection {
		if err := h.publisher.PublishPresenceOffline(client.userId); err != nil {
			slog.Error("[HUB] Failed to publish presence offline", "user", client.userId, "error", err)
		}
	}
}

// JoinRoom subscribes a connection to a conversation's events. Idempotent;
// joining a conversation the user does not belong to is refused.
func (h *Hub) JoinRoom(client *Client, conversationId string) {
	if conversationId == "" {
		return
	}

	if _, exists := h.store.Conversation(conversationId); exists {
		if !h.store.IsParticipant(conversationId, client.userId) {
			slog.Warn("[HUB] Join refused, not a participant", "user", client.userId, "conversation", conversationId)
			return
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[conversationId] == nil {
		h.rooms[conversationId] = make(map[*Client]bool)
	}
	h.rooms[conversationId][client] = true
}

// LeaveRoom unsubscribes a connection from a conversation. Idempotent.
func (h *Hub) LeaveRoom(client *Client, conversationId string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[conversationId]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, conversationId)
		}
	}
}

func (h *Hub) broadcast(message *models.BroadcastMessage) {
	h.mu.RLock()
	targets := []*Client{}
	switch {
	case message.ConversationId != "":
		for client := range h.rooms[message.ConversationId] {
			targets = append(targets, client)
		}
	case message.UserId == "*":
		for _, clients := range h.users {
			for client := range clients {
				targets = append(targets, client)
			}
		}
	default:
		for client := range h.users[message.UserId] {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.send <- message.Payload:
		default:
			// Client buffer full, disconnect
			slog.Warn("[HUB] Client buffer full, dropping connection", "user", client.userId)
			h.drop(client)
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.users[client.userId]; ok && clients[client] {
		delete(clients, client)
		close(client.send)
		if len(clients) == 0 {
			delete(h.users, client.userId)
		}
	}
	for conversationId, members := range h.rooms {
		if members[client] {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, conversationId)
			}
		}
	}
}

func (h *Hub) sendEvent(client *Client, event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("[HUB] Failed to marshal event", "type", event.Type, "error", err)
		return
	}
	select {
	case client.send <- payload:
	default:
		slog.Warn("[HUB] Client buffer full on direct send", "user", client.userId, "type", event.Type)
	}
}

// hasConnection reports whether a user holds at least one live connection
// on this instance.
func (h *Hub) hasConnection(userId string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userId]) > 0
}

// OnlineUsers returns the ids of users with at least one live connection.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.users))
	for userId := range h.users {
		users = append(users, userId)
	}
	sort.Strings(users)
	return users
}

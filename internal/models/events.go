package models

// Event type vocabulary shared by the gateway and the session adapter.
// Outgoing (client -> gateway) and incoming (gateway -> client) types use
// the same "subject:verb" scheme.
const (
	// Outgoing
	EventIdentityAnnounce = "identity:announce"
	EventRoomJoin         = "room:join"
	EventRoomLeave        = "room:leave"
	EventMessageSend      = "message:send"
	EventMessageRead      = "message:read"
	EventConversationRead = "conversation:read"

	// Both directions
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"

	// Incoming
	EventMessageCreated      = "message:created"
	EventMessageDelivered    = "message:delivered"
	EventPresenceSnapshot    = "presence:snapshot"
	EventPresenceOnline      = "presence:online"
	EventPresenceOffline     = "presence:offline"
	EventNotificationCreated = "notification:created"
	EventUnreadSnapshot      = "unread:snapshot"
	EventUnreadDelta         = "unread:delta"
)

type Event struct {
	Type           string      `json:"type"`
	ConversationId string      `json:"conversationId,omitempty"`
	Timestamp      int64       `json:"timestamp"`
	Data           interface{} `json:"data,omitempty"`
}

// BroadcastMessage carries a raw event payload from the redis fanout to the
// hub, scoped either to a conversation room or to a single user.
type BroadcastMessage struct {
	ConversationId string
	UserId         string
	Payload        []byte
}

// Specific event data structures

type IdentityData struct {
	UserId   string `json:"userId"`
	UserName string `json:"userName"`
	Avatar   string `json:"avatar,omitempty"`
}

type TypingData struct {
	UserId   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

type PresenceData struct {
	UserId string `json:"userId"`
}

type PresenceSnapshotData struct {
	Online []string `json:"online"`
}

type MessageSendData struct {
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
	Kind     string `json:"kind"`
}

type ReadReceiptData struct {
	MessageId string `json:"messageId,omitempty"`
	ReaderId  string `json:"readerId"`
}

// UnreadSnapshotData is the authoritative counter set pushed on connect and
// served by the REST snapshot endpoint.
type UnreadSnapshotData struct {
	Conversations map[string]int `json:"conversations"`
	Notifications int            `json:"notifications"`
}

// UnreadDeltaData is an incremental counter adjustment. Zero-value fields
// leave the corresponding counter untouched.
type UnreadDeltaData struct {
	ConversationId string `json:"conversationId,omitempty"`
	Conversations  int    `json:"conversations,omitempty"`
	Notifications  int    `json:"notifications,omitempty"`
}

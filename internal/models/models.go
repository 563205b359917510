package models

import "time"

// Message kinds.
const (
	MessageText   = "text"
	MessageImage  = "image"
	MessageFile   = "file"
	MessageSystem = "system"
)

// Notification priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Notification types.
const (
	NotificationMessage    = "message"
	NotificationBooking    = "booking"
	NotificationPayment    = "payment"
	NotificationCourse     = "course"
	NotificationAdminAlert = "admin_alert"
	NotificationSystem     = "system"
)

type Message struct {
	Id             string    `json:"id"`
	ConversationId string    `json:"conversationId"`
	Sender         string    `json:"sender"`
	Receiver       string    `json:"receiver"`
	Content        string    `json:"content"`
	Kind           string    `json:"type"`
	IsRead         bool      `json:"isRead"`
	IsDelivered    bool      `json:"isDelivered"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Conversation groups messages between two identities. Created server-side
// on first message exchange; clients only read and join.
type Conversation struct {
	Id           string    `json:"id"`
	Participants []string  `json:"participants"`
	LastMessage  *Message  `json:"lastMessage,omitempty"`
	UnreadCount  int       `json:"unreadCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Notification struct {
	Id        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Sender    string    `json:"sender,omitempty"`
	Kind      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	Priority  string    `json:"priority"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// Package store keeps conversations, messages, and notifications in memory.
// The gateway owns no durable state; redis holds the authoritative unread
// counters and everything else is rebuilt by clients on refetch.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"skillswap-realtime/internal/models"
)

type Store struct {
	mu sync.RWMutex

	// conversation id -> conversation
	conversations map[string]*models.Conversation

	// participant pair key -> conversation id
	pairs map[string]string

	// conversation id -> messages, oldest first
	messages map[string][]models.Message

	// recipient id -> notifications, oldest first
	notifications map[string][]models.Notification
}

func New() *Store {
	return &Store{
		conversations: make(map[string]*models.Conversation),
		pairs:         make(map[string]string),
		messages:      make(map[string][]models.Message),
		notifications: make(map[string][]models.Notification),
	}
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// AppendMessage stores a message, creating the conversation between the two
// identities on first exchange.
func (s *Store) AppendMessage(sender, receiver, content, kind string) (models.Message, models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(sender, receiver)
	conversationId, ok := s.pairs[key]
	if !ok {
		conversationId = uuid.NewString()
		s.pairs[key] = conversationId
		s.conversations[conversationId] = &models.Conversation{
			Id:           conversationId,
			Participants: []string{sender, receiver},
		}
	}

	msg := models.Message{
		Id:             uuid.NewString(),
		ConversationId: conversationId,
		Sender:         sender,
		Receiver:       receiver,
		Content:        content,
		Kind:           kind,
		IsDelivered:    true,
		CreatedAt:      time.Now().UTC(),
	}
	s.messages[conversationId] = append(s.messages[conversationId], msg)

	conv := s.conversations[conversationId]
	conv.LastMessage = &msg
	conv.UpdatedAt = msg.CreatedAt

	return msg, *conv
}

func (s *Store) Conversation(id string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return models.Conversation{}, false
	}
	return *conv, true
}

// Conversations lists a user's conversations, most recently active first.
func (s *Store) Conversations(userId string) []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Conversation{}
	for _, conv := range s.conversations {
		for _, p := range conv.Participants {
			if p == userId {
				out = append(out, *conv)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// IsParticipant reports whether a user belongs to a conversation.
func (s *Store) IsParticipant(conversationId, userId string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationId]
	if !ok {
		return false
	}
	for _, p := range conv.Participants {
		if p == userId {
			return true
		}
	}
	return false
}

// Messages returns one page of a conversation's history, newest page first,
// messages within the page oldest first. Page numbering starts at 1.
func (s *Store) Messages(conversationId string, page, limit int) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	all := s.messages[conversationId]
	end := len(all) - (page-1)*limit
	if end <= 0 {
		return []models.Message{}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	out := make([]models.Message, end-start)
	copy(out, all[start:end])
	return out
}

// MarkMessageRead flips one message's read flag. Flipping is one-way.
func (s *Store) MarkMessageRead(conversationId, messageId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationId]
	for i := range msgs {
		if msgs[i].Id == messageId {
			if msgs[i].IsRead {
				return false
			}
			msgs[i].IsRead = true
			if conv := s.conversations[conversationId]; conv != nil && conv.LastMessage != nil && conv.LastMessage.Id == messageId {
				conv.LastMessage.IsRead = true
			}
			return true
		}
	}
	return false
}

// MarkConversationRead flips every unread message addressed to the reader
// and returns how many were flipped.
func (s *Store) MarkConversationRead(conversationId, readerId string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	flipped := 0
	msgs := s.messages[conversationId]
	for i := range msgs {
		if msgs[i].Receiver == readerId && !msgs[i].IsRead {
			msgs[i].IsRead = true
			flipped++
		}
	}
	if flipped > 0 {
		if conv := s.conversations[conversationId]; conv != nil && conv.LastMessage != nil && conv.LastMessage.Receiver == readerId {
			conv.LastMessage.IsRead = true
		}
	}
	return flipped
}

// AddNotification stores a notification, filling id, priority, and timestamp
// when absent.
func (s *Store) AddNotification(n models.Notification) models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.Id == "" {
		n.Id = uuid.NewString()
	}
	if n.Priority == "" {
		n.Priority = models.PriorityMedium
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notifications[n.Recipient] = append(s.notifications[n.Recipient], n)
	return n
}

// Notifications returns one page of a user's notifications, newest first.
func (s *Store) Notifications(userId string, page, limit int) []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	all := s.notifications[userId]
	out := []models.Notification{}
	skip := (page - 1) * limit
	for i := len(all) - 1 - skip; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out
}

// MarkNotificationRead flips one notification and reports whether it was
// unread.
func (s *Store) MarkNotificationRead(userId, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.notifications[userId]
	for i := range list {
		if list[i].Id == id {
			if list[i].IsRead {
				return false
			}
			list[i].IsRead = true
			return true
		}
	}
	return false
}

// MarkAllNotificationsRead flips every unread notification and returns how
// many were flipped.
func (s *Store) MarkAllNotificationsRead(userId string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	flipped := 0
	list := s.notifications[userId]
	for i := range list {
		if !list[i].IsRead {
			list[i].IsRead = true
			flipped++
		}
	}
	return flipped
}

// DeleteNotification removes a notification by id, reporting whether it
// existed and whether it was still unread.
func (s *Store) DeleteNotification(userId, id string) (wasUnread, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.notifications[userId]
	for i := range list {
		if list[i].Id == id {
			wasUnread = !list[i].IsRead
			s.notifications[userId] = append(list[:i:i], list[i+1:]...)
			return wasUnread, true
		}
	}
	return false, false
}

// ConversationWith returns the id of the conversation between two users, if
// one exists.
func (s *Store) ConversationWith(a, b string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.pairs[pairKey(a, b)]
	return id, ok
}

// OtherParticipant returns the peer of userId in a conversation.
func (s *Store) OtherParticipant(conversationId, userId string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationId]
	if !ok {
		return ""
	}
	for _, p := range conv.Participants {
		if p != userId {
			return p
		}
	}
	return ""
}

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"skillswap-realtime/internal/models"
	"skillswap-realtime/internal/store"
)

// Broker is the redis surface the REST layer needs: counters plus event
// fanout for writes that originate over HTTP.
type Broker interface {
	UnreadSnapshot(userId string) (models.UnreadSnapshotData, error)
	IncrConversationUnread(userId, conversationId string) error
	ResetConversationUnread(userId, conversationId string) error
	IncrNotificationUnread(userId string, delta int64) error
	ResetNotificationUnread(userId string) error
	PublishMessageCreated(conversationId string, message interface{}) error
	PublishNotification(notification models.Notification) error
	PublishUnreadDelta(userId string, delta models.UnreadDeltaData) error
}

type ChatHandler struct {
	Store  *store.Store
	Broker Broker
}

type SendMessageRequest struct {
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
	Kind     string `json:"type"`
}

// GetConversations lists the caller's conversations with authoritative
// unread counts merged in.
func (h *ChatHandler) GetConversations(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	conversations := h.Store.Conversations(claims.Subject)

	snapshot, err := h.Broker.UnreadSnapshot(claims.Subject)
	if err != nil {
		slog.Error("[API] Failed to load unread snapshot", "user", claims.Subject, "error", err)
	} else {
		for i := range conversations {
			conversations[i].UnreadCount = snapshot.Conversations[conversations[i].Id]
		}
	}

	writeJSON(w, http.StatusOK, conversations)
}

// GetMessages returns one page of a conversation's history.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	conversationId := mux.Vars(r)["id"]

	if !h.Store.IsParticipant(conversationId, claims.Subject) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	writeJSON(w, http.StatusOK, h.Store.Messages(conversationId, page, limit))
}

// SendMessage is the REST send path; the socket path mirrors it.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Receiver == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "receiver and content are required")
		return
	}
	if req.Kind == "" {
		req.Kind = models.MessageText
	}

	msg, _ := h.Store.AppendMessage(claims.Subject, req.Receiver, req.Content, req.Kind)

	if err := h.Broker.IncrConversationUnread(req.Receiver, msg.ConversationId); err != nil {
		slog.Error("[API] Failed to bump unread counter", "user", req.Receiver, "error", err)
	}
	if err := h.Broker.PublishMessageCreated(msg.ConversationId, msg); err != nil {
		slog.Error("[API] Failed to publish message:created", "conversation", msg.ConversationId, "error", err)
	}
	if err := h.Broker.PublishUnreadDelta(req.Receiver, models.UnreadDeltaData{
		ConversationId: msg.ConversationId,
		Conversations:  1,
	}); err != nil {
		slog.Error("[API] Failed to publish unread delta", "user", req.Receiver, "error", err)
	}

	writeJSON(w, http.StatusCreated, msg)
}

// MarkConversationRead flips every unread message addressed to the caller
// and resets the authoritative counter.
func (h *ChatHandler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	conversationId := mux.Vars(r)["id"]

	if !h.Store.IsParticipant(conversationId, claims.Subject) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	flipped := h.Store.MarkConversationRead(conversationId, claims.Subject)
	if err := h.Broker.ResetConversationUnread(claims.Subject, conversationId); err != nil {
		slog.Error("[API] Failed to reset unread counter", "user", claims.Subject, "error", err)
	}
	if flipped > 0 {
		if err := h.Broker.PublishUnreadDelta(claims.Subject, models.UnreadDeltaData{
			ConversationId: conversationId,
			Conversations:  -flipped,
		}); err != nil {
			slog.Error("[API] Failed to publish unread delta", "user", claims.Subject, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]int{"read": flipped})
}

// GetUnread serves the authoritative counter snapshot clients reconcile
// against.
func (h *ChatHandler) GetUnread(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	snapshot, err := h.Broker.UnreadSnapshot(claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load unread counts")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

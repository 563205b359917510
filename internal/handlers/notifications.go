package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"skillswap-realtime/internal/auth"
	"skillswap-realtime/internal/models"
	"skillswap-realtime/internal/store"
)

type NotificationHandler struct {
	Store  *store.Store
	Broker Broker
}

type CreateNotificationRequest struct {
	Recipient string `json:"recipient"`
	Kind      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Link      string `json:"link"`
	Priority  string `json:"priority"`
}

// GetNotifications returns one page of the caller's notifications, newest
// first.
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	writeJSON(w, http.StatusOK, h.Store.Notifications(claims.Subject, page, limit))
}

// CreateNotification lets admins and backend services push a notification
// to a user; it lands in the store, bumps the counter, and goes out over
// the socket fanout.
func (h *NotificationHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if !auth.HasPermission(claims.Role, "users:manage") {
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	var req CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Recipient == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "recipient and title are required")
		return
	}

	notification := h.Store.AddNotification(models.Notification{
		Recipient: req.Recipient,
		Sender:    claims.Subject,
		Kind:      req.Kind,
		Title:     req.Title,
		Message:   req.Message,
		Link:      req.Link,
		Priority:  req.Priority,
	})

	if err := h.Broker.IncrNotificationUnread(req.Recipient, 1); err != nil {
		slog.Error("[API] Failed to bump notification counter", "user", req.Recipient, "error", err)
	}
	// The created event is the only push for a new notification; connected
	// sessions count it from the event itself, so no unread delta goes out.
	if err := h.Broker.PublishNotification(notification); err != nil {
		slog.Error("[API] Failed to publish notification", "user", req.Recipient, "error", err)
	}

	writeJSON(w, http.StatusCreated, notification)
}

// MarkNotificationRead flips one notification. Flipping twice is a no-op,
// so the optimistic client path stays safe to repeat.
func (h *NotificationHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	id := mux.Vars(r)["id"]

	if h.Store.MarkNotificationRead(claims.Subject, id) {
		if err := h.Broker.IncrNotificationUnread(claims.Subject, -1); err != nil {
			slog.Error("[API] Failed to decrement notification counter", "user", claims.Subject, "error", err)
		}
		if err := h.Broker.PublishUnreadDelta(claims.Subject, models.UnreadDeltaData{Notifications: -1}); err != nil {
			slog.Error("[API] Failed to publish unread delta", "user", claims.Subject, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// MarkAllNotificationsRead zeroes the caller's notification counter.
// Idempotent.
func (h *NotificationHandler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)

	flipped := h.Store.MarkAllNotificationsRead(claims.Subject)
	if err := h.Broker.ResetNotificationUnread(claims.Subject); err != nil {
		slog.Error("[API] Failed to reset notification counter", "user", claims.Subject, "error", err)
	}
	if flipped > 0 {
		if err := h.Broker.PublishUnreadDelta(claims.Subject, models.UnreadDeltaData{Notifications: -flipped}); err != nil {
			slog.Error("[API] Failed to publish unread delta", "user", claims.Subject, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]int{"read": flipped})
}

// DeleteNotification removes a notification; deleting an unread one also
// decrements the counter, never below zero.
func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	id := mux.Vars(r)["id"]

	wasUnread, ok := h.Store.DeleteNotification(claims.Subject, id)
	if !ok {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}

	if wasUnread {
		if err := h.Broker.IncrNotificationUnread(claims.Subject, -1); err != nil {
			slog.Error("[API] Failed to decrement notification counter", "user", claims.Subject, "error", err)
		}
		if err := h.Broker.PublishUnreadDelta(claims.Subject, models.UnreadDeltaData{Notifications: -1}); err != nil {
			slog.Error("[API] Failed to publish unread delta", "user", claims.Subject, "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

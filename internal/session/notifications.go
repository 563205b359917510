package session

import (
	"context"
	"log/slog"
	"sync"

	"skillswap-realtime/internal/models"
)

// Backend is the REST surface the aggregator reconciles against and fires
// acknowledgements to. *api.Client satisfies it.
type Backend interface {
	UnreadCounts(ctx context.Context) (models.UnreadSnapshotData, error)
	Notifications(ctx context.Context, page, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
	MarkConversationRead(ctx context.Context, conversationId string) error
}

// Inbox is the unread/notification aggregator. Counters come from two
// channels: authoritative REST snapshots that overwrite, and push deltas
// applied between them. The counter is best-effort eventually consistent;
// a delta racing a snapshot that already reflects it may double-count
// until the next snapshot. Read transitions are one-way and local marks
// are optimistic fire-and-forget.
type Inbox struct {
	mu sync.Mutex

	// notifications, newest first, capped at maxKept
	notifications []models.Notification
	maxKept       int

	notifUnread int
	convUnread  map[string]int

	backend Backend
}

func newInbox(maxKept int, backend Backend) *Inbox {
	return &Inbox{
		maxKept:    maxKept,
		convUnread: make(map[string]int),
		backend:    backend,
	}
}

// handleNotification applies a pushed notification:created event.
func (in *Inbox) handleNotification(n models.Notification) {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.notifications = append([]models.Notification{n}, in.notifications...)
	if len(in.notifications) > in.maxKept {
		in.notifications = in.notifications[:in.maxKept]
	}
	if !n.IsRead {
		in.notifUnread++
	}
}

// handleSnapshot overwrites local counters with the authoritative values.
func (in *Inbox) handleSnapshot(snapshot models.UnreadSnapshotData) {
	in.mu.Lock()
	defer in.mu.Unlock()

	fresh := make(map[string]int, len(snapshot.Conversations))
	for id, n := range snapshot.Conversations {
		if n > 0 {
			fresh[id] = n
		}
	}
	in.convUnread = fresh

	if snapshot.Notifications < 0 {
		in.notifUnread = 0
	} else {
		in.notifUnread = snapshot.Notifications
	}
}

// handleDelta applies a pushed counter adjustment, flooring at zero.
func (in *Inbox) handleDelta(delta models.UnreadDeltaData) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if delta.ConversationId != "" && delta.Conversations != 0 {
		n := in.convUnread[delta.ConversationId] + delta.Conversations
		if n <= 0 {
			delete(in.convUnread, delta.ConversationId)
		} else {
			in.convUnread[delta.ConversationId] = n
		}
	}

	if delta.Notifications != 0 {
		in.notifUnread += delta.Notifications
		if in.notifUnread < 0 {
			in.notifUnread = 0
		}
	}
}

// Notifications returns a copy of the local list, newest first.
func (in *Inbox) Notifications() []models.Notification {
	in.mu.Lock()
	defer in.mu.Unlock()

	out := make([]models.Notification, len(in.notifications))
	copy(out, in.notifications)
	return out
}

func (in *Inbox) NotificationUnread() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.notifUnread
}

func (in *Inbox) ConversationUnread(conversationId string) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.convUnread[conversationId]
}

// TotalUnread sums unread counts across conversations.
func (in *Inbox) TotalUnread() int {
	in.mu.Lock()
	defer in.mu.Unlock()

	total := 0
	for _, n := range in.convUnread {
		total += n
	}
	return total
}

// MarkRead optimistically flips one notification and fires the
// acknowledgement to the server. The server call is fire-and-forget: a
// failure leaves the optimistic state in place and the next authoritative
// fetch corrects it.
func (in *Inbox) MarkRead(ctx context.Context, id string) {
	in.mu.Lock()
	for i := range in.notifications {
		if in.notifications[i].Id == id {
			if !in.notifications[i].IsRead {
				in.notifications[i].IsRead = true
				in.notifUnread--
				if in.notifUnread < 0 {
					in.notifUnread = 0
				}
			}
			break
		}
	}
	in.mu.Unlock()

	if in.backend != nil {
		if err := in.backend.MarkNotificationRead(ctx, id); err != nil {
			slog.Warn("[INBOX] Failed to acknowledge notification read", "id", id, "error", err)
		}
	}
}

// MarkAllRead zeroes the notification counter. Idempotent.
func (in *Inbox) MarkAllRead(ctx context.Context) {
	in.mu.Lock()
	for i := range in.notifications {
		in.notifications[i].IsRead = true
	}
	in.notifUnread = 0
	in.mu.Unlock()

	if in.backend != nil {
		if err := in.backend.MarkAllNotificationsRead(ctx); err != nil {
			slog.Warn("[INBOX] Failed to acknowledge mark-all-read", "error", err)
		}
	}
}

// Delete removes a notification; deleting an unread one decrements the
// counter by exactly one, never below zero.
func (in *Inbox) Delete(ctx context.Context, id string) {
	in.mu.Lock()
	for i := range in.notifications {
		if in.notifications[i].Id == id {
			if !in.notifications[i].IsRead {
				in.notifUnread--
				if in.notifUnread < 0 {
					in.notifUnread = 0
				}
			}
			in.notifications = append(in.notifications[:i:i], in.notifications[i+1:]...)
			break
		}
	}
	in.mu.Unlock()

	if in.backend != nil {
		if err := in.backend.DeleteNotification(ctx, id); err != nil {
			slog.Warn("[INBOX] Failed to delete notification on server", "id", id, "error", err)
		}
	}
}

// markConversationRead zeroes a conversation's local counter and fires the
// REST acknowledgement; the session emits the socket half.
func (in *Inbox) markConversationRead(conversationId string) {
	in.mu.Lock()
	delete(in.convUnread, conversationId)
	in.mu.Unlock()

	if in.backend != nil {
		if err := in.backend.MarkConversationRead(context.Background(), conversationId); err != nil {
			slog.Warn("[INBOX] Failed to acknowledge conversation read", "conversation", conversationId, "error", err)
		}
	}
}

// Refresh pulls the authoritative snapshot and the latest notifications,
// replacing local state wholesale. Errors are returned for the UI toast;
// local state is left untouched on failure.
func (in *Inbox) Refresh(ctx context.Context) error {
	if in.backend == nil {
		return nil
	}

	snapshot, err := in.backend.UnreadCounts(ctx)
	if err != nil {
		return err
	}

	latest, err := in.backend.Notifications(ctx, 1, in.maxKept)
	if err != nil {
		return err
	}

	in.handleSnapshot(snapshot)

	in.mu.Lock()
	in.notifications = latest
	in.mu.Unlock()

	return nil
}

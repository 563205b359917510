package redis

import (
	"log/slog"
	"strings"

	"github.com/goccy/go-json"

	"skillswap-realtime/internal/models"
	"skillswap-realtime/internal/ws"
)

// SubscribeToEvents bridges the redis fanout into the hub. Conversation
// channels reach every connection joined to the room; user channels reach
// every connection owned by the identity ("*" reaches everyone).
func SubscribeToEvents(client *Client, hub *ws.Hub) {
	slog.Info("[REDIS] Starting Redis pub/sub subscription...")

	pubsub := client.rdb.PSubscribe(client.ctx, "conversation:*", "user:*")
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(client.ctx); err != nil {
		slog.Error("[REDIS] Failed to receive subscription confirmation", "error", err)
		return
	}

	slog.Info("[REDIS] Subscription confirmed, listening for messages...")

	ch := pubsub.Channel()

	for msg := range ch {
		var event models.Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			slog.Error("[REDIS] Error unmarshaling event", "channel", msg.Channel, "error", err)
			continue
		}

		broadcastMsg := &models.BroadcastMessage{
			Payload: []byte(msg.Payload),
		}

		switch {
		case strings.HasPrefix(msg.Channel, "conversation:"):
			broadcastMsg.ConversationId = strings.TrimPrefix(msg.Channel, "conversation:")
		case strings.HasPrefix(msg.Channel, "user:"):
			broadcastMsg.UserId = strings.TrimPrefix(msg.Channel, "user:")
		default:
			slog.Warn("[REDIS] Event on unexpected channel", "channel", msg.Channel)
			continue
		}

		hub.Broadcast <- broadcastMsg
	}

	slog.Info("[REDIS] Redis pub/sub channel closed")
}

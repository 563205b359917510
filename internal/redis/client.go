package redis

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"

	"skillswap-realtime/internal/models"
)

type Client struct {
	rdb *redis.Client
	ctx context.Context
}

func NewClient(redisURL string) *Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		slog.Error("Failed to parse Redis URL", "error", err)
		panic(err)
	}

	rdb := redis.NewClient(opt)
	ctx := context.Background()

	// Test connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		panic(err)
	}

	slog.Info("Connected to Redis")

	return &Client{
		rdb: rdb,
		ctx: ctx,
	}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Publish events to Redis

func (c *Client) PublishMessageCreated(conversationId string, message interface{}) error {
	event := models.Event{
		Type:           models.EventMessageCreated,
		ConversationId: conversationId,
		Timestamp:      time.Now().Unix(),
		Data:           message,
	}

	return c.publishConversationEvent(conversationId, event)
}

func (c *Client) PublishTyping(conversationId, userId, userName string, isTyping bool) error {
	eventType := models.EventTypingStart
	if !isTyping {
		eventType = models.EventTypingStop
	}

	event := models.Event{
		Type:           eventType,
		ConversationId: conversationId,
		Timestamp:      time.Now().Unix(),
		Data: models.TypingData{
			UserId:   userId,
			UserName: userName,
			IsTyping: isTyping,
		},
	}

	return c.publishConversationEvent(conversationId, event)
}

func (c *Client) PublishMessageRead(conversationId, messageId, readerId string) error {
	event := models.Event{
		Type:           models.EventMessageRead,
		ConversationId: conversationId,
		Timestamp:      time.Now().Unix(),
		Data: models.ReadReceiptData{
			MessageId: messageId,
			ReaderId:  readerId,
		},
	}

	return c.publishConversationEvent(conversationId, event)
}

func (c *Client) PublishMessageDelivered(conversationId, messageId, recipientId string) error {
	event := models.Event{
		Type:           models.EventMessageDelivered,
		ConversationId: conversationId,
		Timestamp:      time.Now().Unix(),
		Data: models.ReadReceiptData{
			MessageId: messageId,
			ReaderId:  recipientId,
		},
	}

	return c.publishConversationEvent(conversationId, event)
}

func (c *Client) PublishPresenceOnline(userId string) error {
	return c.publishUserEvent("*", models.Event{
		Type:      models.EventPresenceOnline,
		Timestamp: time.Now().Unix(),
		Data:      models.PresenceData{UserId: userId},
	})
}

func (c *Client) PublishPresenceOffline(userId string) error {
	return c.publishUserEvent("*", models.Event{
		Type:      models.EventPresenceOffline,
		Timestamp: time.Now().Unix(),
		Data:      models.PresenceData{UserId: userId},
	})
}

func (c *Client) PublishNotification(notification models.Notification) error {
	return c.publishUserEvent(notification.Recipient, models.Event{
		Type:      models.EventNotificationCreated,
		Timestamp: time.Now().Unix(),
		Data:      notification,
	})
}

func (c *Client) PublishUnreadDelta(userId string, delta models.UnreadDeltaData) error {
	return c.publishUserEvent(userId, models.Event{
		Type:      models.EventUnreadDelta,
		Timestamp: time.Now().Unix(),
		Data:      delta,
	})
}

func (c *Client) publishConversationEvent(conversationId string, event models.Event) error {
	return c.publish("conversation:"+conversationId, event)
}

// publishUserEvent targets one recipient, or every connected user when
// userId is "*" (presence changes are global).
func (c *Client) publishUserEvent(userId string, event models.Event) error {
	return c.publish("user:"+userId, event)
}

func (c *Client) publish(channel string, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("[REDIS] Failed to marshal event", "type", event.Type, "channel", channel, "error", err)
		return err
	}

	if err := c.rdb.Publish(c.ctx, channel, payload).Err(); err != nil {
		slog.Error("[REDIS] Failed to publish event", "type", event.Type, "channel", channel, "error", err)
		return err
	}

	return nil
}

// Unread counters
//
// Per-conversation counters live in the hash unread:conv:<userId>; the
// notification counter in unread:notif:<userId>. Redis is the authoritative
// source the REST snapshot serves; clients treat their copies as caches.

func (c *Client) IncrConversationUnread(userId, conversationId string) error {
	return c.rdb.HIncrBy(c.ctx, "unread:conv:"+userId, conversationId, 1).Err()
}

func (c *Client) ResetConversationUnread(userId, conversationId string) error {
	return c.rdb.HDel(c.ctx, "unread:conv:"+userId, conversationId).Err()
}

func (c *Client) IncrNotificationUnread(userId string, delta int64) error {
	return c.rdb.IncrBy(c.ctx, "unread:notif:"+userId, delta).Err()
}

func (c *Client) ResetNotificationUnread(userId string) error {
	return c.rdb.Del(c.ctx, "unread:notif:"+userId).Err()
}

// UnreadSnapshot reads the authoritative counters for a user. Counters are
// floored at zero on read; a negative value only appears if a decrement
// raced a reset and must not leak to clients.
func (c *Client) UnreadSnapshot(userId string) (models.UnreadSnapshotData, error) {
	snapshot := models.UnreadSnapshotData{Conversations: map[string]int{}}

	fields, err := c.rdb.HGetAll(c.ctx, "unread:conv:"+userId).Result()
	if err != nil {
		return snapshot, err
	}
	for conversationId, raw := range fields {
		n, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if n > 0 {
			snapshot.Conversations[conversationId] = n
		}
	}

	count, err := c.rdb.Get(c.ctx, "unread:notif:"+userId).Int()
	if err != nil && err != redis.Nil {
		return snapshot, err
	}
	if count > 0 {
		snapshot.Notifications = count
	}

	return snapshot, nil
}

package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"skillswap-realtime/internal/models"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Max message size
	maxMessageSize = 512 * 1024 // 512 KB
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Validate origin in production
		return true
	},
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userId   string
	userName string
}

// inboundEvent is the client-to-gateway envelope. Data stays raw until the
// event type picks a shape.
type inboundEvent struct {
	Type           string          `json:"type"`
	ConversationId string          `json:"conversationId"`
	Data           json.RawMessage `json:"data"`
}

// ReadPump pumps events from the WebSocket into the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("[CLIENT] Unexpected close", "user", c.userId, "error", err)
			}
			break
		}

		c.handleClientEvent(message)
	}
}

// WritePump pumps hub events to the WebSocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				slog.Error("[CLIENT] Failed to get writer", "user", c.userId, "error", err)
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				slog.Error("[CLIENT] Failed to close writer", "user", c.userId, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Error("[CLIENT] Failed to send ping", "user", c.userId, "error", err)
				return
			}
		}
	}
}

func (c *Client) handleClientEvent(message []byte) {
	var event inboundEvent
	if err := json.Unmarshal(message, &event); err != nil {
		slog.Error("[CLIENT] Error unmarshaling event", "user", c.userId, "error", err)
		return
	}

	switch event.Type {
	case models.EventIdentityAnnounce:
		// Identity is already established by the token; the announcement
		// marks a (re)connected session.
		slog.Info("[CLIENT] Identity announced", "user", c.userId, "userName", c.userName)

	case models.EventRoomJoin:
		c.hub.JoinRoom(c, event.ConversationId)

	case models.EventRoomLeave:
		c.hub.LeaveRoom(c, event.ConversationId)

	case models.EventMessageSend:
		c.handleMessageSend(event)

	case models.EventTypingStart, models.EventTypingStop:
		c.handleTyping(event)

	case models.EventMessageRead:
		c.handleMessageRead(event)

	case models.EventConversationRead:
		c.handleConversationRead(event)

	default:
		slog.Warn("[CLIENT] Unknown event type", "type", event.Type, "user", c.userId)
	}
}

func (c *Client) handleMessageSend(event inboundEvent) {
	var data models.MessageSendData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		slog.Error("[CLIENT] Bad message:send payload", "user", c.userId, "error", err)
		return
	}
	if data.Receiver == "" || data.Content == "" {
		return
	}
	if data.Kind == "" {
		data.Kind = models.MessageText
	}

	msg, _ := c.hub.store.AppendMessage(c.userId, data.Receiver, data.Content, data.Kind)

	if err := c.hub.publisher.IncrConversationUnread(data.Receiver, msg.ConversationId); err != nil {
		slog.Error("[CLIENT] Failed to bump unread counter", "user", data.Receiver, "error", err)
	}
	if err := c.hub.publisher.PublishMessageCreated(msg.ConversationId, msg); err != nil {
		slog.Error("[CLIENT] Failed to publish message:created", "user", c.userId, "error", err)
	}
	// Best-effort delivery receipt: only receivers connected to this
	// instance produce one.
	if c.hub.hasConnection(data.Receiver) {
		if err := c.hub.publisher.PublishMessageDelivered(msg.ConversationId, msg.Id, data.Receiver); err != nil {
			slog.Error("[CLIENT] Failed to publish delivery receipt", "user", c.userId, "error", err)
		}
	}
	if err := c.hub.publisher.PublishUnreadDelta(data.Receiver, models.UnreadDeltaData{
		ConversationId: msg.ConversationId,
		Conversations:  1,
	}); err != nil {
		slog.Error("[CLIENT] Failed to publish unread delta", "user", data.Receiver, "error", err)
	}
}

func (c *Client) handleTyping(event inboundEvent) {
	if event.ConversationId == "" {
		return
	}
	isTyping := event.Type == models.EventTypingStart
	if err := c.hub.publisher.PublishTyping(event.ConversationId, c.userId, c.userName, isTyping); err != nil {
		slog.Error("[CLIENT] Failed to publish typing event", "user", c.userId, "conversation", event.ConversationId, "error", err)
	}
}

func (c *Client) handleMessageRead(event inboundEvent) {
	var data models.ReadReceiptData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		slog.Error("[CLIENT] Bad message:read payload", "user", c.userId, "error", err)
		return
	}
	if event.ConversationId == "" || data.MessageId == "" {
		return
	}

	if !c.hub.store.MarkMessageRead(event.ConversationId, data.MessageId) {
		return
	}
	if err := c.hub.publisher.PublishMessageRead(event.ConversationId, data.MessageId, c.userId); err != nil {
		slog.Error("[CLIENT] Failed to publish read receipt", "user", c.userId, "error", err)
	}
}

func (c *Client) handleConversationRead(event inboundEvent) {
	if event.ConversationId == "" {
		return
	}

	flipped := c.hub.store.MarkConversationRead(event.ConversationId, c.userId)
	if err := c.hub.publisher.ResetConversationUnread(c.userId, event.ConversationId); err != nil {
		slog.Error("[CLIENT] Failed to reset unread counter", "user", c.userId, "error", err)
	}
	if flipped > 0 {
		if err := c.hub.publisher.PublishUnreadDelta(c.userId, models.UnreadDeltaData{
			ConversationId: event.ConversationId,
			Conversations:  -flipped,
		}); err != nil {
			slog.Error("[CLIENT] Failed to publish unread delta", "user", c.userId, "error", err)
		}
		if err := c.hub.publisher.PublishMessageRead(event.ConversationId, "", c.userId); err != nil {
			slog.Error("[CLIENT] Failed to publish conversation read receipt", "user", c.userId, "error", err)
		}
	}
}

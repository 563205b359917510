// Package session is the client half of the realtime protocol: one live
// connection per authenticated identity, room-scoped event routing, typing
// and presence tracking, and the unread/notification aggregator. All state
// kept here is a cache; the backend stays the source of truth and every
// full refetch overwrites local values.
package session

import (
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"skillswap-realtime/internal/models"
)

var ErrNotConnected = errors.New("session: not connected")

// Identity is the authenticated user owning the session. Read-only here;
// the auth provider owns it.
type Identity struct {
	UserId   string
	UserName string
	Avatar   string
	Token    string
}

type Config struct {
	// URL is the gateway websocket endpoint, e.g. ws://host/ws.
	URL      string
	Identity Identity

	// ReconnectWait is the fixed delay between reconnect attempts.
	ReconnectWait time.Duration
	// MaxReconnects bounds reconnect attempts per disconnect.
	MaxReconnects int

	TypingDebounce time.Duration
	// TypingTTL clears a remote typing flag if the stop event never
	// arrives.
	TypingTTL time.Duration

	// MaxNotifications bounds the in-memory notification list.
	MaxNotifications int

	// Backend handles the REST side of read acknowledgements and
	// reconciliation fetches. Optional; without it the aggregator is
	// purely local.
	Backend Backend
}

type Session struct {
	cfg    Config
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	writeMu sync.Mutex

	Presence *Presence
	Rooms    *Rooms
	Typing   *Typing
	Inbox    *Inbox

	callbackMu     sync.RWMutex
	onMessage      func(models.Message)
	onNotification func(models.Notification)
	onReadReceipt  func(conversationId, messageId, readerId string)
	onStateChange  func(connected bool)

	timers timerFactory
}

func New(cfg Config) *Session {
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 3 * time.Second
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = 5
	}
	if cfg.TypingDebounce <= 0 {
		cfg.TypingDebounce = 300 * time.Millisecond
	}
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = 10 * time.Second
	}
	if cfg.MaxNotifications <= 0 {
		cfg.MaxNotifications = 50
	}

	s := &Session{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		timers: realTimers,
	}
	s.Presence = newPresence()
	s.Rooms = newRooms(s.IsConnected, s.emitRoomEvent)
	s.Typing = newTyping(cfg.TypingDebounce, cfg.TypingTTL, s.emitTyping, s.timerFn)
	s.Inbox = newInbox(cfg.MaxNotifications, cfg.Backend)
	return s
}

// Connect dials the gateway and announces the identity. On failure the
// caller may retry; once connected, transport drops trigger the bounded
// auto-reconnect loop.
func (s *Session) Connect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session: closed")
	}
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	conn, err := s.dial()
	if err != nil {
		return err
	}

	s.adopt(conn)
	go s.readLoop(conn)
	return nil
}

// Close tears the connection down for good. Called on sign-out; the session
// must not outlive its identity.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	wasConnected := s.connected
	s.connected = false
	s.mu.Unlock()

	s.Typing.shutdown()

	if conn != nil {
		conn.Close()
	}
	if wasConnected {
		s.notifyState(false)
	}
	return nil
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) OnMessage(fn func(models.Message)) {
	s.callbackMu.Lock()
	s.onMessage = fn
	s.callbackMu.Unlock()
}

func (s *Session) OnNotification(fn func(models.Notification)) {
	s.callbackMu.Lock()
	s.onNotification = fn
	s.callbackMu.Unlock()
}

func (s *Session) OnReadReceipt(fn func(conversationId, messageId, readerId string)) {
	s.callbackMu.Lock()
	s.onReadReceipt = fn
	s.callbackMu.Unlock()
}

func (s *Session) OnStateChange(fn func(connected bool)) {
	s.callbackMu.Lock()
	s.onStateChange = fn
	s.callbackMu.Unlock()
}

// SendMessage ships a message over the socket.
func (s *Session) SendMessage(receiver, content, kind string) error {
	if kind == "" {
		kind = models.MessageText
	}
	return s.emit(models.Event{
		Type:      models.EventMessageSend,
		Timestamp: time.Now().Unix(),
		Data: models.MessageSendData{
			Receiver: receiver,
			Content:  content,
			Kind:     kind,
		},
	})
}

// MarkMessageRead acknowledges a single message.
func (s *Session) MarkMessageRead(conversationId, messageId string) error {
	if conversationId == "" || messageId == "" {
		return nil
	}
	return s.emit(models.Event{
		Type:           models.EventMessageRead,
		ConversationId: conversationId,
		Timestamp:      time.Now().Unix(),
		Data: models.ReadReceiptData{
			MessageId: messageId,
			ReaderId:  s.cfg.Identity.UserId,
		},
	})
}

// MarkConversationRead acknowledges a whole conversation on both channels:
// the socket event and the REST call, and zeroes the local counter
// optimistically.
func (s *Session) MarkConversationRead(conversationId string) error {
	if conversationId == "" {
		return nil
	}

	s.Inbox.markConversationRead(conversationId)

	if err := s.emit(models.Event{
		Type:           models.EventConversationRead,
		ConversationId: conversationId,
		Timestamp:      time.Now().Unix(),
		Data:           models.ReadReceiptData{ReaderId: s.cfg.Identity.UserId},
	}); err != nil && err != ErrNotConnected {
		return err
	}
	return nil
}

func (s *Session) dial() (*websocket.Conn, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, err
	}
	query := u.Query()
	query.Set("token", s.cfg.Identity.Token)
	u.RawQuery = query.Encode()

	conn, _, err := s.dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// adopt installs a freshly dialed connection, announces the identity exactly
// once, and rejoins rooms held across the disconnect. A connection it
// replaces is closed; the identity never holds two live sockets.
func (s *Session) adopt(conn *websocket.Conn) {
	s.mu.Lock()
	displaced := s.conn
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	if displaced != nil && displaced != conn {
		displaced.Close()
	}

	if err := s.emit(models.Event{
		Type:      models.EventIdentityAnnounce,
		Timestamp: time.Now().Unix(),
		Data: models.IdentityData{
			UserId:   s.cfg.Identity.UserId,
			UserName: s.cfg.Identity.UserName,
			Avatar:   s.cfg.Identity.Avatar,
		},
	}); err != nil {
		slog.Warn("[SESSION] Failed to announce identity", "error", err)
	}

	s.Rooms.rejoin()
	s.notifyState(true)
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var event models.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			slog.Error("[SESSION] Error unmarshaling event", "error", err)
			continue
		}
		s.dispatch(event)
	}

	s.mu.Lock()
	stale := s.conn != conn
	if !stale {
		s.conn = nil
		s.connected = false
	}
	closed := s.closed
	s.mu.Unlock()

	if stale || closed {
		return
	}

	s.notifyState(false)
	s.reconnect()
}

// reconnect retries with a fixed delay and a bounded attempt count. Between
// attempts the session stays usable in its disconnected, no-op form.
func (s *Session) reconnect() {
	for attempt := 1; attempt <= s.cfg.MaxReconnects; attempt++ {
		time.Sleep(s.cfg.ReconnectWait)

		// A caller-driven Connect may have raced the wait; the identity
		// already holds its one connection then.
		s.mu.Lock()
		done := s.closed || s.connected
		s.mu.Unlock()
		if done {
			return
		}

		conn, err := s.dial()
		if err != nil {
			slog.Warn("[SESSION] Reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}

		slog.Info("[SESSION] Reconnected", "attempt", attempt)
		s.adopt(conn)
		go s.readLoop(conn)
		return
	}

	slog.Error("[SESSION] Giving up after max reconnect attempts", "attempts", s.cfg.MaxReconnects)
}

// dispatch routes one inbound event. Handlers run to completion before the
// next event is processed; ordering within a room follows the transport.
func (s *Session) dispatch(event models.Event) {
	switch event.Type {
	case models.EventPresenceSnapshot:
		var data models.PresenceSnapshotData
		if decode(event.Data, &data) {
			s.Presence.snapshot(data.Online)
		}

	case models.EventPresenceOnline:
		var data models.PresenceData
		if decode(event.Data, &data) {
			s.Presence.setOnline(data.UserId)
		}

	case models.EventPresenceOffline:
		var data models.PresenceData
		if decode(event.Data, &data) {
			s.Presence.setOffline(data.UserId)
		}

	case models.EventTypingStart, models.EventTypingStop:
		var data models.TypingData
		if decode(event.Data, &data) && data.UserId != s.cfg.Identity.UserId {
			s.Typing.handleRemote(event.ConversationId, data.UserId, event.Type == models.EventTypingStart)
		}

	case models.EventMessageCreated:
		var msg models.Message
		if decode(event.Data, &msg) {
			s.callbackMu.RLock()
			fn := s.onMessage
			s.callbackMu.RUnlock()
			if fn != nil {
				fn(msg)
			}
		}

	case models.EventMessageRead, models.EventMessageDelivered:
		var data models.ReadReceiptData
		if decode(event.Data, &data) {
			s.callbackMu.RLock()
			fn := s.onReadReceipt
			s.callbackMu.RUnlock()
			if fn != nil {
				fn(event.ConversationId, data.MessageId, data.ReaderId)
			}
		}

	case models.EventNotificationCreated:
		var notification models.Notification
		if decode(event.Data, &notification) {
			s.Inbox.handleNotification(notification)
			s.callbackMu.RLock()
			fn := s.onNotification
			s.callbackMu.RUnlock()
			if fn != nil {
				fn(notification)
			}
		}

	case models.EventUnreadSnapshot:
		var data models.UnreadSnapshotData
		if decode(event.Data, &data) {
			s.Inbox.handleSnapshot(data)
		}

	case models.EventUnreadDelta:
		var data models.UnreadDeltaData
		if decode(event.Data, &data) {
			s.Inbox.handleDelta(data)
		}

	default:
		slog.Debug("[SESSION] Ignoring unknown event", "type", event.Type)
	}
}

func (s *Session) emit(event models.Event) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.connected
	s.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Session) emitRoomEvent(eventType, conversationId string) {
	if err := s.emit(models.Event{
		Type:           eventType,
		ConversationId: conversationId,
		Timestamp:      time.Now().Unix(),
	}); err != nil && err != ErrNotConnected {
		slog.Warn("[SESSION] Failed to emit room event", "type", eventType, "conversation", conversationId, "error", err)
	}
}

func (s *Session) emitTyping(conversationId string, isTyping bool) {
	eventType := models.EventTypingStart
	if !isTyping {
		eventType = models.EventTypingStop
	}
	if err := s.emit(models.Event{
		Type:           eventType,
		ConversationId: conversationId,
		Timestamp:      time.Now().Unix(),
		Data: models.TypingData{
			UserId:   s.cfg.Identity.UserId,
			UserName: s.cfg.Identity.UserName,
			IsTyping: isTyping,
		},
	}); err != nil && err != ErrNotConnected {
		slog.Warn("[SESSION] Failed to emit typing event", "conversation", conversationId, "error", err)
	}
}

func (s *Session) notifyState(connected bool) {
	s.callbackMu.RLock()
	fn := s.onStateChange
	s.callbackMu.RUnlock()
	if fn != nil {
		fn(connected)
	}
}

func (s *Session) timerFn(d time.Duration, fn func()) cancelFunc {
	return s.timers(d, fn)
}

func decode(data interface{}, out interface{}) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		slog.Error("[SESSION] Bad event payload", "error", err)
		return false
	}
	return true
}

package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"skillswap-realtime/internal/models"
	"skillswap-realtime/internal/store"
)

// fakePublisher records fanout calls and keeps counters locally instead of
// redis.
type fakePublisher struct {
	mu sync.Mutex

	online    []string
	offline   []string
	typing    []models.TypingData
	messages  []string // conversation ids of message:created publishes
	delivered []string // recipient ids of message:delivered publishes
	deltas    map[string][]models.UnreadDeltaData
	incrs     map[string]int
	resets    []string

	snapshot models.UnreadSnapshotData
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		deltas: make(map[string][]models.UnreadDeltaData),
		incrs:  make(map[string]int),
	}
}

func (f *fakePublisher) PublishMessageCreated(conversationId string, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, conversationId)
	return nil
}

func (f *fakePublisher) PublishMessageRead(string, string, string) error { return nil }

func (f *fakePublisher) PublishMessageDelivered(_, _, recipientId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, recipientId)
	return nil
}

func (f *fakePublisher) PublishTyping(conversationId, userId, userName string, isTyping bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, models.TypingData{UserId: userId, UserName: userName, IsTyping: isTyping})
	return nil
}

func (f *fakePublisher) PublishPresenceOnline(userId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, userId)
	return nil
}

func (f *fakePublisher) PublishPresenceOffline(userId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = append(f.offline, userId)
	return nil
}

func (f *fakePublisher) PublishUnreadDelta(userId string, delta models.UnreadDeltaData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltas[userId] = append(f.deltas[userId], delta)
	return nil
}

func (f *fakePublisher) IncrConversationUnread(userId, conversationId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incrs[userId+"/"+conversationId]++
	return nil
}

func (f *fakePublisher) ResetConversationUnread(userId, conversationId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, userId+"/"+conversationId)
	return nil
}

func (f *fakePublisher) UnreadSnapshot(string) (models.UnreadSnapshotData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, nil
}

// testPeer is one connected identity: the dialer side plus received events.
type testPeer struct {
	conn *websocket.Conn

	mu     sync.Mutex
	events []models.Event
}

func (p *testPeer) received(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func (p *testPeer) send(t *testing.T, event models.Event) {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatal(err)
	}
}

type hubFixture struct {
	hub       *Hub
	publisher *fakePublisher
	store     *store.Store
	srv       *httptest.Server
}

// newHubFixture starts a hub behind a test endpoint that trusts the user id
// from a header, standing in for token validation.
func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()

	publisher := newFakePublisher()
	messageStore := store.New()
	hub := NewHub(publisher, messageStore)
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := &Client{
			hub:      hub,
			conn:     conn,
			send:     make(chan []byte, 256),
			userId:   r.Header.Get("X-User"),
			userName: r.Header.Get("X-Name"),
		}
		hub.register <- client
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)

	return &hubFixture{hub: hub, publisher: publisher, store: messageStore, srv: srv}
}

func (f *hubFixture) connect(t *testing.T, userId string) *testPeer {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	header := http.Header{"X-User": {userId}, "X-Name": {userId}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	peer := &testPeer{conn: conn}
	go func() {
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var event models.Event
			if err := json.Unmarshal(payload, &event); err != nil {
				continue
			}
			peer.mu.Lock()
			peer.events = append(peer.events, event)
			peer.mu.Unlock()
		}
	}()
	return peer
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRegisterSendsSnapshotsAndPublishesPresence(t *testing.T) {
	f := newHubFixture(t)
	f.publisher.snapshot = models.UnreadSnapshotData{
		Conversations: map[string]int{"c": 2},
		Notifications: 1,
	}

	peer := f.connect(t, "alice")

	waitFor(t, func() bool { return peer.received(models.EventPresenceSnapshot) == 1 })
	waitFor(t, func() bool { return peer.received(models.EventUnreadSnapshot) == 1 })
	waitFor(t, func() bool {
		f.publisher.mu.Lock()
		defer f.publisher.mu.Unlock()
		return len(f.publisher.online) == 1 && f.publisher.online[0] == "alice"
	})
}

func TestSecondTabDoesNotReannouncePresence(t *testing.T) {
	f := newHubFixture(t)

	f.connect(t, "alice")
	f.connect(t, "alice")

	waitFor(t, func() bool { return len(f.hub.OnlineUsers()) == 1 })

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	if len(f.publisher.online) != 1 {
		t.Errorf("expected one presence:online publish, got %d", len(f.publisher.online))
	}
}

func TestBroadcastRoutesByRoomAndUser(t *testing.T) {
	f := newHubFixture(t)

	alice := f.connect(t, "alice")
	bob := f.connect(t, "bob")
	waitFor(t, func() bool { return len(f.hub.OnlineUsers()) == 2 })

	alice.send(t, models.Event{Type: models.EventRoomJoin, ConversationId: "conv1"})
	waitFor(t, func() bool {
		f.hub.mu.RLock()
		defer f.hub.mu.RUnlock()
		return len(f.hub.rooms["conv1"]) == 1
	})

	roomEvent, _ := json.Marshal(models.Event{Type: models.EventMessageCreated, ConversationId: "conv1"})
	f.hub.Broadcast <- &models.BroadcastMessage{ConversationId: "conv1", Payload: roomEvent}

	waitFor(t, func() bool { return alice.received(models.EventMessageCreated) == 1 })
	if got := bob.received(models.EventMessageCreated); got != 0 {
		t.Errorf("bob is not in the room but received %d events", got)
	}

	userEvent, _ := json.Marshal(models.Event{Type: models.EventNotificationCreated})
	f.hub.Broadcast <- &models.BroadcastMessage{UserId: "bob", Payload: userEvent}

	waitFor(t, func() bool { return bob.received(models.EventNotificationCreated) == 1 })
	if got := alice.received(models.EventNotificationCreated); got != 0 {
		t.Errorf("alice received bob's notification")
	}

	globalEvent, _ := json.Marshal(models.Event{Type: models.EventPresenceOnline})
	f.hub.Broadcast <- &models.BroadcastMessage{UserId: "*", Payload: globalEvent}

	waitFor(t, func() bool {
		return alice.received(models.EventPresenceOnline) == 1 && bob.received(models.EventPresenceOnline) == 1
	})
}

func TestRoomLeaveStopsDelivery(t *testing.T) {
	f := newHubFixture(t)

	alice := f.connect(t, "alice")
	waitFor(t, func() bool { return len(f.hub.OnlineUsers()) == 1 })

	alice.send(t, models.Event{Type: models.EventRoomJoin, ConversationId: "conv1"})
	waitFor(t, func() bool {
		f.hub.mu.RLock()
		defer f.hub.mu.RUnlock()
		return len(f.hub.rooms["conv1"]) == 1
	})

	alice.send(t, models.Event{Type: models.EventRoomLeave, ConversationId: "conv1"})
	waitFor(t, func() bool {
		f.hub.mu.RLock()
		defer f.hub.mu.RUnlock()
		return len(f.hub.rooms["conv1"]) == 0
	})
}

func TestMessageSendPersistsAndFansOut(t *testing.T) {
	f := newHubFixture(t)

	alice := f.connect(t, "alice")
	waitFor(t, func() bool { return len(f.hub.OnlineUsers()) == 1 })

	alice.send(t, models.Event{
		Type: models.EventMessageSend,
		Data: models.MessageSendData{Receiver: "bob", Content: "hi", Kind: models.MessageText},
	})

	waitFor(t, func() bool {
		f.publisher.mu.Lock()
		defer f.publisher.mu.Unlock()
		return len(f.publisher.messages) == 1
	})

	conversationId, ok := f.store.ConversationWith("alice", "bob")
	if !ok {
		t.Fatal("conversation was not created")
	}
	if msgs := f.store.Messages(conversationId, 1, 10); len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Errorf("message not persisted: %+v", msgs)
	}

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	if f.publisher.incrs["bob/"+conversationId] != 1 {
		t.Errorf("expected receiver unread bump, got %v", f.publisher.incrs)
	}
	if len(f.publisher.deltas["bob"]) != 1 || f.publisher.deltas["bob"][0].Conversations != 1 {
		t.Errorf("expected unread delta push for bob, got %v", f.publisher.deltas["bob"])
	}
}

func TestMessageSendReceiptsOnlineReceiversOnly(t *testing.T) {
	f := newHubFixture(t)

	alice := f.connect(t, "alice")
	f.connect(t, "bob")
	waitFor(t, func() bool { return len(f.hub.OnlineUsers()) == 2 })

	alice.send(t, models.Event{
		Type: models.EventMessageSend,
		Data: models.MessageSendData{Receiver: "bob", Content: "hi", Kind: models.MessageText},
	})

	waitFor(t, func() bool {
		f.publisher.mu.Lock()
		defer f.publisher.mu.Unlock()
		return len(f.publisher.delivered) == 1 && f.publisher.delivered[0] == "bob"
	})

	alice.send(t, models.Event{
		Type: models.EventMessageSend,
		Data: models.MessageSendData{Receiver: "carol", Content: "hello", Kind: models.MessageText},
	})

	waitFor(t, func() bool {
		f.publisher.mu.Lock()
		defer f.publisher.mu.Unlock()
		return len(f.publisher.messages) == 2
	})

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	if len(f.publisher.delivered) != 1 {
		t.Errorf("offline receiver produced a delivery receipt: %v", f.publisher.delivered)
	}
}

func TestConversationReadResetsCounterAndPushesDelta(t *testing.T) {
	f := newHubFixture(t)

	f.store.AppendMessage("alice", "bob", "one", models.MessageText)
	msg, _ := f.store.AppendMessage("alice", "bob", "two", models.MessageText)

	bob := f.connect(t, "bob")
	waitFor(t, func() bool { return len(f.hub.OnlineUsers()) == 1 })

	bob.send(t, models.Event{Type: models.EventConversationRead, ConversationId: msg.ConversationId})

	waitFor(t, func() bool {
		f.publisher.mu.Lock()
		defer f.publisher.mu.Unlock()
		return len(f.publisher.resets) == 1
	})

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	deltas := f.publisher.deltas["bob"]
	if len(deltas) != 1 || deltas[0].Conversations != -2 {
		t.Errorf("expected -2 unread delta for bob, got %v", deltas)
	}
}

func TestDisconnectPublishesOffline(t *testing.T) {
	f := newHubFixture(t)

	alice := f.connect(t, "alice")
	waitFor(t, func() bool { return len(f.hub.OnlineUsers()) == 1 })

	alice.conn.Close()

	waitFor(t, func() bool {
		f.publisher.mu.Lock()
		defer f.publisher.mu.Unlock()
		return len(f.publisher.offline) == 1 && f.publisher.offline[0] == "alice"
	})
	if users := f.hub.OnlineUsers(); len(users) != 0 {
		t.Errorf("expected empty online set, got %v", users)
	}
}

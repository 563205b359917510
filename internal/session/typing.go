package session

import (
	"sort"
	"sync"
	"time"
)

// cancelFunc stops a pending timer; returns false if it already fired.
type cancelFunc func() bool

// timerFactory schedules fn after d. Swapped for a fake in tests.
type timerFactory func(d time.Duration, fn func()) cancelFunc

func realTimers(d time.Duration, fn func()) cancelFunc {
	t := time.AfterFunc(d, fn)
	return t.Stop
}

// Typing debounces local typing emissions and aggregates remote typing
// state into a per-room set. Remote entries expire on an explicit stop
// event or after the TTL, so a lost stop cannot leave an indicator stuck.
type Typing struct {
	mu sync.Mutex

	debounce time.Duration
	ttl      time.Duration

	emit  func(conversationId string, isTyping bool)
	timer timerFactory

	// pending debounce per conversation the local user is composing in
	pending map[string]cancelFunc

	// conversation id -> set of remote ids currently typing
	remote map[string]map[string]bool
	// expiry timers matching remote entries
	expiry map[string]map[string]cancelFunc

	down bool
}

func newTyping(debounce, ttl time.Duration, emit func(string, bool), timer timerFactory) *Typing {
	return &Typing{
		debounce: debounce,
		ttl:      ttl,
		emit:     emit,
		timer:    timer,
		pending:  make(map[string]cancelFunc),
		remote:   make(map[string]map[string]bool),
		expiry:   make(map[string]map[string]cancelFunc),
	}
}

// InputChanged reports a compose-box edit. Non-empty content schedules a
// typing:start after the debounce window; emptying the box cancels any
// pending emission and sends typing:stop immediately — clearing the input
// must not wait out the debounce.
func (t *Typing) InputChanged(conversationId, content string) {
	if conversationId == "" {
		return
	}

	t.mu.Lock()
	if t.down {
		t.mu.Unlock()
		return
	}
	if cancel, ok := t.pending[conversationId]; ok {
		cancel()
		delete(t.pending, conversationId)
	}

	if content == "" {
		t.mu.Unlock()
		t.emit(conversationId, false)
		return
	}

	t.pending[conversationId] = t.timer(t.debounce, func() {
		t.mu.Lock()
		delete(t.pending, conversationId)
		down := t.down
		t.mu.Unlock()
		if !down {
			t.emit(conversationId, true)
		}
	})
	t.mu.Unlock()
}

// StopTyping force-stops the local indicator, e.g. right after a message is
// sent.
func (t *Typing) StopTyping(conversationId string) {
	t.InputChanged(conversationId, "")
}

// handleRemote applies a peer's typing event.
func (t *Typing) handleRemote(conversationId, userId string, isTyping bool) {
	if conversationId == "" || userId == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if cancel, ok := t.expiry[conversationId][userId]; ok {
		cancel()
		delete(t.expiry[conversationId], userId)
	}

	if !isTyping {
		delete(t.remote[conversationId], userId)
		if len(t.remote[conversationId]) == 0 {
			delete(t.remote, conversationId)
		}
		return
	}

	if t.remote[conversationId] == nil {
		t.remote[conversationId] = make(map[string]bool)
	}
	t.remote[conversationId][userId] = true

	if t.expiry[conversationId] == nil {
		t.expiry[conversationId] = make(map[string]cancelFunc)
	}
	t.expiry[conversationId][userId] = t.timer(t.ttl, func() {
		t.mu.Lock()
		delete(t.remote[conversationId], userId)
		if len(t.remote[conversationId]) == 0 {
			delete(t.remote, conversationId)
		}
		delete(t.expiry[conversationId], userId)
		t.mu.Unlock()
	})
}

// TypingUsers returns the ids currently typing in a conversation, sorted.
func (t *Typing) TypingUsers(conversationId string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.remote[conversationId]))
	for id := range t.remote[conversationId] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// shutdown cancels every pending timer; used by Session.Close.
func (t *Typing) shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.down = true
	for id, cancel := range t.pending {
		cancel()
		delete(t.pending, id)
	}
	for conversationId, timers := range t.expiry {
		for userId, cancel := range timers {
			cancel()
			delete(timers, userId)
		}
		delete(t.expiry, conversationId)
	}
	t.remote = make(map[string]map[string]bool)
}

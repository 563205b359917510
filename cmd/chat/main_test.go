package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"skillswap-realtime/internal/api"
	"skillswap-realtime/internal/models"
)

func TestWaitForConversationPicksUpLateCreation(t *testing.T) {
	var mu sync.Mutex
	var conversations []models.Conversation

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewEncoder(w).Encode(conversations)
	}))
	defer srv.Close()

	backend := api.New(srv.URL, "test-token")
	ctx := context.Background()

	if id, err := findConversationWith(ctx, backend, "bob"); err != nil || id != "" {
		t.Fatalf("found a conversation before one exists: %q, %v", id, err)
	}

	// The conversation appears while the client is already polling, as it
	// does when the first message creates it server-side.
	go func() {
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		conversations = []models.Conversation{{Id: "conv1", Participants: []string{"alice", "bob"}}}
		mu.Unlock()
	}()

	if id := waitForConversation(ctx, backend, "bob", 20, 10*time.Millisecond); id != "conv1" {
		t.Errorf("expected conv1, got %q", id)
	}

	if id := waitForConversation(ctx, backend, "carol", 3, time.Millisecond); id != "" {
		t.Errorf("expected no conversation with carol, got %q", id)
	}
}

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"skillswap-realtime/internal/models"
)

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode([]models.Conversation{})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	if _, err := c.Conversations(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}
}

func TestClientExtractsErrorDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "receiver and content are required"})
	}))
	defer srv.Close()

	c := New(srv.URL, "t")
	_, err := c.SendMessage(context.Background(), "", "", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "receiver and content are required") {
		t.Errorf("expected human-readable description, got %v", err)
	}
}

func TestClientFallsBackToStatusOnOpaqueError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "t")
	err := c.MarkAllNotificationsRead(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("expected status fallback, got %v", err)
	}
}

func TestClientPaginationParams(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		json.NewEncoder(w).Encode([]models.Message{})
	}))
	defer srv.Close()

	c := New(srv.URL, "t")
	if _, err := c.Messages(context.Background(), "conv1", 2, 25); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/api/conversations/conv1/messages?page=2&limit=25" {
		t.Errorf("unexpected path: %s", gotPath)
	}
}

func TestUnreadCountsRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.UnreadSnapshotData{
			Conversations: map[string]int{"c": 2},
			Notifications: 5,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "t")
	snapshot, err := c.UnreadCounts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.Notifications != 5 || snapshot.Conversations["c"] != 2 {
		t.Errorf("unexpected snapshot: %+v", snapshot)
	}
}

// Package api is the REST client for the marketplace backend. The session
// adapter reconciles its caches against these endpoints; every failure is
// returned to the caller with a human-readable description and is never
// fatal.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"skillswap-realtime/internal/models"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Conversations(ctx context.Context) ([]models.Conversation, error) {
	var out []models.Conversation
	err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &out)
	return out, err
}

func (c *Client) Messages(ctx context.Context, conversationId string, page, limit int) ([]models.Message, error) {
	var out []models.Message
	path := fmt.Sprintf("/api/conversations/%s/messages?page=%d&limit=%d",
		url.PathEscape(conversationId), page, limit)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) SendMessage(ctx context.Context, receiver, content, kind string) (models.Message, error) {
	var out models.Message
	body := map[string]string{"receiver": receiver, "content": content, "type": kind}
	err := c.do(ctx, http.MethodPost, "/api/messages", body, &out)
	return out, err
}

func (c *Client) MarkConversationRead(ctx context.Context, conversationId string) error {
	path := "/api/conversations/" + url.PathEscape(conversationId) + "/read"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) Notifications(ctx context.Context, page, limit int) ([]models.Notification, error) {
	var out []models.Notification
	path := "/api/notifications?page=" + strconv.Itoa(page) + "&limit=" + strconv.Itoa(limit)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/read-all", nil, nil)
}

func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/notifications/"+url.PathEscape(id), nil, nil)
}

// UnreadCounts fetches the authoritative counter snapshot.
func (c *Client) UnreadCounts(ctx context.Context) (models.UnreadSnapshotData, error) {
	var out models.UnreadSnapshotData
	err := c.do(ctx, http.MethodGet, "/api/unread", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode request: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %s", method, path, errorMessage(resp))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// errorMessage extracts the backend's human-readable error description,
// falling back to the HTTP status.
func errorMessage(resp *http.Response) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return resp.Status
}

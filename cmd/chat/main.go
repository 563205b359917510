// Command chat is a terminal client for the realtime gateway, wired through
// the same session adapter the web frontend uses.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"skillswap-realtime/internal/api"
	"skillswap-realtime/internal/models"
	"skillswap-realtime/internal/session"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "gateway base URL")
	wsURL := flag.String("ws", "ws://localhost:8080/ws", "gateway websocket URL")
	token := flag.String("token", "", "auth token")
	userId := flag.String("user", "", "user id (must match the token subject)")
	userName := flag.String("name", "", "display name")
	peer := flag.String("peer", "", "user id to chat with")
	flag.Parse()

	if *token == "" || *userId == "" || *peer == "" {
		log.Fatal("-token, -user, and -peer are required")
	}

	backend := api.New(*serverURL, *token)

	sess := session.New(session.Config{
		URL: *wsURL,
		Identity: session.Identity{
			UserId:   *userId,
			UserName: *userName,
			Token:    *token,
		},
		Backend: backend,
	})

	sess.OnStateChange(func(connected bool) {
		if connected {
			fmt.Println("* connected")
		} else {
			fmt.Println("* connection lost, retrying...")
		}
	})
	sess.OnMessage(func(msg models.Message) {
		fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Format("15:04"), msg.Sender, msg.Content)
	})
	sess.OnNotification(func(n models.Notification) {
		fmt.Printf("* notification (%s): %s\n", n.Priority, n.Title)
	})

	if err := sess.Connect(); err != nil {
		log.Fatal("Failed to connect:", err)
	}
	defer sess.Close()

	ctx := context.Background()

	// Show recent history if the conversation already exists.
	conversationId, err := findConversationWith(ctx, backend, *peer)
	if err != nil {
		fmt.Println("* could not fetch conversations:", err)
	}

	if conversationId != "" {
		sess.Rooms.Enter(conversationId)

		history, err := backend.Messages(ctx, conversationId, 1, 20)
		if err != nil {
			fmt.Println("* could not fetch history:", err)
		}
		for _, msg := range history {
			fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Format("15:04"), msg.Sender, msg.Content)
		}

		if err := sess.MarkConversationRead(conversationId); err != nil {
			fmt.Println("* could not mark conversation read:", err)
		}
	}

	fmt.Println("* type a message and press enter (/quit to exit)")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/online":
			fmt.Println("* online:", strings.Join(sess.Presence.Online(), ", "))
		case line == "/unread":
			fmt.Printf("* unread: %d messages, %d notifications\n",
				sess.Inbox.TotalUnread(), sess.Inbox.NotificationUnread())
		default:
			if err := sess.SendMessage(*peer, line, models.MessageText); err != nil {
				fmt.Println("* send failed:", err)
				continue
			}
			if conversationId == "" {
				// The first message creates the conversation server-side;
				// join its room so the peer's replies come through.
				conversationId = waitForConversation(ctx, backend, *peer, 10, 200*time.Millisecond)
				if conversationId != "" {
					sess.Rooms.Enter(conversationId)
				}
			}
			sess.Typing.StopTyping(conversationId)
		}
	}
}

// findConversationWith returns the id of the caller's conversation with
// peer, if one exists.
func findConversationWith(ctx context.Context, backend *api.Client, peer string) (string, error) {
	conversations, err := backend.Conversations(ctx)
	if err != nil {
		return "", err
	}
	for _, conv := range conversations {
		for _, p := range conv.Participants {
			if p == peer {
				return conv.Id, nil
			}
		}
	}
	return "", nil
}

// waitForConversation polls until the conversation shows up on the backend,
// bounded by attempts.
func waitForConversation(ctx context.Context, backend *api.Client, peer string, attempts int, delay time.Duration) string {
	for i := 0; i < attempts; i++ {
		time.Sleep(delay)
		if id, err := findConversationWith(ctx, backend, peer); err == nil && id != "" {
			return id
		}
	}
	return ""
}

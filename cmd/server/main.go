package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"skillswap-realtime/internal/auth"
	"skillswap-realtime/internal/config"
	"skillswap-realtime/internal/handlers"
	"skillswap-realtime/internal/redis"
	"skillswap-realtime/internal/store"
	"skillswap-realtime/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	setupLogging(cfg.LogLevel)

	// Fetch the auth provider's signing keys
	verifier, err := auth.NewVerifier(cfg.AuthIssuerURL)
	if err != nil {
		log.Fatal("Failed to initialize JWKS:", err)
	}

	// Initialize Redis
	redisClient := redis.NewClient(cfg.RedisURL)
	defer redisClient.Close()

	// In-memory message and notification store
	messageStore := store.New()

	// Create hub
	hub := ws.NewHub(redisClient, messageStore)
	go hub.Run()

	// Subscribe to Redis
	go redis.SubscribeToEvents(redisClient, hub)

	chatHandler := &handlers.ChatHandler{Store: messageStore, Broker: redisClient}
	notificationHandler := &handlers.NotificationHandler{Store: messageStore, Broker: redisClient}

	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.Use(handlers.RequireAuth(verifier))
	api.HandleFunc("/conversations", chatHandler.GetConversations).Methods("GET")
	api.HandleFunc("/conversations/{id}/messages", chatHandler.GetMessages).Methods("GET")
	api.HandleFunc("/conversations/{id}/read", chatHandler.MarkConversationRead).Methods("POST")
	api.HandleFunc("/messages", chatHandler.SendMessage).Methods("POST")
	api.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
	api.HandleFunc("/notifications", notificationHandler.CreateNotification).Methods("POST")
	api.HandleFunc("/notifications/read-all", notificationHandler.MarkAllNotificationsRead).Methods("POST")
	api.HandleFunc("/notifications/{id}/read", notificationHandler.MarkNotificationRead).Methods("POST")
	api.HandleFunc("/notifications/{id}", notificationHandler.DeleteNotification).Methods("DELETE")
	api.HandleFunc("/unread", chatHandler.GetUnread).Methods("GET")

	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, verifier, w, r)
	})

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	slog.Info("Realtime gateway starting", "port", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

package ws

import (
	"log/slog"
	"net/http"

	"skillswap-realtime/internal/auth"
)

// ServeWS authenticates the request, upgrades it, and hands the connection
// to the hub. Rooms are joined later via room:join events; one socket can
// follow many conversations.
func ServeWS(hub *Hub, verifier *auth.Verifier, w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractTokenFromRequest(r)
	if token == "" {
		slog.Warn("[WS] No token provided", "from", r.RemoteAddr)
		http.Error(w, "Unauthorized: token required", http.StatusUnauthorized)
		return
	}

	claims, err := verifier.Validate(token)
	if err != nil {
		slog.Warn("[WS] Token validation failed", "from", r.RemoteAddr, "error", err)
		http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
		return
	}

	if !auth.HasPermission(claims.Role, "chat") {
		slog.Warn("[WS] Role lacks chat permission", "user", claims.Subject, "role", claims.Role)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("[WS] Failed to upgrade connection", "user", claims.Subject, "error", err)
		return
	}

	slog.Info("[WS] Connection upgraded", "user", claims.Subject)

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		userId:   claims.Subject,
		userName: claims.Name,
	}

	client.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}

package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/milanh34/linkUp/internal/auth"
	"github.com/milanh34/linkUp/internal/logger"
	"github.com/milanh34/linkUp/internal/ws"
)

type WSHandler struct {
	hub            *ws.Hub
	verifier       *auth.Verifier
	allowedOrigins []string
}

func NewWSHandler(hub *ws.Hub, verifier *auth.Verifier, allowedOrigins []string) *WSHandler {
	return &WSHandler{hub: hub, verifier: verifier, allowedOrigins: allowedOrigins}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// ServeWS authenticates the handshake and upgrades the connection. The token
// comes from the query string ("token") or a bearer header; verification
// happens before the client is registered, so a rejected connection never
// reaches the hub.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	userID, err := h.verifier.UserID(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.checkOrigin(r) {
		writeError(w, http.StatusForbidden, "origin not allowed")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return h.checkOrigin(r) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, userID)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}

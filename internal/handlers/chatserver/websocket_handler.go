package chatserver

import (
	"log"
	"net/http"

	"petpulse/internal/auth"
	"petpulse/internal/config"
	"petpulse/internal/services"
	ws "petpulse/internal/websocket"
)

// WebSocketHandler upgrades authenticated HTTP requests to chat connections.
type WebSocketHandler struct {
	hub         *ws.Hub
	chatService services.ChatService
	cfg         config.Config
}

// NewWebSocketHandler creates a WebSocketHandler.
func NewWebSocketHandler(hub *ws.Hub, chatService services.ChatService, cfg config.Config) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		chatService: chatService,
		cfg:         cfg,
	}
}

// ServeWS handles an incoming websocket request. Credentials ride the
// handshake either as a token query parameter or as the session cookie, since
// browsers cannot set headers on websocket upgrades.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if cookie, err := r.Cookie(h.cfg.Auth.CookieName); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		http.Error(w, "missing auth token", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(token, h.cfg.Auth.JWTSecretKey)
	if err != nil {
		log.Printf("websocket connection rejected: %v", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws.ServeWs(h.hub, h.chatService.HandleSend, claims.UserID, w, r, h.cfg.WebSocket)
}

package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"petpulse/internal/chat"
	"petpulse/internal/config"
)

// SendHandler persists an inbound message and arranges its fan-out. It is
// called with the store-bound message; the implementation must persist before
// any broadcast happens.
type SendHandler func(ctx context.Context, msg *chat.Message, originConn string) error

// Client is a middleman between one websocket connection and the hub. A
// connection belongs to exactly one authenticated user but may subscribe to
// any number of conversations.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound payloads.
	send chan []byte

	// Authenticated user id for this connection.
	UserID string

	// ConnID distinguishes this connection from the same user's other
	// tabs; fan-out uses it to skip the originating connection.
	ConnID string

	// Conversations this connection is subscribed to. Owned by the hub
	// goroutine.
	chats map[string]bool

	handleSend SendHandler
}

// readPump pumps events from the websocket connection into the hub and the
// send handler. One per connection; exits on any transport error.
func (c *Client) readPump(wsCfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(int64(wsCfg.MaxMessageSizeBytes))
	c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error (user %s): %v", c.UserID, err)
			}
			break
		}

		var event chat.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			log.Printf("error decoding event from user %s: %v", c.UserID, err)
			continue
		}

		switch event.Kind {
		case chat.EventSubscribe:
			if event.ChatID == "" {
				continue
			}
			c.hub.subscribe <- subscription{client: c, chatID: event.ChatID}

		case chat.EventUnsubscribe:
			if event.ChatID == "" {
				continue
			}
			c.hub.unsubscribe <- subscription{client: c, chatID: event.ChatID}

		case chat.EventSend:
			if event.Message == nil {
				continue
			}
			msg := *event.Message
			// The sender identity comes from the authenticated
			// connection, never from the payload.
			msg.SenderID = c.UserID
			msg.ChatID = chat.PairID(msg.SenderID, msg.ReceiverID)
			if err := msg.Validate(); err != nil {
				log.Printf("rejecting send from user %s: %v", c.UserID, err)
				continue
			}
			// Persistence failures are logged by the handler and the
			// message is not broadcast; the sender's optimistic copy
			// stays unconfirmed.
			if err := c.handleSend(context.Background(), &msg, c.ConnID); err != nil {
				log.Printf("error handling send from user %s: %v", c.UserID, err)
			}

		case chat.EventReceive:
			// Server-to-client only; ignore if a client sends one.

		default:
			log.Printf("unknown event kind %q from user %s", event.Kind, c.UserID)
		}
	}
}

// writePump pumps payloads from the hub to the websocket connection.
func (c *Client) writePump(wsCfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(wsCfg.PingPeriodSeconds) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(wsCfg.WriteWaitSeconds) * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(wsCfg.WriteWaitSeconds) * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// originAllowed reports whether a handshake Origin may upgrade. Requests
// without an Origin header come from non-browser clients and are allowed;
// browser origins must be on the configured list. The cookie-authenticated
// upgrade would otherwise be open to cross-site hijacking.
func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// ServeWs upgrades an authenticated HTTP request to a websocket connection
// and wires the resulting client into the hub.
func ServeWs(hub *Hub, handleSend SendHandler, userID string, w http.ResponseWriter, r *http.Request, wsCfg config.WebSocketConfig) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), wsCfg.AllowedOrigins)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("websocket upgrade failed:", err)
		return
	}
	client := &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 256),
		UserID:     userID,
		ConnID:     uuid.NewString(),
		chats:      make(map[string]bool),
		handleSend: handleSend,
	}
	client.hub.register <- client

	go client.writePump(wsCfg)
	go client.readPump(wsCfg)
}

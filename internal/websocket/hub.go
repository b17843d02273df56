package websocket

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"petpulse/internal/chat"
	appRedis "petpulse/internal/redis"
)

// presenceRefreshInterval is how often the hub extends the presence TTL for
// every connected user. Must be well under the registry's key TTL so an idle
// but connected user never expires.
const presenceRefreshInterval = 2 * time.Minute

// Hub maintains the set of active clients and fans persisted messages out to
// the connections subscribed to each conversation. The registry is owned by
// the single Run goroutine; all mutation goes through the channels, so no
// lock is needed.
type Hub struct {
	// All connected clients.
	clients map[*Client]bool

	// Per-conversation subscriber sets: chat id -> clients watching it.
	subscribers map[string]map[*Client]bool

	// Register requests from new connections.
	register chan *Client

	// Unregister requests from closing connections.
	unregister chan *Client

	// Subscribe/unsubscribe requests from connected clients.
	subscribe   chan subscription
	unsubscribe chan subscription

	// Persisted messages awaiting fan-out.
	outgoing chan delivery

	// Optional presence registry, updated as connections come and go.
	presence appRedis.PresenceRegistry

	// How often connected users' presence TTLs are refreshed.
	presenceRefreshEvery time.Duration
}

type subscription struct {
	client *Client
	chatID string
}

type delivery struct {
	message *chat.Message
	// originConn identifies the connection the message arrived on. It is
	// never delivered back there: the sender already holds an optimistic
	// local copy, and an echo would render as a duplicate.
	originConn string
}

// NewHub creates a new Hub. presence may be nil.
func NewHub(presence appRedis.PresenceRegistry) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		subscribers: make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		outgoing:    make(chan delivery, 256),
		presence:    presence,

		presenceRefreshEvery: presenceRefreshInterval,
	}
}

// Deliver hands a persisted message to the hub for fan-out to every
// subscriber of its conversation except the originating connection.
// Non-blocking so a full hub never stalls the caller.
func (h *Hub) Deliver(msg *chat.Message, originConn string) {
	select {
	case h.outgoing <- delivery{message: msg, originConn: originConn}:
	default:
		log.Printf("warning: hub outgoing channel full, dropping message %s for chat %s", msg.ID, msg.ChatID)
	}
}

// Run starts the hub loop. It owns the registry maps for its lifetime.
func (h *Hub) Run() {
	log.Println("websocket hub started")
	heartbeat := time.NewTicker(h.presenceRefreshEvery)
	defer heartbeat.Stop()
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.markPresence(client.UserID, true)
			log.Printf("client registered: user %s, conn %s", client.UserID, client.ConnID)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; !ok {
				// Already removed by fan-out; presence was settled then.
				continue
			}
			h.dropClient(client)
			log.Printf("client unregistered: user %s, conn %s", client.UserID, client.ConnID)

		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			set, ok := h.subscribers[sub.chatID]
			if !ok {
				set = make(map[*Client]bool)
				h.subscribers[sub.chatID] = set
			}
			set[sub.client] = true
			sub.client.chats[sub.chatID] = true

		case sub := <-h.unsubscribe:
			if set, ok := h.subscribers[sub.chatID]; ok {
				delete(set, sub.client)
				if len(set) == 0 {
					delete(h.subscribers, sub.chatID)
				}
			}
			delete(sub.client.chats, sub.chatID)

		case out := <-h.outgoing:
			h.fanOut(out)

		case <-heartbeat.C:
			h.refreshPresence()
		}
	}
}

// fanOut sends one persisted message to the conversation's subscribers.
func (h *Hub) fanOut(out delivery) {
	set, ok := h.subscribers[out.message.ChatID]
	if !ok {
		return
	}

	payload, err := json.Marshal(&chat.Event{Kind: chat.EventReceive, Message: out.message})
	if err != nil {
		log.Printf("error marshaling outgoing event for chat %s: %v", out.message.ChatID, err)
		return
	}

	for client := range set {
		if client.ConnID == out.originConn {
			continue
		}
		select {
		case client.send <- payload:
		default:
			// Slow or dead connection; drop it rather than block
			// delivery to everyone else.
			log.Printf("send buffer full for user %s, dropping connection %s", client.UserID, client.ConnID)
			h.dropClient(client)
		}
	}
}

// dropClient removes a client from every registry map, closes its send
// channel and marks the user offline. It is the single removal point, so a
// connection dropped by fan-out settles presence the same way an orderly
// unregister does. Must only be called from the Run goroutine.
func (h *Hub) dropClient(client *Client) {
	for chatID := range client.chats {
		if set, ok := h.subscribers[chatID]; ok {
			delete(set, client)
			if len(set) == 0 {
				delete(h.subscribers, chatID)
			}
		}
	}
	delete(h.clients, client)
	close(client.send)
	h.markPresence(client.UserID, false)
}

// markPresence updates the presence registry off the hub goroutine so a slow
// redis round trip cannot stall fan-out.
func (h *Hub) markPresence(userID string, online bool) {
	if h.presence == nil {
		return
	}
	go func() {
		var err error
		if online {
			err = h.presence.MarkOnline(context.Background(), userID)
		} else {
			err = h.presence.MarkOffline(context.Background(), userID)
		}
		if err != nil {
			log.Printf("presence update failed for user %s: %v", userID, err)
		}
	}()
}

// refreshPresence extends the presence TTL for every distinct connected user.
func (h *Hub) refreshPresence() {
	if h.presence == nil || len(h.clients) == 0 {
		return
	}
	users := make(map[string]bool, len(h.clients))
	for client := range h.clients {
		users[client.UserID] = true
	}
	go func() {
		for userID := range users {
			if err := h.presence.Refresh(context.Background(), userID); err != nil {
				log.Printf("presence refresh failed for user %s: %v", userID, err)
			}
		}
	}()
}

package chatclient

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"petpulse/internal/chat"
)

// Emitter is what a chat session needs from the realtime channel: emitting
// events and observing incoming ones. Sessions receive it injected so tests
// can substitute a fake.
type Emitter interface {
	// Emit sends one event to the server.
	Emit(ev *chat.Event) error
	// Listen registers a handler for incoming events and returns its
	// deregistration function. Every handler sees every incoming event;
	// sessions filter by chat id themselves.
	Listen(handler func(*chat.Event)) (cancel func())
}

// Socket is the process-wide realtime connection, shared by every open chat
// session. It dials lazily on first use and stays up for the life of the
// process; sessions come and go by registering and deregistering handlers.
type Socket struct {
	url   string
	token string

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[int]func(*chat.Event)
	nextID   int

	// Conversations with at least one live subscription, counted per chat
	// id. The server's subscriber set dies with a connection, so these are
	// replayed as subscribe events after every redial.
	subs map[string]int
}

// NewSocket creates a Socket for the given websocket URL and auth token. No
// connection is made until the first Emit or Listen.
func NewSocket(url, token string) *Socket {
	return &Socket{
		url:      url,
		token:    token,
		handlers: make(map[int]func(*chat.Event)),
		subs:     make(map[string]int),
	}
}

// ensureConn dials the server if no connection exists yet. Caller must hold
// s.mu.
func (s *Socket) ensureConn() error {
	if s.conn != nil {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.Dial(s.url+"?token="+s.token, nil)
	if err != nil {
		return fmt.Errorf("dial chat server %s: %w", s.url, err)
	}
	s.conn = conn
	go s.readLoop(conn)

	// Re-establish server-side subscriptions for sessions that were open
	// before the previous connection dropped. A duplicate subscribe is
	// harmless; the server keeps a set.
	for chatID := range s.subs {
		if err := conn.WriteJSON(&chat.Event{Kind: chat.EventSubscribe, ChatID: chatID}); err != nil {
			log.Printf("error resubscribing to chat %s: %v", chatID, err)
		}
	}
	return nil
}

// trackSubscription records subscribe/unsubscribe intent so ensureConn can
// replay live subscriptions after a redial. Caller must hold s.mu.
func (s *Socket) trackSubscription(ev *chat.Event) {
	switch ev.Kind {
	case chat.EventSubscribe:
		s.subs[ev.ChatID]++
	case chat.EventUnsubscribe:
		if s.subs[ev.ChatID]--; s.subs[ev.ChatID] <= 0 {
			delete(s.subs, ev.ChatID)
		}
	}
}

// readLoop dispatches incoming events to every registered handler until the
// connection drops.
func (s *Socket) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Printf("chat connection lost: %v", err)
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			s.mu.Unlock()
			return
		}

		var ev chat.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Printf("error decoding incoming event: %v", err)
			continue
		}

		s.mu.Lock()
		handlers := make([]func(*chat.Event), 0, len(s.handlers))
		for _, h := range s.handlers {
			handlers = append(handlers, h)
		}
		s.mu.Unlock()

		for _, h := range handlers {
			h(&ev)
		}
	}
}

// Emit sends one event, dialing first if needed. Writes are serialized under
// the lock because the websocket allows a single concurrent writer.
func (s *Socket) Emit(ev *chat.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConn(); err != nil {
		return err
	}
	// Track after dialing so the event that triggered the dial is not also
	// replayed; track before writing so a failed write is still replayed
	// once the connection comes back.
	s.trackSubscription(ev)
	if err := s.conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("emit %s event: %w", ev.Kind, err)
	}
	return nil
}

// Listen registers a handler for incoming events.
func (s *Socket) Listen(handler func(*chat.Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConn(); err != nil {
		log.Printf("error connecting for listen: %v", err)
		// Register anyway; a later Emit may re-establish the
		// connection and the handler picks up from there.
	}

	id := s.nextID
	s.nextID++
	s.handlers[id] = handler

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

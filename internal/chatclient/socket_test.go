package chatclient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"petpulse/internal/chat"
)

// wsCapture is a minimal server end for socket tests: it upgrades every
// request, records the connections and funnels decoded events into one
// channel in arrival order.
type wsCapture struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn

	events chan chat.Event
}

func newWsCapture() *wsCapture {
	return &wsCapture{events: make(chan chat.Event, 16)}
}

func (c *wsCapture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.conns = append(c.conns, conn)
	c.mu.Unlock()

	for {
		var ev chat.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		c.events <- ev
	}
}

func (c *wsCapture) closeConn(t *testing.T, i int) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.conns) {
		t.Fatalf("no server connection %d to close", i)
	}
	c.conns[i].Close()
}

func (c *wsCapture) nextEvent(t *testing.T) chat.Event {
	t.Helper()
	select {
	case ev := <-c.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event on server")
		return chat.Event{}
	}
}

func newTestSocket(t *testing.T) (*Socket, *wsCapture) {
	t.Helper()
	capture := newWsCapture()
	srv := httptest.NewServer(capture)
	t.Cleanup(srv.Close)
	return NewSocket("ws"+strings.TrimPrefix(srv.URL, "http"), "test-token"), capture
}

func waitForDisconnect(t *testing.T, s *Socket) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		down := s.conn == nil
		s.mu.Unlock()
		if down {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("socket never noticed the dropped connection")
}

func TestSocketResubscribesAfterRedial(t *testing.T) {
	sock, capture := newTestSocket(t)

	cancel := sock.Listen(func(*chat.Event) {})
	defer cancel()

	chatID := chat.PairID("me", "you")
	if err := sock.Emit(&chat.Event{Kind: chat.EventSubscribe, ChatID: chatID}); err != nil {
		t.Fatalf("emit subscribe: %v", err)
	}
	if ev := capture.nextEvent(t); ev.Kind != chat.EventSubscribe || ev.ChatID != chatID {
		t.Fatalf("server saw %+v, want subscribe for %s", ev, chatID)
	}

	// Kill the transport out from under the socket; the redial must replay
	// the subscription before anything else, or the session silently stops
	// receiving.
	capture.closeConn(t, 0)
	waitForDisconnect(t, sock)

	msg := &chat.Message{
		ID: "m1", ChatID: chatID, SenderID: "me", ReceiverID: "you", Content: "still here?",
	}
	if err := sock.Emit(&chat.Event{Kind: chat.EventSend, ChatID: chatID, Message: msg}); err != nil {
		t.Fatalf("emit send after redial: %v", err)
	}

	if ev := capture.nextEvent(t); ev.Kind != chat.EventSubscribe || ev.ChatID != chatID {
		t.Fatalf("first event after redial = %+v, want replayed subscribe for %s", ev, chatID)
	}
	if ev := capture.nextEvent(t); ev.Kind != chat.EventSend || ev.Message == nil || ev.Message.ID != "m1" {
		t.Fatalf("second event after redial = %+v, want the send", ev)
	}
}

func TestSocketDropsReplayAfterUnsubscribe(t *testing.T) {
	sock, capture := newTestSocket(t)

	cancel := sock.Listen(func(*chat.Event) {})
	defer cancel()

	chatID := chat.PairID("me", "you")
	if err := sock.Emit(&chat.Event{Kind: chat.EventSubscribe, ChatID: chatID}); err != nil {
		t.Fatalf("emit subscribe: %v", err)
	}
	capture.nextEvent(t)
	if err := sock.Emit(&chat.Event{Kind: chat.EventUnsubscribe, ChatID: chatID}); err != nil {
		t.Fatalf("emit unsubscribe: %v", err)
	}
	capture.nextEvent(t)

	capture.closeConn(t, 0)
	waitForDisconnect(t, sock)

	// The closed session must not come back from the dead on redial.
	other := chat.PairID("me", "them")
	if err := sock.Emit(&chat.Event{Kind: chat.EventSubscribe, ChatID: other}); err != nil {
		t.Fatalf("emit subscribe after redial: %v", err)
	}
	if ev := capture.nextEvent(t); ev.ChatID != other {
		t.Fatalf("event after redial is for chat %s, want %s", ev.ChatID, other)
	}
}

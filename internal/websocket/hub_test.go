package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"petpulse/internal/chat"
)

// fakePresenceRegistry counts presence calls per user. Safe for concurrent
// use; the hub updates presence off its own goroutine.
type fakePresenceRegistry struct {
	mu      sync.Mutex
	online  map[string]int
	offline map[string]int
	refresh map[string]int
}

func newFakePresenceRegistry() *fakePresenceRegistry {
	return &fakePresenceRegistry{
		online:  make(map[string]int),
		offline: make(map[string]int),
		refresh: make(map[string]int),
	}
}

func (f *fakePresenceRegistry) MarkOnline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[userID]++
	return nil
}

func (f *fakePresenceRegistry) MarkOffline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline[userID]++
	return nil
}

func (f *fakePresenceRegistry) Refresh(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[userID]++
	return nil
}

func (f *fakePresenceRegistry) IsOnline(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[userID] > f.offline[userID], nil
}

func (f *fakePresenceRegistry) counts(userID string) (online, offline int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[userID], f.offline[userID]
}

func (f *fakePresenceRegistry) refreshCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refresh[userID]
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestClient(hub *Hub, userID, connID string) *Client {
	return &Client{
		hub:    hub,
		send:   make(chan []byte, 8),
		UserID: userID,
		ConnID: connID,
		chats:  make(map[string]bool),
	}
}

func register(t *testing.T, hub *Hub, c *Client, chatIDs ...string) {
	t.Helper()
	hub.register <- c
	for _, id := range chatIDs {
		hub.subscribe <- subscription{client: c, chatID: id}
	}
}

func recvEvent(t *testing.T, c *Client) *chat.Event {
	t.Helper()
	select {
	case payload := <-c.send:
		var ev chat.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			t.Fatalf("decode delivered event: %v", err)
		}
		return &ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

func assertNoDelivery(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected delivery: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFanOutToConversationSubscribers(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	chatID := chat.PairID("me", "you")
	sender := newTestClient(hub, "me", "conn-sender")
	receiver := newTestClient(hub, "you", "conn-receiver")
	bystander := newTestClient(hub, "stranger", "conn-bystander")

	register(t, hub, sender, chatID)
	register(t, hub, receiver, chatID)
	register(t, hub, bystander, chat.PairID("stranger", "friend"))

	msg := &chat.Message{
		ID:         "m1",
		ChatID:     chatID,
		SenderID:   "me",
		ReceiverID: "you",
		Content:    "What's up?",
		Timestamp:  time.Now(),
	}
	hub.Deliver(msg, sender.ConnID)

	ev := recvEvent(t, receiver)
	if ev.Kind != chat.EventReceive {
		t.Errorf("event kind = %q, want %q", ev.Kind, chat.EventReceive)
	}
	if ev.Message == nil || ev.Message.ID != "m1" || ev.Message.Content != "What's up?" {
		t.Errorf("delivered message = %+v, want id m1", ev.Message)
	}

	// The originating connection already holds an optimistic copy and must
	// never receive an echo; subscribers of other conversations must see
	// nothing at all.
	assertNoDelivery(t, sender)
	assertNoDelivery(t, bystander)
}

func TestFanOutReachesSendersOtherTabs(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	chatID := chat.PairID("me", "you")
	tabA := newTestClient(hub, "me", "conn-a")
	tabB := newTestClient(hub, "me", "conn-b")
	register(t, hub, tabA, chatID)
	register(t, hub, tabB, chatID)

	hub.Deliver(&chat.Message{
		ID: "m2", ChatID: chatID, SenderID: "me", ReceiverID: "you", Content: "hi",
	}, tabA.ConnID)

	// Exclusion is per connection, not per user: the same user's second
	// tab has no optimistic copy and needs the broadcast.
	if ev := recvEvent(t, tabB); ev.Message.ID != "m2" {
		t.Errorf("tab B received message %q, want m2", ev.Message.ID)
	}
	assertNoDelivery(t, tabA)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	chatID := chat.PairID("me", "you")
	receiver := newTestClient(hub, "you", "conn-r")
	register(t, hub, receiver, chatID)

	hub.unsubscribe <- subscription{client: receiver, chatID: chatID}
	hub.Deliver(&chat.Message{
		ID: "m3", ChatID: chatID, SenderID: "me", ReceiverID: "you", Content: "gone",
	}, "conn-elsewhere")

	assertNoDelivery(t, receiver)
}

func TestUnregisterClosesSendAndDropsSubscriptions(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	chatID := chat.PairID("me", "you")
	receiver := newTestClient(hub, "you", "conn-r")
	register(t, hub, receiver, chatID)

	hub.unregister <- receiver

	select {
	case _, ok := <-receiver.send:
		if ok {
			t.Fatal("expected send channel closed, got a payload")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed after unregister")
	}

	// Delivery after disconnect must be a no-op, not a panic on a closed
	// channel.
	hub.Deliver(&chat.Message{
		ID: "m4", ChatID: chatID, SenderID: "me", ReceiverID: "you", Content: "late",
	}, "conn-elsewhere")
	time.Sleep(50 * time.Millisecond)
}

func TestSlowConnectionDropMarksOffline(t *testing.T) {
	presence := newFakePresenceRegistry()
	hub := NewHub(presence)
	go hub.Run()

	chatID := chat.PairID("me", "you")
	receiver := newTestClient(hub, "you", "conn-slow")
	receiver.send = make(chan []byte, 1)
	register(t, hub, receiver, chatID)

	waitFor(t, func() bool {
		online, _ := presence.counts("you")
		return online == 1
	}, "receiver marked online")

	// The receiver never drains its send channel, so the second delivery
	// finds the buffer full and the hub drops the connection.
	for i := 0; i < 2; i++ {
		hub.Deliver(&chat.Message{
			ID: "m5", ChatID: chatID, SenderID: "me", ReceiverID: "you", Content: "hi",
		}, "conn-elsewhere")
	}

	waitFor(t, func() bool {
		_, offline := presence.counts("you")
		return offline == 1
	}, "dropped receiver marked offline")

	// A late unregister from the connection's own pumps must not decrement
	// presence a second time.
	hub.unregister <- receiver
	time.Sleep(50 * time.Millisecond)
	online, offline := presence.counts("you")
	if online != 1 || offline != 1 {
		t.Errorf("presence counts = %d online / %d offline, want 1/1", online, offline)
	}
}

func TestPresenceHeartbeatRefreshesConnectedUsers(t *testing.T) {
	presence := newFakePresenceRegistry()
	hub := NewHub(presence)
	hub.presenceRefreshEvery = 10 * time.Millisecond
	go hub.Run()

	client := newTestClient(hub, "me", "conn-idle")
	register(t, hub, client)

	// An idle but connected user must keep getting TTL refreshes.
	waitFor(t, func() bool {
		return presence.refreshCount("me") >= 2
	}, "presence refresh heartbeats")
}

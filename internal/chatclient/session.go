package chatclient

import (
	"context"
	"log"
	"sync"
	"time"

	"petpulse/internal/chat"
)

// Session presents one open conversation as a live-updating ordered message
// list: history loaded over REST, live updates over the shared socket,
// optimistic local echo on send.
type Session struct {
	CurrentUserID string
	TargetUserID  string
	ChatID        string

	emitter Emitter
	now     func() time.Time

	mu       sync.Mutex
	messages []*chat.Message

	cancelOnce sync.Once
	cancel     func()

	// onUpdate, when set, is called after every change to the visible
	// list (the UI uses it to re-render and scroll to the newest entry).
	onUpdate func()
}

// OpenSession computes the canonical chat id for the pair, loads history and
// subscribes to live updates. A failed history load is logged and leaves the
// list empty; it never fails the open, so the user can still send.
func OpenSession(ctx context.Context, currentUserID, targetUserID string, loader HistoryLoader, emitter Emitter, onUpdate func()) *Session {
	s := &Session{
		CurrentUserID: currentUserID,
		TargetUserID:  targetUserID,
		ChatID:        chat.PairID(currentUserID, targetUserID),
		emitter:       emitter,
		now:           time.Now,
		onUpdate:      onUpdate,
	}

	history, err := loader.Load(ctx, s.ChatID)
	if err != nil {
		log.Printf("error loading history for chat %s: %v", s.ChatID, err)
	} else {
		s.messages = history
	}

	cancelListen := emitter.Listen(s.handleEvent)
	s.cancel = cancelListen

	if err := emitter.Emit(&chat.Event{Kind: chat.EventSubscribe, ChatID: s.ChatID}); err != nil {
		log.Printf("error subscribing to chat %s: %v", s.ChatID, err)
	}

	s.notify()
	return s
}

// handleEvent merges one incoming event into the visible list. Events for
// other conversations are discarded; a confirmed copy of a message already
// present (matched by id) is not appended twice.
func (s *Session) handleEvent(ev *chat.Event) {
	if ev.Kind != chat.EventReceive || ev.Message == nil {
		return
	}
	if ev.Message.ChatID != s.ChatID {
		return
	}

	s.mu.Lock()
	if ev.Message.ID != "" {
		for _, existing := range s.messages {
			if existing.ID == ev.Message.ID {
				s.mu.Unlock()
				return
			}
		}
	}
	s.messages = append(s.messages, ev.Message)
	s.mu.Unlock()

	s.notify()
}

// Send emits a message and appends the optimistic local copy immediately,
// without waiting for any round trip. Whitespace-only content is a no-op:
// nothing is emitted and nothing is appended.
func (s *Session) Send(content string) error {
	msg := &chat.Message{
		ChatID:     s.ChatID,
		SenderID:   s.CurrentUserID,
		ReceiverID: s.TargetUserID,
		Content:    content,
		Timestamp:  s.now(),
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	// Fire and forget: no acknowledgment is awaited. If the emit fails
	// the optimistic copy below is the only record of the message.
	if err := s.emitter.Emit(&chat.Event{Kind: chat.EventSend, Message: msg}); err != nil {
		log.Printf("error sending message on chat %s: %v", s.ChatID, err)
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.notify()
	return nil
}

// Messages returns a snapshot of the visible list in display order.
func (s *Session) Messages() []*chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Close unsubscribes from the conversation and deregisters the event
// handler. Safe to call more than once; the shared socket stays up for other
// sessions.
func (s *Session) Close() {
	s.cancelOnce.Do(func() {
		if err := s.emitter.Emit(&chat.Event{Kind: chat.EventUnsubscribe, ChatID: s.ChatID}); err != nil {
			log.Printf("error unsubscribing from chat %s: %v", s.ChatID, err)
		}
		if s.cancel != nil {
			s.cancel()
		}
	})
}

func (s *Session) notify() {
	if s.onUpdate != nil {
		s.onUpdate()
	}
}

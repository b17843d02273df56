package chat

import "fmt"

// EventKind discriminates the closed set of events carried over the realtime
// channel. Both ends switch exhaustively on it instead of dispatching on
// free-form event names.
type EventKind string

const (
	// EventSubscribe registers the connection's interest in a conversation.
	EventSubscribe EventKind = "subscribe"
	// EventUnsubscribe withdraws that interest.
	EventUnsubscribe EventKind = "unsubscribe"
	// EventSend carries a new message from a client to the server.
	EventSend EventKind = "send"
	// EventReceive carries a persisted message from the server to clients,
	// with the store-assigned id filled in.
	EventReceive EventKind = "receive"
)

// Event is the envelope for everything on the realtime channel. ChatID is set
// for subscribe/unsubscribe; Message is set for send/receive.
type Event struct {
	Kind    EventKind `json:"kind"`
	ChatID  string    `json:"chatId,omitempty"`
	Message *Message  `json:"message,omitempty"`
}

// Validate checks that the event carries the payload its kind requires.
func (e *Event) Validate() error {
	switch e.Kind {
	case EventSubscribe, EventUnsubscribe:
		if e.ChatID == "" {
			return fmt.Errorf("chat: %s event requires a chat id", e.Kind)
		}
		return nil
	case EventSend, EventReceive:
		if e.Message == nil {
			return fmt.Errorf("chat: %s event requires a message", e.Kind)
		}
		return e.Message.Validate()
	default:
		return fmt.Errorf("chat: unknown event kind %q", e.Kind)
	}
}

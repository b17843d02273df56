package chat

import (
	"errors"
	"strings"
	"time"
)

// ErrBlankContent is returned when a message's content is empty after
// trimming. Blank messages are rejected before any network or storage call.
var ErrBlankContent = errors.New("chat: message content is blank")

// Message is the wire representation of a chat message, exchanged over the
// websocket channel and the REST API.
//
// ID is assigned by the message store on persistence; a client's optimistic
// local copy carries an empty ID until the confirmed copy arrives. Timestamp
// is client-assigned at send time and used only for display on the optimistic
// path; the authoritative order is the store's own created key.
type Message struct {
	ID         string    `json:"id,omitempty"`
	ChatID     string    `json:"chatId"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate checks the fields a message must carry before it may be sent or
// stored.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.Content) == "" {
		return ErrBlankContent
	}
	if m.SenderID == "" || m.ReceiverID == "" {
		return errors.New("chat: sender and receiver ids are required")
	}
	if m.ChatID == "" {
		return errors.New("chat: chat id is required")
	}
	return nil
}

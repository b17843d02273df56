package models

import (
	"time"

	"petpulse/internal/chat"
)

// Message is a chat message as stored in the database. Rows are append-only:
// no update or delete is exposed anywhere, so a conversation's history is an
// immutable audit trail. ChatID is the canonical pair identifier; a
// conversation exists exactly when at least one row carries its ChatID, so no
// separate conversation table is kept.
type Message struct {
	BaseModel
	ChatID     string    `gorm:"type:varchar(128);index;not null" json:"chatId"`
	SenderID   string    `gorm:"type:varchar(64);index;not null" json:"senderId"`
	ReceiverID string    `gorm:"type:varchar(64);not null" json:"receiverId"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	SentAt     time.Time `gorm:"not null" json:"sentAt"` // client clock, display only
}

// TableName specifies the table name for the Message model.
func (Message) TableName() string {
	return "messages"
}

// ToWire converts the stored row into the wire representation sent to
// clients.
func (m *Message) ToWire() *chat.Message {
	return &chat.Message{
		ID:         m.ID,
		ChatID:     m.ChatID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Timestamp:  m.SentAt,
	}
}

// MessageFromWire builds a storable row from a wire message. The id is left
// for the store to assign.
func MessageFromWire(w *chat.Message) *Message {
	return &Message{
		ChatID:     w.ChatID,
		SenderID:   w.SenderID,
		ReceiverID: w.ReceiverID,
		Content:    w.Content,
		SentAt:     w.Timestamp,
	}
}

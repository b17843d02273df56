package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"petpulse/internal/models"
)

// MessageRepository is the durable append-only log of chat messages. Append
// is the only mutator; messages are never updated or deleted once written.
type MessageRepository interface {
	// Append writes one message scoped under its conversation and assigns
	// the entry id and created ordering key.
	Append(ctx context.Context, message *models.Message) error
	// ListByChatID returns every message of a conversation in ascending
	// created order. A conversation with no messages yields an empty
	// slice, not an error.
	ListByChatID(ctx context.Context, chatID string) ([]*models.Message, error)
}

// gormMessageRepository implements MessageRepository with GORM.
type gormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a GORM-backed MessageRepository.
func NewGormMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

func (r *gormMessageRepository) Append(ctx context.Context, message *models.Message) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("append message to chat %s: %w", message.ChatID, err)
	}
	return nil
}

func (r *gormMessageRepository) ListByChatID(ctx context.Context, chatID string) ([]*models.Message, error) {
	messages := make([]*models.Message, 0)
	// Order by the store's created key, not the client-supplied timestamp,
	// so clock skew between senders cannot reorder history. The id breaks
	// ties between rows created in the same instant.
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages for chat %s: %w", chatID, err)
	}
	return messages, nil
}

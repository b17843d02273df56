package services

import (
	"context"
	"fmt"

	"petpulse/internal/chat"
	"petpulse/internal/models"
	"petpulse/internal/storage"
)

// Deliverer fans a persisted message out to the conversation's live
// subscribers, excluding the originating connection. The hub implements it
// for single-instance deployments; the Kafka deliverer implements it for
// multi-instance ones.
type Deliverer interface {
	Deliver(msg *chat.Message, originConn string)
}

// ChatService owns the chat message lifecycle: validation, persistence and
// hand-off to fan-out. Persistence always completes before fan-out so a
// message can never be broadcast but lost.
type ChatService interface {
	// HandleSend processes a send event from a live connection. On
	// persistence failure nothing is delivered and the error is returned
	// for the caller to log; other connections are unaffected.
	HandleSend(ctx context.Context, msg *chat.Message, originConn string) error

	// Append persists a message without fan-out. This backs the REST
	// append endpoint; the production send path is HandleSend.
	Append(ctx context.Context, msg *chat.Message) (msgID string, err error)

	// History returns a conversation's messages in the store's ascending
	// created order. Empty, not an error, for an unknown conversation.
	History(ctx context.Context, chatID string) ([]*chat.Message, error)
}

// chatService implements ChatService over a MessageRepository.
type chatService struct {
	msgRepo   storage.MessageRepository
	deliverer Deliverer
}

// NewChatService creates a ChatService. deliverer may be nil for callers that
// only read or append (the REST API server).
func NewChatService(msgRepo storage.MessageRepository, deliverer Deliverer) ChatService {
	return &chatService{msgRepo: msgRepo, deliverer: deliverer}
}

func (s *chatService) HandleSend(ctx context.Context, msg *chat.Message, originConn string) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	row := models.MessageFromWire(msg)
	if err := s.msgRepo.Append(ctx, row); err != nil {
		return fmt.Errorf("persist message for chat %s: %w", msg.ChatID, err)
	}

	if s.deliverer != nil {
		// The broadcast copy carries the store-assigned id so receiving
		// sessions can reconcile it against optimistic entries.
		s.deliverer.Deliver(row.ToWire(), originConn)
	}
	return nil
}

func (s *chatService) Append(ctx context.Context, msg *chat.Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	row := models.MessageFromWire(msg)
	if err := s.msgRepo.Append(ctx, row); err != nil {
		return "", fmt.Errorf("persist message for chat %s: %w", msg.ChatID, err)
	}
	return row.ID, nil
}

func (s *chatService) History(ctx context.Context, chatID string) ([]*chat.Message, error) {
	rows, err := s.msgRepo.ListByChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load history for chat %s: %w", chatID, err)
	}

	messages := make([]*chat.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, row.ToWire())
	}
	return messages, nil
}

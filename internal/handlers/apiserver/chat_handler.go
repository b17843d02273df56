package apiserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"petpulse/internal/chat"
	"petpulse/internal/services"
)

// ChatHandler serves conversation history and the REST append endpoint. The
// live send path goes over the websocket channel; the POST here exists so
// history can be written without a socket.
type ChatHandler struct {
	chatService services.ChatService
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(chatService services.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// GetChatHandler returns every message of a conversation in ascending send
// order. A conversation nobody has written to yet yields an empty list.
func (h *ChatHandler) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["chatID"]

	messages, err := h.chatService.History(r.Context(), chatID)
	if err != nil {
		log.Printf("error loading history for chat %s: %v", chatID, err)
		writeJSONError(w, "failed to load messages", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"messages": messages,
	})
}

// appendMessageRequest is the POST body; chatId and id are never taken from
// the body (the path and the store own those).
type appendMessageRequest struct {
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// PostChatHandler appends one message to a conversation and returns the
// store-assigned id.
func (h *ChatHandler) PostChatHandler(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["chatID"]

	var req appendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	// The path's chat id must be the canonical one for the pair, or reads
	// keyed on the pair would never find this message.
	if canonical := chat.PairID(req.SenderID, req.ReceiverID); chatID != canonical {
		writeJSONError(w, fmt.Sprintf("chat id %s does not match participants", chatID), http.StatusBadRequest)
		return
	}

	msg := &chat.Message{
		ChatID:     chatID,
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Timestamp:  req.Timestamp,
	}

	msgID, err := h.chatService.Append(r.Context(), msg)
	if err != nil {
		if errors.Is(err, chat.ErrBlankContent) {
			writeJSONError(w, "message content is blank", http.StatusBadRequest)
			return
		}
		log.Printf("error appending message to chat %s: %v", chatID, err)
		writeJSONError(w, "failed to store message", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"msgId":   msgID,
	})
}

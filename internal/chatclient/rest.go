package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"petpulse/internal/chat"
)

// HistoryLoader fetches a conversation's persisted history.
type HistoryLoader interface {
	Load(ctx context.Context, chatID string) ([]*chat.Message, error)
}

// httpHistoryLoader loads history over the chat REST API.
type httpHistoryLoader struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPHistoryLoader creates a HistoryLoader against the API server at
// baseURL, authenticating with the given bearer token.
func NewHTTPHistoryLoader(baseURL, token string) HistoryLoader {
	return &httpHistoryLoader{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (l *httpHistoryLoader) Load(ctx context.Context, chatID string) ([]*chat.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/api/chats/"+chatID, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+l.token)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history for chat %s: %w", chatID, err)
	}
	defer resp.Body.Close()

	var body struct {
		Success  bool            `json:"success"`
		Messages []*chat.Message `json:"messages"`
		Error    string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode history for chat %s: %w", chatID, err)
	}
	if !body.Success {
		return nil, fmt.Errorf("history load for chat %s failed: %s", chatID, body.Error)
	}
	return body.Messages, nil
}

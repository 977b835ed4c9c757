package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier delivers a message to a chat destination. Delivery is
// best-effort: callers log errors and move on, they never fail a job
// over a lost notification.
type Notifier interface {
	Send(chatID int64, text string) error
}

// ChatGatewayNotifier posts messages to the chat-platform gateway, which
// owns rendering, keyboards and retries on its side.
type ChatGatewayNotifier struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewChatGatewayNotifier(baseURL, token string) *ChatGatewayNotifier {
	return &ChatGatewayNotifier{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type chatMessage struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func (n *ChatGatewayNotifier) Send(chatID int64, text string) error {
	body, err := json.Marshal(chatMessage{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, n.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.Token)

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("send chat message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("chat gateway returned %d for chat %d", resp.StatusCode, chatID)
	}
	return nil
}

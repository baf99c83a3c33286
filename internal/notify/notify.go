package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"buildrelay/internal/engine"
	"buildrelay/internal/logger"
)

// Notifier delivers a human-readable message to a chat room
type Notifier interface {
	Speak(ctx context.Context, message, room string) error
}

// Webhook posts messages to a chat service incoming-webhook endpoint
type Webhook struct {
	url         string
	defaultRoom string
	client      *http.Client
}

// NewWebhook creates a Webhook notifier. Messages without a room go to defaultRoom.
func NewWebhook(url, defaultRoom string) *Webhook {
	return &Webhook{
		url:         url,
		defaultRoom: defaultRoom,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

type webhookPayload struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

// Speak sends message to room
func (n *Webhook) Speak(ctx context.Context, message, room string) error {
	if room == "" {
		room = n.defaultRoom
	}

	body, err := json.Marshal(webhookPayload{Room: room, Message: message})
	if err != nil {
		return fmt.Errorf("%w: %w", engine.ErrNotification, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", engine.ErrNotification, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to send request: %w", engine.ErrNotification, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: chat service returned status %d: %s", engine.ErrNotification, resp.StatusCode, string(respBody))
	}

	logger.Debug("Chat message sent", "room", room)
	return nil
}

// Log writes messages to the application log instead of a chat service
type Log struct{}

// Speak logs message
func (Log) Speak(_ context.Context, message, room string) error {
	logger.Info("Chat message", "room", room, "message", message)
	return nil
}

// New returns a Webhook notifier when url is set, a Log notifier otherwise
func New(url, defaultRoom string) Notifier {
	if url == "" {
		return Log{}
	}
	return NewWebhook(url, defaultRoom)
}

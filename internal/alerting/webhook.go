package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookChannel posts notifications as JSON to an HTTP endpoint.
type WebhookChannel struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// webhookPayload is the JSON body posted by WebhookChannel.
type webhookPayload struct {
	Subject string  `json:"subject"`
	Message string  `json:"message"`
	Alert   *Record `json:"alert,omitempty"`
}

// NewWebhookChannel creates a new webhook channel.
func NewWebhookChannel(url string, headers map[string]string) *WebhookChannel {
	return &WebhookChannel{
		url:     url,
		headers: headers,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the channel name.
func (w *WebhookChannel) Name() string {
	return "webhook"
}

// Send posts the notification.
func (w *WebhookChannel) Send(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(webhookPayload{
		Subject: n.Subject,
		Message: n.Body,
		Alert:   n.Record,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(msg))
	}

	return nil
}

// Close releases idle connections.
func (w *WebhookChannel) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

package faults

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Notifier delivers a fault record to an external sink.
type Notifier interface {
	Notify(ctx context.Context, rec Record) error
}

// envelope is the JSON body posted to the webhook.
type envelope struct {
	Type string `json:"type"`
	Data Record `json:"data"`
}

// WebhookNotifier posts records to an HTTP endpoint with a bearer token.
type WebhookNotifier struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhookNotifier creates a notifier for url. A zero timeout means 5 seconds.
func NewWebhookNotifier(url, token string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify posts {type:"error_notification", data:rec}. Non-2xx responses are errors.
func (w *WebhookNotifier) Notify(ctx context.Context, rec Record) error {
	body, err := json.Marshal(envelope{Type: "error_notification", Data: rec})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %s", resp.Status)
	}
	return nil
}

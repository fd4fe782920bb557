package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Webhook posts run results and health alerts to a configured URL. A Webhook
// with an empty URL is valid and drops every notification.
type Webhook struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhook creates a webhook notifier. url may be empty.
func NewWebhook(url string, logger zerolog.Logger) *Webhook {
	return &Webhook{
		url: url,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With().Str("component", "notifier").Logger(),
	}
}

// Notify posts the payload as JSON with a small retry budget. Delivery is
// best-effort: the returned error is for logging, never for aborting a run.
func (w *Webhook) Notify(ctx context.Context, payload interface{}) error {
	if w.url == "" {
		return nil
	}
	return w.notifyWithRetry(ctx, payload, 2)
}

func (w *Webhook) notifyWithRetry(ctx context.Context, payload interface{}, maxRetries int) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := w.post(ctx, payload); err != nil {
			lastErr = err
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			w.logger.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("max_attempts", maxRetries+1).
				Dur("backoff", backoff).
				Msg("Webhook delivery failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("all %d webhook attempts exhausted: %w", maxRetries+1, lastErr)
}

func (w *Webhook) post(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

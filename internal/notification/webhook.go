// Package notification publishes "workflow changed" events to an external
// consumer. Delivery is at-least-once: a failed POST is retried a bounded
// number of times and then logged; the triggering command never fails on a
// publish error.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/AamirKnight/Streamline/internal/application/port"
	"github.com/AamirKnight/Streamline/internal/domain/event"
	"go.uber.org/zap"
)

// Config holds webhook notifier configuration
type Config struct {
	Enabled    bool
	WebhookURL string
	Timeout    time.Duration
	MaxRetries int
}

// WebhookNotifier implements port.EventPublisher over an HTTP webhook
type WebhookNotifier struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(cfg Config, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Publish delivers one event to the configured webhook. The event id stays
// stable across retries so consumers can deduplicate.
func (n *WebhookNotifier) Publish(ctx context.Context, e *event.Event) error {
	if !n.cfg.Enabled {
		return nil
	}

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.cfg.MaxRetries; attempt++ {
		if err := n.post(ctx, body); err != nil {
			lastErr = err
			n.logger.Error("Webhook delivery attempt failed",
				zap.String("event_id", e.ID),
				zap.String("event_type", e.Type.String()),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		n.logger.Info("Workflow event published",
			zap.String("event_id", e.ID),
			zap.String("event_type", e.Type.String()),
			zap.String("document_id", e.DocumentID))
		return nil
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", n.cfg.MaxRetries+1, lastErr)
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Verify interface compliance
var _ port.EventPublisher = (*WebhookNotifier)(nil)

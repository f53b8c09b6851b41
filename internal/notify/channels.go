package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"autotrader/internal/config"
	"autotrader/internal/models"
)

// LogChannel writes alerts to the structured log. Always enabled; it is
// the delivery floor when no external channel is configured.
type LogChannel struct {
	logger zerolog.Logger
}

// NewLogChannel creates the log channel.
func NewLogChannel(logger zerolog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string    { return "log" }
func (c *LogChannel) IsEnabled() bool { return true }

func (c *LogChannel) Send(ctx context.Context, alert models.Alert) error {
	event := c.logger.Info()
	switch alert.Severity {
	case models.AlertWarning:
		event = c.logger.Warn()
	case models.AlertCritical:
		event = c.logger.Error()
	}
	event.Str("severity", string(alert.Severity)).
		Fields(alert.Details).
		Msg(alert.Message)
	return nil
}

// WebhookChannel POSTs alerts as JSON to a configured URL.
type WebhookChannel struct {
	cfg    config.WebhookConfig
	client *http.Client
}

// NewWebhookChannel creates the webhook channel.
func NewWebhookChannel(cfg config.WebhookConfig) *WebhookChannel {
	return &WebhookChannel{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *WebhookChannel) Name() string    { return "webhook" }
func (c *WebhookChannel) IsEnabled() bool { return c.cfg.Enabled && c.cfg.URL != "" }

func (c *WebhookChannel) Send(ctx context.Context, alert models.Alert) error {
	payload := map[string]interface{}{
		"severity":  string(alert.Severity),
		"message":   alert.Message,
		"details":   alert.Details,
		"timestamp": alert.Timestamp.Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Package notify fans alerts out to the configured channels. Delivery is
// asynchronous and best-effort: a failing channel never blocks the safety
// monitor.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"autotrader/internal/config"
	"autotrader/internal/logging"
	"autotrader/internal/models"
)

// Channel is one alert delivery target.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert models.Alert) error
	IsEnabled() bool
}

// sendTimeout bounds a single channel delivery.
const sendTimeout = 10 * time.Second

// Dispatcher implements the safety monitor's AlertSink over a channel set.
type Dispatcher struct {
	channels []Channel
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher builds the channel set from configuration. The log channel
// is always present; the webhook channel only when configured.
func NewDispatcher(cfg config.NotificationConfig, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{logger: logging.WithComponent(logger, "notify")}
	d.channels = append(d.channels, NewLogChannel(logger))
	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		d.channels = append(d.channels, NewWebhookChannel(cfg.Webhook))
	}
	return d
}

// Send delivers the alert to every enabled channel, each on its own
// goroutine.
func (d *Dispatcher) Send(alert models.Alert) {
	for _, ch := range d.channels {
		if !ch.IsEnabled() {
			continue
		}
		ch := ch
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			if err := ch.Send(ctx, alert); err != nil {
				d.logger.Warn().Err(err).Str("channel", ch.Name()).Msg("alert delivery failed")
			}
		}()
	}
}

// Flush waits for in-flight deliveries, used at shutdown.
func (d *Dispatcher) Flush() {
	d.wg.Wait()
}

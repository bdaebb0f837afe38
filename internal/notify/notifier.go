// Package notify delivers flag lifecycle events to external systems.
// Delivery is best-effort: the orchestrator logs failures and moves on.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/flagkeeper/internal/config"
	"github.com/dmitrijs2005/flagkeeper/internal/models"
)

const EventFlagCreated = "flag.created"

// Event is the payload delivered to notification targets.
type Event struct {
	Type     string       `json:"type"`
	Flag     *models.Flag `json:"flag"`
	Occurred time.Time    `json:"occurred"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NoopNotifier discards events. Used when no notification target is
// configured.
type NoopNotifier struct{}

func (n *NoopNotifier) Notify(ctx context.Context, event Event) error {
	return nil
}

// FromConfig selects a Notifier implementation based on the configured
// target. The AMQP notifier is returned unconnected; callers must Connect
// before use.
func FromConfig(cfg *config.Config) (Notifier, error) {
	switch cfg.Notifier {
	case config.NotifierWebhook:
		return NewWebhookNotifier(cfg.WebhookURL, cfg.SecretKey, cfg.TokenValidityDuration), nil
	case config.NotifierAMQP:
		return NewAMQPNotifier(AMQPConfig{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.AMQPExchange,
			RoutingKey: cfg.AMQPRoutingKey,
		}), nil
	case config.NotifierNone:
		return &NoopNotifier{}, nil
	default:
		return nil, fmt.Errorf("unknown notifier type %q", cfg.Notifier)
	}
}

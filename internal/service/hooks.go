// Package service holds the engine's two periodic tasks: the market
// provisioner and the bet settlement reconciler.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/boldengine/internal/domain"
	"github.com/alanyoungcy/boldengine/internal/metrics"
)

// Alerter sends an operator alert. *notify.Notifier satisfies it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Hooks are the optional side channels a pass reports through. Any field may
// be nil. Hook failures are logged and never change an item's outcome.
type Hooks struct {
	Audit   domain.AuditStore
	Events  domain.EventPublisher
	Alerts  Alerter
	Metrics *metrics.Recorder
}

func (h Hooks) audit(ctx context.Context, logger *slog.Logger, event string, detail map[string]any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Log(ctx, event, detail); err != nil {
		logger.WarnContext(ctx, "audit log write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (h Hooks) publish(ctx context.Context, logger *slog.Logger, channel string, payload map[string]any) {
	if h.Events == nil {
		return
	}
	payload["event"] = channel
	payload["at"] = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(payload)
	if err != nil {
		logger.WarnContext(ctx, "event encode failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	if err := h.Events.Publish(ctx, channel, data); err != nil {
		logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (h Hooks) alert(ctx context.Context, logger *slog.Logger, event, title, message string) {
	if h.Alerts == nil {
		return
	}
	if err := h.Alerts.Notify(ctx, event, title, message); err != nil {
		logger.WarnContext(ctx, "alert delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func concurrencyOrDefault(n int) int {
	if n <= 0 {
		return 4
	}
	return n
}

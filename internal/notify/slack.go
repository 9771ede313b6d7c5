// Package notify posts operational failure notifications to Slack
// (§[DOMAIN] Messaging / ops notification). Grounded directly on
// pkg/slack/notifier.go's shape: a client that is nil when disabled,
// turning every post into a no-op rather than an error.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/wisbric/admissiond/internal/telemetry"
)

// Notifier posts ops failure notifications to a single configured channel.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier builds a Notifier. If botToken or channel is empty, the
// returned Notifier is disabled and every Notify* call is a no-op.
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the notifier has a token and channel configured.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

func (n *Notifier) post(ctx context.Context, kind, text string) {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, dropping notification", "type", kind)
		return
	}
	if _, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false)); err != nil {
		n.logger.Error("posting slack notification", "type", kind, "error", err)
		return
	}
	telemetry.SlackNotificationsTotal.WithLabelValues(kind).Inc()
}

// NotifyGenerationFailed reports a generation the worker marked failed
// permanently: retry cap reached, limit exhausted on re-check, no generator
// for the route, or a non-transient provider error.
func (n *Notifier) NotifyGenerationFailed(ctx context.Context, generationID, draftID, reason string) {
	n.post(ctx, "generation_failed", fmt.Sprintf(
		":x: generation `%s` (draft `%s`) failed permanently: %s", generationID, draftID, reason))
}

// NotifyCircuitOpen reports a provider circuit tripping open
// (internal/generator.NewCircuitBreakerGenerator's onOpen hook).
func (n *Notifier) NotifyCircuitOpen(ctx context.Context, provider string) {
	n.post(ctx, "circuit_open", fmt.Sprintf(
		":warning: circuit breaker opened for provider `%s`", provider))
}

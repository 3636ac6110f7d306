// Package slack sends operational notifications to a Slack channel or
// incoming webhook, with retry and rate limiting applied.
package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"github.com/opscribe/opscribe/pkg/retry"
)

// poster is the slice of the Slack API client the notifier depends on.
type poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Config selects bot-token or webhook delivery. At least one of BotToken or
// WebhookURL must be set; Channel is required with BotToken.
type Config struct {
	BotToken   string
	Channel    string
	WebhookURL string

	// MessagesPerMinute throttles outbound notifications. Zero means a
	// conservative default of 30.
	MessagesPerMinute int

	Retry retry.Policy
}

type Notifier struct {
	api        poster
	channel    string
	webhookURL string
	limiter    *rate.Limiter
	policy     retry.Policy
}

// New validates the configuration and builds a notifier.
func New(cfg Config) (*Notifier, error) {
	if cfg.BotToken == "" && cfg.WebhookURL == "" {
		return nil, fmt.Errorf("slack: bot token or webhook url is required")
	}
	if cfg.BotToken != "" && cfg.Channel == "" {
		return nil, fmt.Errorf("slack: channel is required with a bot token")
	}

	perMinute := cfg.MessagesPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}

	n := &Notifier{
		channel:    cfg.Channel,
		webhookURL: cfg.WebhookURL,
		limiter:    rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		policy:     cfg.Retry,
	}
	if cfg.BotToken != "" {
		n.api = slack.New(cfg.BotToken)
	}
	return n, nil
}

// newWithPoster injects the API client. For tests.
func newWithPoster(api poster, channel string, policy retry.Policy) *Notifier {
	return &Notifier{
		api:     api,
		channel: channel,
		limiter: rate.NewLimiter(rate.Inf, 1),
		policy:  policy,
	}
}

// Notify posts a text message to the configured channel, retrying transient
// failures with exponential backoff.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	if n.api == nil {
		return n.NotifyWebhook(ctx, &slack.WebhookMessage{Text: text})
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	return retry.Do(ctx, n.policy, func(ctx context.Context) error {
		_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
		return err
	})
}

// NotifyWebhook delivers a message through the configured incoming webhook.
func (n *Notifier) NotifyWebhook(ctx context.Context, msg *slack.WebhookMessage) error {
	if n.webhookURL == "" {
		return fmt.Errorf("slack: webhook url not configured")
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	return retry.Do(ctx, n.policy, func(ctx context.Context) error {
		return slack.PostWebhookContext(ctx, n.webhookURL, msg)
	})
}

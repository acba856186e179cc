package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Webhook forwards pushes to an HTTP relay that owns the real provider credentials.
type Webhook struct {
	url string
	cli *resty.Client
}

type webhookPayload struct {
	Token string `json:"token"`
	Message
}

func NewWebhook(cfg Config) (*Webhook, error) {
	if cfg.WebhookURL == "" {
		return nil, errors.New("PUSH_WEBHOOK_URL is required for the webhook provider")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	cli := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Webhook{url: cfg.WebhookURL, cli: cli}, nil
}

func (w *Webhook) Send(ctx context.Context, token string, msg Message) error {
	resp, err := w.cli.R().
		SetContext(ctx).
		SetBody(webhookPayload{Token: token, Message: msg}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("push relay: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push relay returned %s", resp.Status())
	}
	return nil
}

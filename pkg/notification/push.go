package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config 推送通道配置
type Config struct {
	Provider        string        `env:"PUSH_PROVIDER"` // log | fcm | webhook
	CredentialsFile string        `env:"FCM_CREDENTIALS_FILE"`
	WebhookURL      string        `env:"PUSH_WEBHOOK_URL"`
	Timeout         time.Duration `env:"PUSH_TIMEOUT"`
}

// Message is the provider-neutral push payload.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Sender delivers one message to one device token.
// A returned error means this delivery failed; callers decide whether to retry.
type Sender interface {
	Send(ctx context.Context, token string, msg Message) error
}

const (
	SafetyAlertTitle = "Safety Alert"
	SafetyAlertBody  = "Are you safe? Please respond."
)

// SafetyAlert builds the "are you safe" prompt for a pending subject.
func SafetyAlert(referenceID string) Message {
	return Message{
		Title: SafetyAlertTitle,
		Body:  SafetyAlertBody,
		Data:  map[string]string{"referenceId": referenceID},
	}
}

// NewSender picks the transport from cfg.Provider.
func NewSender(ctx context.Context, cfg Config, lg *zap.Logger) (Sender, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "log":
		return NewLogSender(lg), nil
	case "fcm":
		return NewFCMFromCredentials(ctx, cfg)
	case "webhook":
		return NewWebhook(cfg)
	default:
		return nil, fmt.Errorf("unsupported push provider: %s", cfg.Provider)
	}
}

// LogSender only records the push; used in development and when no provider is configured.
type LogSender struct {
	lg *zap.Logger
}

func NewLogSender(lg *zap.Logger) *LogSender {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &LogSender{lg: lg}
}

func (s *LogSender) Send(ctx context.Context, token string, msg Message) error {
	s.lg.Info("push (log provider)",
		zap.String("token", maskToken(token)),
		zap.String("title", msg.Title),
		zap.Any("data", msg.Data),
	)
	return nil
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}

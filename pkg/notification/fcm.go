package notification

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMClient is the subset of *messaging.Client used here; tests inject a fake.
type FCMClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCM struct {
	cli FCMClient
}

func NewFCM(cli FCMClient) *FCM { return &FCM{cli: cli} }

// NewFCMFromCredentials initialises the Firebase app from a service account file.
func NewFCMFromCredentials(ctx context.Context, cfg Config) (*FCM, error) {
	if cfg.CredentialsFile == "" {
		return nil, errors.New("FCM_CREDENTIALS_FILE is required for the fcm provider")
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	cli, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return NewFCM(cli), nil
}

func (f *FCM) Send(ctx context.Context, token string, msg Message) error {
	if f.cli == nil {
		return errors.New("FCM client not configured")
	}
	if token == "" {
		return errors.New("empty device token")
	}
	_, err := f.cli.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}

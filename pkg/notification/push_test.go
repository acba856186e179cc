package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFCMClient struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeFCMClient) Send(ctx context.Context, m *messaging.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, m)
	return "projects/p/messages/1", nil
}

func TestFCMSendBuildsSafetyAlert(t *testing.T) {
	cli := &fakeFCMClient{}
	s := NewFCM(cli)

	require.NoError(t, s.Send(context.Background(), "tok-123", SafetyAlert("7")))
	require.Len(t, cli.sent, 1)

	m := cli.sent[0]
	assert.Equal(t, "tok-123", m.Token)
	assert.Equal(t, "Safety Alert", m.Notification.Title)
	assert.Equal(t, "Are you safe? Please respond.", m.Notification.Body)
	assert.Equal(t, map[string]string{"referenceId": "7"}, m.Data)
}

func TestFCMSendErrors(t *testing.T) {
	assert.Error(t, NewFCM(nil).Send(context.Background(), "t", SafetyAlert("1")))
	assert.Error(t, NewFCM(&fakeFCMClient{}).Send(context.Background(), "", SafetyAlert("1")))

	err := NewFCM(&fakeFCMClient{err: errors.New("quota exceeded")}).Send(context.Background(), "t", SafetyAlert("1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestWebhookSend(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s, err := NewWebhook(Config{WebhookURL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), "tok-9", SafetyAlert("9")))

	assert.Equal(t, "tok-9", got.Token)
	assert.Equal(t, SafetyAlertTitle, got.Title)
	assert.Equal(t, "9", got.Data["referenceId"])
}

func TestWebhookSendNon2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, err := NewWebhook(Config{WebhookURL: srv.URL})
	require.NoError(t, err)
	err = s.Send(context.Background(), "tok", SafetyAlert("1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNewSender(t *testing.T) {
	ctx := context.Background()

	s, err := NewSender(ctx, Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)
	assert.NoError(t, s.Send(ctx, "abcdefghijkl", SafetyAlert("1")))

	_, err = NewSender(ctx, Config{Provider: "webhook"}, nil)
	assert.Error(t, err)

	_, err = NewSender(ctx, Config{Provider: "fcm"}, nil)
	assert.Error(t, err)

	_, err = NewSender(ctx, Config{Provider: "pigeon"}, nil)
	assert.Error(t, err)
}

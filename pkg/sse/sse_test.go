package sse

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatEvent(t *testing.T) {
	msg, err := formatEvent(Event{Name: "position", Data: map[string]float64{"lat": 12.9}})
	require.NoError(t, err)
	assert.Equal(t, "event: position\ndata: {\"lat\":12.9}\n\n", msg)

	msg, err = formatEvent(Event{Data: "x"})
	require.NoError(t, err)
	assert.Equal(t, "data: \"x\"\n\n", msg)
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	h := NewHub(time.Second)
	h.Publish("nobody", Event{Name: "position", Data: 1})
	assert.Equal(t, 0, h.Subscribers("nobody"))
}

func TestServeDeliversTopicEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(time.Minute)

	r := gin.New()
	r.GET("/stream/:topic", func(c *gin.Context) {
		_ = h.Serve(c, c.Param("topic"), nil, func(ev string) bool {
			return strings.HasPrefix(ev, "event: resolved")
		})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream/s1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return h.Subscribers("s1") == 1 }, 2*time.Second, 10*time.Millisecond)

	h.Publish("other", Event{Name: "position", Data: "ignored"})
	h.Publish("s1", Event{Name: "position", Data: map[string]float64{"lat": 1}})
	h.Publish("s1", Event{Name: "resolved", Data: map[string]string{"status": "resolved"}})

	var events []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
	}
	assert.Equal(t, []string{"position", "resolved"}, events)
	require.Eventually(t, func() bool { return h.Subscribers("s1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeDeliversEventsPublishedDuringAdmit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(time.Minute)

	r := gin.New()
	r.GET("/stream/:topic", func(c *gin.Context) {
		topic := c.Param("topic")
		_ = h.Serve(c, topic, func() error {
			h.Publish(topic, Event{Name: "resolved", Data: map[string]string{"status": "resolved"}})
			return nil
		}, func(ev string) bool {
			return strings.HasPrefix(ev, "event: resolved")
		})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream/s2", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event: resolved\n")
	assert.Equal(t, 0, h.Subscribers("s2"))
}

func TestServeAdmitErrorWritesNothing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(time.Minute)
	denied := errors.New("gone")

	var got error
	r := gin.New()
	r.GET("/stream/:topic", func(c *gin.Context) {
		got = h.Serve(c, c.Param("topic"), func() error {
			assert.Equal(t, 1, h.Subscribers("s3"))
			return denied
		}, nil)
		if got != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": got.Error()})
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/stream/s3", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, denied, got)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEqual(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, 0, h.Subscribers("s3"))
}

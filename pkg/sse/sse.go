package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data interface{}
}

type subscriber struct {
	id    uint64
	topic string
	ch    chan string
}

// Hub fans events out to subscribers grouped by topic.
// Slow subscribers drop events instead of blocking publishers.
type Hub struct {
	mu       sync.RWMutex
	nextID   uint64
	topics   map[string]map[uint64]*subscriber
	interval time.Duration
	retryMs  int
}

func NewHub(interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Hub{topics: make(map[string]map[uint64]*subscriber), interval: interval, retryMs: 5000}
}

func (h *Hub) subscribe(topic string) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &subscriber{id: h.nextID, topic: topic, ch: make(chan string, 64)}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[uint64]*subscriber)
	}
	h.topics[topic][s.id] = s
	return s
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs := h.topics[s.topic]; subs != nil {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(h.topics, s.topic)
		}
	}
}

// Subscribers reports how many streams are attached to topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Publish encodes ev once and queues it for every subscriber of topic.
func (h *Hub) Publish(topic string, ev Event) {
	msg, err := formatEvent(ev)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.topics[topic] {
		select {
		case s.ch <- msg:
		default:
		}
	}
}

func formatEvent(ev Event) (string, error) {
	b, err := json.Marshal(ev.Data)
	if err != nil {
		return "", err
	}
	if ev.Name == "" {
		return fmt.Sprintf("data: %s\n\n", b), nil
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Name, b), nil
}

// Serve subscribes to topic and then calls admit, so an event published
// while admit runs is still delivered. A non-nil error from admit is
// returned before anything is written. Otherwise Serve streams until the
// client disconnects or stop returns true for a delivered event.
func (h *Hub) Serve(c *gin.Context, topic string, admit func() error, stop func(ev string) bool) error {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return errors.New("streaming unsupported")
	}

	s := h.subscribe(topic)
	defer h.unsubscribe(s)

	if admit != nil {
		if err := admit(); err != nil {
			return err
		}
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.retryMs)
	flusher.Flush()

	ping := time.NewTicker(h.interval)
	defer ping.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return nil
		case <-ping.C:
			fmt.Fprintf(c.Writer, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case msg := <-s.ch:
			c.Writer.Write([]byte(msg))
			flusher.Flush()
			if stop != nil && stop(msg) {
				return nil
			}
		}
	}
}

package realtime

import (
	"context"
	"sync"
)

// Hub is an in-process topic broker. Publishing never blocks: a subscriber
// whose buffer is full misses the message.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	onDrop func(topic string)
}

// Subscription receives messages for one topic on C until Close
type Subscription struct {
	Topic string
	C     <-chan []byte

	ch   chan []byte
	hub  *Hub
	once sync.Once
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// OnDrop registers a callback invoked for every message dropped on a full subscriber
func (h *Hub) OnDrop(fn func(topic string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDrop = fn
}

func (h *Hub) Subscribe(topic string) *Subscription {
	ch := make(chan []byte, h.buffer)
	sub := &Subscription{Topic: topic, C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*Subscription]struct{})
	}
	h.subs[topic][sub] = struct{}{}
	return sub
}

// Publish implements Publisher
func (h *Hub) Publish(_ context.Context, topic string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[topic] {
		select {
		case sub.ch <- payload:
		default:
			if h.onDrop != nil {
				h.onDrop(topic)
			}
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions on topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[s.Topic], s)
		if len(h.subs[s.Topic]) == 0 {
			delete(h.subs, s.Topic)
		}
		close(s.ch)
	})
}

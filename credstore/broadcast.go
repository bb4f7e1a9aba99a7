package credstore

import (
	"context"
	"sync"
)

// DefaultChannel is the broadcast channel name used when none is configured.
const DefaultChannel = "key_value_storage"

// Broadcaster delivers string payloads to every subscriber of a named channel,
// including subscribers owned by the publisher.
type Broadcaster interface {
	Publish(ctx context.Context, channel, payload string) error
	// Subscribe registers fn for channel and returns a function that removes it.
	// fn must not block.
	Subscribe(ctx context.Context, channel string, fn func(payload string)) (unsubscribe func(), err error)
}

// Hub is an in-process Broadcaster. Publish calls subscribers synchronously.
type Hub struct {
	mu       sync.RWMutex
	next     uint64
	channels map[string]map[uint64]func(string)
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[uint64]func(string))}
}

// DefaultHub returns the process-wide Hub. It is created on first use and lives for
// the lifetime of the process.
var DefaultHub = sync.OnceValue(NewHub)

func (h *Hub) Publish(_ context.Context, channel, payload string) error {
	h.mu.RLock()
	subs := make([]func(string), 0, len(h.channels[channel]))
	for _, fn := range h.channels[channel] {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		fn(payload)
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, channel string, fn func(payload string)) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[uint64]func(string))
	}
	h.channels[channel][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			delete(h.channels[channel], id)
			if len(h.channels[channel]) == 0 {
				delete(h.channels, channel)
			}
		})
	}, nil
}

// Subscribers returns the number of listeners registered on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.channels[channel])
}

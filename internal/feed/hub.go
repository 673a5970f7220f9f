// Package feed is a small Go-native publish/subscribe hub used by
// non-TCP-protocol observers of the signal stream (currently the WebSocket
// relay). It is independent of pubsub.Hub, which drives the wire protocol's
// Session/Dispatcher pipeline.
//
// Grounded on marcuoli-go-ntpserver/pkg/ntpserver/events.go's eventHub: a
// mutex-guarded set of subscriber channels, publish drops on a full
// subscriber rather than blocking, and subscribe returns a cancel func that
// unregisters and closes the channel.
package feed

import (
	"sync"

	"github.com/signal-pubsub/server/internal/signal"
)

// Hub fans out admitted signals to any number of Go-native subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan signal.Signal]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan signal.Signal]struct{})}
}

// Publish fans s out to every subscriber. A subscriber whose buffer is full
// misses s rather than stalling the publisher.
func (h *Hub) Publish(s signal.Signal) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
}

// Subscribe registers a new buffered channel and returns it along with a
// cancel func that unregisters and closes it. buffer <= 0 defaults to 128.
func (h *Hub) Subscribe(buffer int) (<-chan signal.Signal, func()) {
	if buffer <= 0 {
		buffer = 128
	}
	ch := make(chan signal.Signal, buffer)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Count returns the number of active subscribers, for metrics.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

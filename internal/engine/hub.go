package engine

import (
	"encoding/json"
	"fmt"
	"sync"
)

// subscriberBufferSize is the channel buffer for each subscriber. A subscriber
// that falls this far behind is evicted.
const subscriberBufferSize = 256

// Hub fans published events out to every live subscriber. It is safe for
// concurrent use.
//
// Every subscriber receives every event, in publish order, regardless of which
// run produced it. Publishing never blocks: a subscriber whose buffer is full
// is considered gone, so its channel is closed and it is removed.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan []byte
	nextID int
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan []byte)}
}

// Subscribe registers a subscriber and returns its message channel and an
// unsubscribe function. The channel is closed when the subscriber is evicted,
// unsubscribed, or the hub is closed. Unsubscribe may be called any number of
// times. After Close, Subscribe returns an already closed channel.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan []byte, subscriberBufferSize)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	hubSubscribers.Inc()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.remove(id)
	}
}

// remove closes and forgets subscriber id. Callers hold h.mu.
func (h *Hub) remove(id int) {
	ch, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(ch)
	hubSubscribers.Dec()
}

// Publish serializes doc once and delivers it to every subscriber.
func (h *Hub) Publish(doc any) error {
	msg, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	for id, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.remove(id)
			hubEvictions.Inc()
		}
	}
	return nil
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber. Later publishes are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id := range h.subs {
		h.remove(id)
	}
}

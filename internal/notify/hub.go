package notify

import (
	"log/slog"
	"sync"
)

// defaultSubscriberBuffer is the channel capacity of a subscription when
// the caller passes zero.
const defaultSubscriberBuffer = 16

// Hub is a [Notifier] that fans notifications out to any number of
// subscribers. A subscriber that falls behind loses notifications instead of
// stalling the producer.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan Notification
	nextID int
	closed bool

	onDrop func()
}

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithDropHook registers fn to be called each time a notification is dropped
// for a slow subscriber. fn runs with the hub's lock held and must not call
// back into the hub.
func WithDropHook(fn func()) HubOption {
	return func(h *Hub) { h.onDrop = fn }
}

// NewHub returns an empty [Hub].
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{subs: make(map[int]chan Notification)}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Subscribe registers a new subscriber with the given channel buffer and
// returns its channel and a cancel function. The channel is closed when
// cancel is called or the hub is closed. cancel is idempotent.
func (h *Hub) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Notification, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Notify implements [Notifier]. It never blocks.
func (h *Hub) Notify(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- n:
		default:
			slog.Debug("notify: subscriber too slow, dropping notification",
				"subscriber", id,
				"kind", n.Kind,
			)
			if h.onDrop != nil {
				h.onDrop()
			}
		}
	}
}

// Subscribers returns the current number of subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel. Safe to call multiple times.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

package sync

import (
	gosync "sync"
)

// Emitter receives the change summary of a completed cycle. It is called at
// most once per cycle, and only when the cycle committed at least one change.
// Delivery guarantees beyond the process boundary are the implementation's
// concern, not the core's.
type Emitter interface {
	Notify(Summary)
}

// EventBus broadcasts cycle summaries to all subscribed consumers.
type EventBus struct {
	mu      gosync.RWMutex
	clients map[chan Summary]struct{}
}

// NewEventBus creates a new EventBus.
func NewEventBus() *EventBus {
	return &EventBus{
		clients: make(map[chan Summary]struct{}),
	}
}

// Subscribe registers a new consumer and returns its channel.
func (b *EventBus) Subscribe() chan Summary {
	ch := make(chan Summary, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a consumer and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Summary) {
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
	close(ch)
}

// Notify sends the summary to all subscribed consumers.
// Slow consumers are skipped (non-blocking send).
func (b *EventBus) Notify(s Summary) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- s:
		default:
			// slow consumer, drop event
		}
	}
}

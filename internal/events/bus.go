// Package events fans routing events out to live subscribers (the WebSocket
// feed) and, when configured, to an MQTT broker. Publishing is fire and
// forget: a slow or broken sink never blocks the routing path.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Kind tags an event.
type Kind string

const (
	KindDecision Kind = "decision"
	KindOutcome  Kind = "outcome"
	KindPattern  Kind = "pattern"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	Kind      Kind      `json:"kind"`
	Owner     string    `json:"owner"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Bus is an in-process fan-out of routing events.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	logger *slog.Logger
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[int]chan Event),
		logger: logger.With("component", "events"),
	}
}

// Subscribe registers a buffered subscriber channel. The returned cancel
// function removes and closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers. Full subscriber buffers are
// skipped rather than waited on.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("dropping event for slow subscriber", "kind", ev.Kind)
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Package notify fans out lifecycle events to in-process subscribers.
// Delivery is at-least-once; consumers that need exactness deduplicate by
// (record id, status).
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types, one per committed transition or access decision.
const (
	EventCreated       = "created"
	EventRevoked       = "revoked"
	EventExpired       = "expired"
	EventAccessGranted = "access-granted"
	EventAccessDenied  = "access-denied"
)

// Event carries the record id and its status after the transition.
type Event struct {
	RecordID uuid.UUID `json:"record_id"`
	OwnerID  uuid.UUID `json:"owner_id"`
	Type     string    `json:"type"`
	Status   string    `json:"status"`
	At       time.Time `json:"at"`
}

// Publisher is the engine-facing side of the notifier.
type Publisher interface {
	Publish(Event)
}

// Broker fans events out to subscriber channels. Publishing never blocks a
// lifecycle transition: a subscriber whose buffer is full loses the event
// and a warning is logged.
type Broker struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan Event)}
}

// Subscribe registers a buffered subscriber channel. The returned cancel
// function unregisters and closes it.
func (b *Broker) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers the event to all current subscribers.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("dropping share event for slow subscriber",
				"record_id", ev.RecordID, "type", ev.Type)
		}
	}
}

// LogSubscriber drains a subscription and logs each event. Meant to run in
// its own goroutine; returns when the channel closes.
func LogSubscriber(ch <-chan Event) {
	for ev := range ch {
		slog.Info("share event",
			"type", ev.Type,
			"record_id", ev.RecordID,
			"owner_id", ev.OwnerID,
			"status", ev.Status,
		)
	}
}

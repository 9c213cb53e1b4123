package notify

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBrokerDeliversToAllSubscribers(t *testing.T) {
	b := NewBroker()

	ch1, cancel1 := b.Subscribe(4)
	defer cancel1()
	ch2, cancel2 := b.Subscribe(4)
	defer cancel2()

	ev := Event{
		RecordID: uuid.New(),
		OwnerID:  uuid.New(),
		Type:     EventRevoked,
		Status:   "revoked",
		At:       time.Now(),
	}
	b.Publish(ev)

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.RecordID != ev.RecordID || got.Type != ev.Type {
				t.Errorf("subscriber %d got %+v, want %+v", i, got, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i)
		}
	}
}

func TestBrokerDropsWhenBufferFull(t *testing.T) {
	b := NewBroker()

	ch, cancel := b.Subscribe(1)
	defer cancel()

	// Second publish must not block even though nobody is draining.
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: EventCreated})
		b.Publish(Event{Type: EventCreated})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}

	if got := len(ch); got != 1 {
		t.Errorf("buffered events = %d, want 1", got)
	}
}

func TestBrokerCancelClosesChannel(t *testing.T) {
	b := NewBroker()

	ch, cancel := b.Subscribe(1)
	cancel()

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after cancel")
	}

	// Publishing after cancel must not panic.
	b.Publish(Event{Type: EventExpired})

	// Double cancel is safe.
	cancel()
}

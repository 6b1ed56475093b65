package eventbus

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestPublishReachesAllHandlers(t *testing.T) {
	bus := New()

	var mu sync.Mutex
	var got []Event

	for i := 0; i < 3; i++ {
		bus.Subscribe(func(e Event) {
			mu.Lock()
			got = append(got, e)
			mu.Unlock()
		})
	}

	bus.Publish(NetworkStatusChanged{Online: true, At: time.Now()})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("got %d deliveries, want 3", len(got))
	}
	for _, e := range got {
		ns, ok := e.(NetworkStatusChanged)
		if !ok || !ns.Online {
			t.Errorf("unexpected event %#v", e)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()

	count := 0
	id := bus.Subscribe(func(Event) { count++ })

	bus.Publish(QueueDrained{Committed: 1, At: time.Now()})
	bus.Unsubscribe(id)
	bus.Unsubscribe(id) // idempotent
	bus.Publish(QueueDrained{Committed: 2, At: time.Now()})

	if count != 1 {
		t.Errorf("handler invoked %d times, want 1", count)
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	bus := New()

	bus.Subscribe(func(Event) { panic("bad handler") })

	delivered := false
	bus.Subscribe(func(Event) { delivered = true })

	bus.Publish(SyncErrorEvent{Op: "drain", Err: fmt.Errorf("boom")})

	if !delivered {
		t.Error("a panicking handler must not block delivery to others")
	}
}

func TestCloseRejectsFurtherTraffic(t *testing.T) {
	bus := New()

	count := 0
	bus.Subscribe(func(Event) { count++ })
	bus.Close()

	bus.Publish(ConflictDetected{Collection: "appointments", DocumentID: "A1"})
	if count != 0 {
		t.Error("no events may be delivered after Close")
	}

	if id := bus.Subscribe(func(Event) {}); id != -1 {
		t.Error("Subscribe after Close should be rejected")
	}
}

func TestTypeSwitchCoversUnion(t *testing.T) {
	events := []Event{
		NetworkStatusChanged{},
		SyncErrorEvent{},
		ConflictDetected{},
		ConflictResolved{},
		QueueItemDropped{},
		QueueDrained{},
	}

	for _, e := range events {
		switch e.(type) {
		case NetworkStatusChanged, SyncErrorEvent, ConflictDetected,
			ConflictResolved, QueueItemDropped, QueueDrained:
		default:
			t.Errorf("unhandled event variant %T", e)
		}
	}
}

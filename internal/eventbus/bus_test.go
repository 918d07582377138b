package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	bus := New()
	ch1, unsub1 := bus.Subscribe(4)
	ch2, unsub2 := bus.Subscribe(4)
	defer unsub1()
	defer unsub2()

	bus.Publish(Event{Type: TypeRunStarted})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != TypeRunStarted {
				t.Fatalf("subscriber %d got %s", i, ev.Type)
			}
			if ev.Time.IsZero() {
				t.Fatalf("subscriber %d: timestamp not stamped", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got nothing", i)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	bus := New()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	bus.Publish(Event{Type: TypeRunStarted})
	bus.Publish(Event{Type: TypeRunCompleted}) // buffer full, dropped

	if ev := <-ch; ev.Type != TypeRunStarted {
		t.Fatalf("got %s", ev.Type)
	}
	select {
	case ev := <-ch:
		t.Fatalf("expected drop, got %s", ev.Type)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	bus := New()
	ch, unsub := bus.Subscribe(1)
	unsub()

	// Publish after unsubscribe must not panic on the closed channel.
	bus.Publish(Event{Type: TypeRunFailed})

	if _, open := <-ch; open {
		t.Fatal("expected closed channel")
	}
}

package events

import (
	"testing"
	"time"
)

func TestBusRoutesByKind(t *testing.T) {
	bus := NewBus()
	all := bus.Subscribe(8)
	removed := bus.Subscribe(8, KindOrderRemoved)

	bus.Publish(OrderMatched{OrderID: "t", MatchedWith: "m", ExecutedQuantity: 2})
	bus.Publish(OrderRemoved{OrderID: "m", MatchedWith: "t", ExecutedQuantity: 2})

	if got := len(all.Events()); got != 2 {
		t.Errorf("all-kinds subscriber got %d events, want 2", got)
	}
	if got := len(removed.Events()); got != 1 {
		t.Fatalf("removed subscriber got %d events, want 1", got)
	}
	ev := <-removed.Events()
	if ev.Kind() != KindOrderRemoved || ev.Subject() != "m" {
		t.Errorf("unexpected event %#v", ev)
	}
}

func TestBusPreservesPublishOrder(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(16)
	for i := int64(1); i <= 5; i++ {
		bus.Publish(OrderUpdated{OrderID: "o", NewQuantity: i})
	}
	for i := int64(1); i <= 5; i++ {
		ev := (<-sub.Events()).(OrderUpdated)
		if ev.NewQuantity != i {
			t.Fatalf("event %d has quantity %d", i, ev.NewQuantity)
		}
	}
}

func TestCloseUnblocksPublisher(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(0, KindOrderAdded)

	done := make(chan struct{})
	go func() {
		bus.Publish(OrderAdded{OrderID: "a"})
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	sub.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish stayed blocked after subscriber closed")
	}
	// Closing twice must be harmless.
	sub.Close()
}

func TestBusCloseClosesSubscriptions(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(1)
	bus.Close()

	if _, ok := <-sub.Events(); ok {
		t.Error("expected closed channel after Bus.Close")
	}
	bus.Publish(OrderAdded{OrderID: "ignored"})
	sub.Close()

	late := bus.Subscribe(1)
	if _, ok := <-late.Events(); ok {
		t.Error("subscription on closed bus should be closed")
	}
	late.Close()
}

func TestRecorderTake(t *testing.T) {
	rec := &Recorder{}
	rec.Publish(OrderUpdated{OrderID: "x"})
	rec.Publish(OrderRemoved{OrderID: "x"})
	if got := len(rec.Take()); got != 2 {
		t.Errorf("Take returned %d events, want 2", got)
	}
	if got := len(rec.Take()); got != 0 {
		t.Errorf("Take should reset, still have %d", got)
	}
}

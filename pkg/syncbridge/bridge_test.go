package syncbridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/meshbook/pkg/book"
	"github.com/uhyunpark/meshbook/pkg/events"
	"github.com/uhyunpark/meshbook/pkg/pipeline"
)

type opSink struct{ ops []pipeline.Operation }

func (s *opSink) Enqueue(_ context.Context, op pipeline.Operation) error {
	s.ops = append(s.ops, op)
	return nil
}

type envSink struct {
	mu   sync.Mutex
	envs []Envelope
	err  error
}

func (s *envSink) Broadcast(_ context.Context, env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
	return s.err
}

var ts = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

func TestDecodeWireEnvelope(t *testing.T) {
	raw := `{"action":"order_added","data":{"orderId":"order_p2_1","peerId":"p2","price":"101.5","quantity":3,"type":"sell","sequenceNumber":4,"timestamp":"2026-04-01T09:30:00Z"}}`

	sink := &opSink{}
	bridge := New(events.NewBus(), nil, sink, 1, nil)
	if err := bridge.HandleRaw(context.Background(), []byte(raw)); err != nil {
		t.Fatalf("HandleRaw: %v", err)
	}
	if len(sink.ops) != 1 {
		t.Fatalf("got %d ops, want 1", len(sink.ops))
	}
	add, ok := sink.ops[0].(pipeline.SyncAdd)
	if !ok {
		t.Fatalf("op = %T, want SyncAdd", sink.ops[0])
	}
	o := add.Order
	if o.ID != "order_p2_1" || o.PeerID != "p2" || o.Side != book.Sell || o.Quantity != 3 || o.SequenceNumber != 4 {
		t.Errorf("order = %+v", o)
	}
	if !o.Price.Equal(decimal.RequireFromString("101.5")) || !o.Timestamp.Equal(ts) {
		t.Errorf("price/timestamp = %s/%s", o.Price, o.Timestamp)
	}
}

func TestHandleInbound(t *testing.T) {
	tests := []struct {
		name string
		ev   events.Event
		want pipeline.Operation
	}{
		{
			name: "updated",
			ev:   events.OrderUpdated{OrderID: "o1", NewQuantity: 2, Timestamp: ts},
			want: pipeline.SyncUpdate{OrderID: "o1", NewQuantity: 2, Timestamp: ts},
		},
		{
			name: "removed",
			ev:   events.OrderRemoved{OrderID: "o1", MatchedWith: "o2", ExecutedQuantity: 5, Timestamp: ts},
			want: pipeline.SyncRemove{OrderID: "o1", Timestamp: ts},
		},
		{
			name: "matched is informational",
			ev:   events.OrderMatched{OrderID: "o2", MatchedWith: "o1", ExecutedQuantity: 5, Timestamp: ts},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &opSink{}
			bridge := New(events.NewBus(), nil, sink, 1, nil)
			env, err := Wrap(tt.ev)
			if err != nil {
				t.Fatalf("Wrap: %v", err)
			}
			if err := bridge.HandleInbound(context.Background(), env); err != nil {
				t.Fatalf("HandleInbound: %v", err)
			}
			if tt.want == nil {
				if len(sink.ops) != 0 {
					t.Fatalf("got ops %v, want none", sink.ops)
				}
				return
			}
			if len(sink.ops) != 1 || sink.ops[0] != tt.want {
				t.Errorf("ops = %+v, want [%+v]", sink.ops, tt.want)
			}
		})
	}
}

type countObs struct{ seen map[string]int }

func (o *countObs) Envelope(direction, action string) { o.seen[direction+"/"+action]++ }

func TestUnknownActionDropped(t *testing.T) {
	sink := &opSink{}
	obs := &countObs{seen: map[string]int{}}
	bridge := New(events.NewBus(), nil, sink, 1, nil)
	bridge.Observer = obs

	err := bridge.HandleInbound(context.Background(), Envelope{Action: "order_exploded", Data: []byte(`{}`)})
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("err = %v, want ErrUnknownAction", err)
	}
	if len(sink.ops) != 0 {
		t.Errorf("unknown action produced %d ops", len(sink.ops))
	}
	if obs.seen["in/unknown"] != 1 {
		t.Errorf("observer saw %v", obs.seen)
	}

	if err := bridge.HandleRaw(context.Background(), []byte("not json")); err == nil {
		t.Error("HandleRaw accepted malformed input")
	}
}

func TestOutboundForwardsInPublishOrder(t *testing.T) {
	bus := events.NewBus()
	out := &envSink{err: errors.New("peer offline")} // failures are logged, not fatal
	bridge := New(bus, Broadcasters{out}, &opSink{}, 8, nil)

	done := make(chan struct{})
	go func() { bridge.Run(context.Background()); close(done) }()

	published := []events.Event{
		events.OrderMatched{OrderID: "t", MatchedWith: "m", ExecutedQuantity: 1, Timestamp: ts},
		events.OrderUpdated{OrderID: "m", NewQuantity: 4, Timestamp: ts},
		events.OrderAdded{OrderID: "t2", PeerID: "p1", Price: decimal.NewFromInt(7), Quantity: 1, Type: book.Buy, Timestamp: ts},
	}
	for _, ev := range published {
		bus.Publish(ev)
	}
	bus.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop after bus close")
	}

	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.envs) != len(published) {
		t.Fatalf("broadcast %d envelopes, want %d", len(out.envs), len(published))
	}
	for i, env := range out.envs {
		if env.Action != published[i].Kind() {
			t.Errorf("envelope %d action = %s, want %s", i, env.Action, published[i].Kind())
		}
		ev, err := env.Event()
		if err != nil {
			t.Fatalf("envelope %d: %v", i, err)
		}
		if ev.Subject() != published[i].Subject() {
			t.Errorf("envelope %d subject = %s, want %s", i, ev.Subject(), published[i].Subject())
		}
	}
}

package loadgen

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/meshbook/pkg/rpc"
)

func TestGeneratedOrdersAreValid(t *testing.T) {
	cfg := DefaultConfig()
	g := NewGenerator(cfg, 1)
	lo := cfg.BasePrice.Sub(cfg.Tick.Mul(decimal.NewFromInt(cfg.SpreadTicks)))
	hi := cfg.BasePrice.Add(cfg.Tick.Mul(decimal.NewFromInt(cfg.SpreadTicks)))

	for i := 0; i < 500; i++ {
		req := g.Order()
		if err := req.Validate(); err != nil {
			t.Fatalf("request %d invalid: %v", i, err)
		}
		p := req.Order.Price
		if p.LessThan(lo) || p.GreaterThan(hi) {
			t.Fatalf("price %s outside [%s, %s]", p, lo, hi)
		}
		if req.Order.Quantity < 1 || req.Order.Quantity > cfg.MaxQuantity {
			t.Fatalf("quantity %d out of range", req.Order.Quantity)
		}
	}
}

func TestCancelUsesAcceptedIDs(t *testing.T) {
	g := NewGenerator(DefaultConfig(), 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, ok := g.Cancel(now); ok {
		t.Fatal("Cancel with no accepted orders should report !ok")
	}

	g.Accepted("o1")
	req, ok := g.Cancel(now)
	if !ok || req.Type != rpc.DeleteOrder || req.OrderID != "o1" || !req.Timestamp.Equal(now) {
		t.Errorf("cancel = %+v, ok=%v", req, ok)
	}
	if _, ok := g.Cancel(now); ok {
		t.Error("an id should only be cancelled once")
	}

	for i := 0; i < recentCap+10; i++ {
		g.Accepted(fmt.Sprintf("o%d", i))
	}
	if len(g.recent) != recentCap {
		t.Errorf("recent = %d, want capped at %d", len(g.recent), recentCap)
	}
}

type countingSubmitter struct {
	adds, deletes int
	failEvery     int
	calls         int
}

func (s *countingSubmitter) Handle(_ context.Context, req rpc.Request) (rpc.Reply, error) {
	s.calls++
	if s.failEvery > 0 && s.calls%s.failEvery == 0 {
		return rpc.Reply{}, errors.New("node unavailable")
	}
	if req.Type == rpc.DeleteOrder {
		s.deletes++
		return rpc.Reply{Status: rpc.StatusProcessed, OrderID: req.OrderID}, nil
	}
	s.adds++
	return rpc.Reply{Status: rpc.StatusProcessed, OrderID: fmt.Sprintf("o%d", s.calls)}, nil
}

func TestSubmitBatch(t *testing.T) {
	sub := &countingSubmitter{failEvery: 5}
	cfg := DefaultConfig()
	cfg.BatchSize = 50
	cfg.CancelPercent = 30
	f := NewFeeder(cfg, sub, nil)

	accepted := f.SubmitBatch(context.Background())
	if accepted != 40 {
		t.Errorf("accepted = %d, want 40", accepted)
	}
	if sub.adds+sub.deletes != accepted {
		t.Errorf("adds %d + deletes %d != accepted %d", sub.adds, sub.deletes, accepted)
	}
}

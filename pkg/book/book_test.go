package book

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func mkOrder(id string, side Side, price int64, qty int64) Order {
	return Order{
		ID:        id,
		PeerID:    "p1",
		Price:     decimal.NewFromInt(price),
		Quantity:  qty,
		Side:      side,
		Timestamp: t0,
	}
}

func TestInsertFindRemove(t *testing.T) {
	b := New()
	if err := b.Insert(mkOrder("a", Buy, 100, 10)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := b.FindByID("a")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Quantity != 10 || got.Side != Buy {
		t.Errorf("unexpected order %+v", got)
	}
	if b.Count(Buy) != 1 || b.Count(Sell) != 0 || b.Len() != 1 {
		t.Errorf("counts: buy=%d sell=%d len=%d", b.Count(Buy), b.Count(Sell), b.Len())
	}

	removed, err := b.Remove("a")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed.ID != "a" {
		t.Errorf("removed id = %q", removed.ID)
	}
	if b.Len() != 0 || b.Count(Buy) != 0 {
		t.Error("book should be empty after remove")
	}
	if _, err := b.Remove("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove err = %v, want ErrNotFound", err)
	}
	if _, err := b.FindByID("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID after remove err = %v, want ErrNotFound", err)
	}
}

func TestInsertDuplicateLeavesBookUnchanged(t *testing.T) {
	b := New()
	if err := b.Insert(mkOrder("a", Sell, 100, 4)); err != nil {
		t.Fatal(err)
	}
	dup := mkOrder("a", Buy, 90, 7)
	if err := b.Insert(dup); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate insert err = %v, want ErrDuplicateID", err)
	}
	if b.Len() != 1 || b.Count(Buy) != 0 || b.Count(Sell) != 1 {
		t.Errorf("duplicate insert mutated the book: len=%d buy=%d sell=%d", b.Len(), b.Count(Buy), b.Count(Sell))
	}
	got, _ := b.FindByID("a")
	if got.Quantity != 4 || got.Side != Sell {
		t.Errorf("original order changed: %+v", got)
	}
}

func TestInsertValidation(t *testing.T) {
	tests := []struct {
		name  string
		order Order
		field string
	}{
		{"missing id", mkOrder("", Buy, 100, 1), "id"},
		{"unknown side", mkOrder("x", Side("hold"), 100, 1), "type"},
		{"zero price", mkOrder("x", Buy, 0, 1), "price"},
		{"negative price", mkOrder("x", Sell, -5, 1), "price"},
		{"negative quantity", mkOrder("x", Buy, 100, -1), "quantity"},
		{"zero quantity", mkOrder("x", Buy, 100, 0), "quantity"},
		{"missing timestamp", Order{ID: "x", Side: Buy, Price: decimal.NewFromInt(1), Quantity: 1}, "timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New()
			err := b.Insert(tt.order)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
			if b.Len() != 0 {
				t.Error("invalid order must not be indexed")
			}
		})
	}
}

func TestSideOrdering(t *testing.T) {
	b := New()
	for _, o := range []Order{
		mkOrder("b3", Buy, 100, 1),
		mkOrder("b1", Buy, 101, 1),
		mkOrder("b2", Buy, 100, 1),
		mkOrder("b0", Buy, 99, 1),
		mkOrder("s2", Sell, 105, 1),
		mkOrder("s9", Sell, 104, 1),
		mkOrder("s1", Sell, 105, 1),
	} {
		if err := b.Insert(o); err != nil {
			t.Fatal(err)
		}
	}

	var bids []string
	b.Walk(Buy, func(o Order) bool { bids = append(bids, o.ID); return true })
	wantBids := []string{"b1", "b2", "b3", "b0"}
	if !equal(bids, wantBids) {
		t.Errorf("bid order = %v, want %v", bids, wantBids)
	}

	var asks []string
	b.Walk(Sell, func(o Order) bool { asks = append(asks, o.ID); return true })
	wantAsks := []string{"s9", "s1", "s2"}
	if !equal(asks, wantAsks) {
		t.Errorf("ask order = %v, want %v", asks, wantAsks)
	}

	if best, _ := b.BestOpposing(Sell); best.ID != "b1" {
		t.Errorf("best opposing for sell = %s, want b1", best.ID)
	}
	if best, _ := b.BestOpposing(Buy); best.ID != "s9" {
		t.Errorf("best opposing for buy = %s, want s9", best.ID)
	}

	ids := make([]string, 0, b.Len())
	for _, o := range b.Orders() {
		ids = append(ids, o.ID)
	}
	if !sort.StringsAreSorted(ids) || len(ids) != 7 {
		t.Errorf("Orders() not in id order: %v", ids)
	}
}

func TestBestOnEmptySide(t *testing.T) {
	b := New()
	if _, ok := b.BestOpposing(Buy); ok {
		t.Error("expected no best ask on empty book")
	}
	if _, ok := b.Best(Buy); ok {
		t.Error("expected no best bid on empty book")
	}
}

func TestFillRemovesAtZero(t *testing.T) {
	b := New()
	_ = b.Insert(mkOrder("m", Sell, 100, 5))

	rem, err := b.Fill("m", 2)
	if err != nil || rem != 3 {
		t.Fatalf("Fill(2) = %d, %v; want 3, nil", rem, err)
	}
	if got, _ := b.FindByID("m"); got.Quantity != 3 {
		t.Errorf("quantity after fill = %d, want 3", got.Quantity)
	}

	if _, err := b.Fill("m", 4); !IsValidation(err) {
		t.Errorf("overfill err = %v, want validation error", err)
	}

	rem, err = b.Fill("m", 3)
	if err != nil || rem != 0 {
		t.Fatalf("Fill(3) = %d, %v; want 0, nil", rem, err)
	}
	if b.Len() != 0 || b.Count(Sell) != 0 {
		t.Error("fully filled order must leave every index")
	}
}

func TestSetQuantity(t *testing.T) {
	b := New()
	_ = b.Insert(mkOrder("a", Buy, 100, 5))
	_ = b.Insert(mkOrder("b", Buy, 100, 5))

	removed, err := b.SetQuantity("a", 9)
	if err != nil || removed {
		t.Fatalf("SetQuantity(9) = %v, %v", removed, err)
	}
	if best, _ := b.Best(Buy); best.ID != "a" || best.Quantity != 9 {
		t.Errorf("re-seated order = %+v, want a with 9", best)
	}

	removed, err = b.SetQuantity("a", 0)
	if err != nil || !removed {
		t.Fatalf("SetQuantity(0) = %v, %v; want removed", removed, err)
	}
	if _, err := b.FindByID("a"); !errors.Is(err, ErrNotFound) {
		t.Error("zero-quantity order must be removed")
	}
	if _, err := b.SetQuantity("a", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetQuantity on missing order err = %v", err)
	}
	if _, err := b.SetQuantity("b", -1); !IsValidation(err) {
		t.Errorf("negative quantity err = %v", err)
	}
}

func TestLevels(t *testing.T) {
	b := New()
	_ = b.Insert(mkOrder("a", Buy, 100, 5))
	_ = b.Insert(mkOrder("b", Buy, 101, 2))
	_ = b.Insert(mkOrder("c", Buy, 100, 3))

	levels := b.Levels(Buy)
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(levels))
	}
	if !levels[0].Price.Equal(decimal.NewFromInt(101)) || levels[0].Quantity != 2 {
		t.Errorf("level[0] = %+v", levels[0])
	}
	if !levels[1].Price.Equal(decimal.NewFromInt(100)) || levels[1].Quantity != 8 || levels[1].Orders != 2 {
		t.Errorf("level[1] = %+v", levels[1])
	}
}

func TestNewOrderIDMonotonicWithinPeer(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	ids := []string{
		NewOrderID("p1", base, 9),
		NewOrderID("p1", base, 10),
		NewOrderID("p1", base.Add(time.Nanosecond), 1),
		NewOrderID("p1", base.Add(time.Second), 2),
	}
	if !sort.StringsAreSorted(ids) {
		t.Errorf("ids not monotonic: %v", ids)
	}
	if want := "order_p1_20260102030405000000006_0000000009"; ids[0] != want {
		t.Errorf("id = %s, want %s", ids[0], want)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

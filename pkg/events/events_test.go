package events

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/meshbook/pkg/book"
)

func TestAddedCarriesRestingOrder(t *testing.T) {
	o := book.Order{
		ID:             "order_p1_x_0000000003",
		PeerID:         "p1",
		Price:          decimal.RequireFromString("101.25"),
		Quantity:       7,
		Side:           book.Sell,
		SequenceNumber: 3,
		Timestamp:      time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	ev := Added(o)
	if ev.Kind() != KindOrderAdded || ev.Subject() != o.ID || !ev.OccurredAt().Equal(o.Timestamp) {
		t.Errorf("unexpected event header: %+v", ev)
	}
	back := ev.Order()
	if back.ID != o.ID || back.Side != o.Side || back.Quantity != o.Quantity ||
		!back.Price.Equal(o.Price) || back.SequenceNumber != o.SequenceNumber || back.PeerID != o.PeerID {
		t.Errorf("Order() = %+v, want %+v", back, o)
	}
}

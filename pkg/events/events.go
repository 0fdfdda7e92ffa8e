// Package events defines the domain facts emitted by the matching engine and
// the bus that fans them out to the sync bridge and other observers.
package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/meshbook/pkg/book"
)

// Kind names an event channel. The values double as the broadcast envelope action.
type Kind string

const (
	KindOrderAdded   Kind = "order_added"
	KindOrderMatched Kind = "order_matched"
	KindOrderUpdated Kind = "order_updated"
	KindOrderRemoved Kind = "order_removed"
)

// AllKinds lists every channel in a stable order.
var AllKinds = []Kind{KindOrderAdded, KindOrderMatched, KindOrderUpdated, KindOrderRemoved}

// Event is one of OrderAdded, OrderMatched, OrderUpdated or OrderRemoved.
type Event interface {
	Kind() Kind
	Subject() string // id of the order the event is about
	OccurredAt() time.Time
	isEvent()
}

type OrderAdded struct {
	OrderID        string          `json:"orderId"`
	PeerID         string          `json:"peerId"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int64           `json:"quantity"`
	Type           book.Side       `json:"type"`
	SequenceNumber uint64          `json:"sequenceNumber"`
	Timestamp      time.Time       `json:"timestamp"`
}

// OrderMatched is emitted once per crossing step, from the taker's point of view.
type OrderMatched struct {
	OrderID          string    `json:"orderId"`
	MatchedWith      string    `json:"matchedWith"`
	ExecutedQuantity int64     `json:"executedQuantity"`
	Timestamp        time.Time `json:"timestamp"`
}

type OrderUpdated struct {
	OrderID     string    `json:"orderId"`
	NewQuantity int64     `json:"newQuantity"`
	Timestamp   time.Time `json:"timestamp"`
}

// OrderRemoved reports a resting order leaving the book. MatchedWith is empty
// and ExecutedQuantity zero when the removal came from a deletion.
type OrderRemoved struct {
	OrderID          string    `json:"orderId"`
	MatchedWith      string    `json:"matchedWith"`
	ExecutedQuantity int64     `json:"executedQuantity"`
	Timestamp        time.Time `json:"timestamp"`
}

func (OrderAdded) Kind() Kind   { return KindOrderAdded }
func (OrderMatched) Kind() Kind { return KindOrderMatched }
func (OrderUpdated) Kind() Kind { return KindOrderUpdated }
func (OrderRemoved) Kind() Kind { return KindOrderRemoved }

func (e OrderAdded) Subject() string   { return e.OrderID }
func (e OrderMatched) Subject() string { return e.OrderID }
func (e OrderUpdated) Subject() string { return e.OrderID }
func (e OrderRemoved) Subject() string { return e.OrderID }

func (e OrderAdded) OccurredAt() time.Time   { return e.Timestamp }
func (e OrderMatched) OccurredAt() time.Time { return e.Timestamp }
func (e OrderUpdated) OccurredAt() time.Time { return e.Timestamp }
func (e OrderRemoved) OccurredAt() time.Time { return e.Timestamp }

func (OrderAdded) isEvent()   {}
func (OrderMatched) isEvent() {}
func (OrderUpdated) isEvent() {}
func (OrderRemoved) isEvent() {}

// Added builds the OrderAdded fact for an order that came to rest.
func Added(o book.Order) OrderAdded {
	return OrderAdded{
		OrderID:        o.ID,
		PeerID:         o.PeerID,
		Price:          o.Price,
		Quantity:       o.Quantity,
		Type:           o.Side,
		SequenceNumber: o.SequenceNumber,
		Timestamp:      o.Timestamp,
	}
}

// Order reconstructs the resting order described by the event.
func (e OrderAdded) Order() book.Order {
	return book.Order{
		ID:             e.OrderID,
		PeerID:         e.PeerID,
		Price:          e.Price,
		Quantity:       e.Quantity,
		Side:           e.Type,
		SequenceNumber: e.SequenceNumber,
		Timestamp:      e.Timestamp,
	}
}

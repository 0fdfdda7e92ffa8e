package book

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

// Opposite returns the side a new order of side s crosses against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Order is a resting limit order. ID, PeerID, Price, Side, SequenceNumber and
// Timestamp never change after creation; Quantity shrinks as the order fills.
type Order struct {
	ID             string          `json:"id"`
	PeerID         string          `json:"peerId"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int64           `json:"quantity"`
	Side           Side            `json:"type"`
	SequenceNumber uint64          `json:"sequenceNumber"`
	Timestamp      time.Time       `json:"timestamp"`
}

// NewOrderID builds "order_<peer>_<yyyymmddHHMMSS><nanos>_<seq>". Every field after
// the peer is fixed width, so ids from one peer sort lexicographically by
// creation time and then by sequence number.
func NewOrderID(peerID string, ts time.Time, seq uint64) string {
	ts = ts.UTC()
	return fmt.Sprintf("order_%s_%s%09d_%010d", peerID, ts.Format("20060102150405"), ts.Nanosecond(), seq)
}

// Validate checks the fields the indices depend on. A zero quantity is valid
// here; Insert rejects it separately.
func (o Order) Validate() error {
	switch {
	case o.ID == "":
		return &ValidationError{Field: "id", Reason: "required"}
	case !o.Side.Valid():
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown side %q", o.Side)}
	case !o.Price.IsPositive():
		return &ValidationError{Field: "price", Reason: "must be positive"}
	case o.Quantity < 0:
		return &ValidationError{Field: "quantity", Reason: "must not be negative"}
	case o.Timestamp.IsZero():
		return &ValidationError{Field: "timestamp", Reason: "required"}
	}
	return nil
}

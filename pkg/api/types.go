package api

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/meshbook/pkg/book"
	"github.com/uhyunpark/meshbook/pkg/syncbridge"
)

// ==============================
// REST Response Types
// ==============================

// OrderbookSnapshot is the aggregated depth of the local book
type OrderbookSnapshot struct {
	PeerID    string       `json:"peerId"`
	Bids      []PriceLevel `json:"bids"` // Sorted high to low
	Asks      []PriceLevel `json:"asks"` // Sorted low to high
	Timestamp int64        `json:"timestamp"` // Unix milliseconds
}

type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	Orders   int             `json:"orders"`
}

func levels(in []book.PriceLevel) []PriceLevel {
	out := make([]PriceLevel, len(in))
	for i, l := range in {
		out[i] = PriceLevel{Price: l.Price, Quantity: l.Quantity, Orders: l.Orders}
	}
	return out
}

// OrdersResponse lists resting orders in id order
type OrdersResponse struct {
	Count  int          `json:"count"`
	Orders []book.Order `json:"orders"`
}

type HealthResponse struct {
	Status string `json:"status"`
	PeerID string `json:"peerId"`
	Peers  int    `json:"peers"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // event actions, e.g. ["order_matched"], or ["*"]
}

// WSMessage carries one broadcast envelope to subscribed clients
type WSMessage struct {
	Channel  string              `json:"channel"`
	Envelope syncbridge.Envelope `json:"envelope"`
}

// Package loadgen produces synthetic ADD_ORDER and DELETE_ORDER requests for
// local load testing.
package loadgen

import (
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/meshbook/pkg/book"
	"github.com/uhyunpark/meshbook/pkg/rpc"
)

// Generator creates random requests around a base price
type Generator struct {
	basePrice decimal.Decimal
	spread    int64 // max distance from base, in ticks
	tick      decimal.Decimal
	maxQty    int64
	cancelPct int

	recent []string // order ids eligible for cancellation, newest last
	rng    *rand.Rand
}

const recentCap = 100

func NewGenerator(cfg Config, seed int64) *Generator {
	return &Generator{
		basePrice: cfg.BasePrice,
		spread:    cfg.SpreadTicks,
		tick:      cfg.Tick,
		maxQty:    cfg.MaxQuantity,
		cancelPct: cfg.CancelPercent,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Order creates a random ADD_ORDER request; peer, sequence and timestamp are
// left for the node to fill in.
func (g *Generator) Order() rpc.Request {
	side := book.Buy
	if g.rng.Intn(2) == 1 {
		side = book.Sell
	}

	offset := g.rng.Int63n(2*g.spread+1) - g.spread
	price := g.basePrice.Add(g.tick.Mul(decimal.NewFromInt(offset)))
	if !price.IsPositive() {
		price = g.tick
	}

	return rpc.Request{
		Type: rpc.AddOrder,
		Order: &rpc.OrderBody{
			Price:    price,
			Quantity: g.rng.Int63n(g.maxQty) + 1,
			Type:     side,
		},
	}
}

// Cancel deletes one of the recently accepted orders. ok is false when
// nothing is known yet.
func (g *Generator) Cancel(now time.Time) (req rpc.Request, ok bool) {
	if len(g.recent) == 0 {
		return rpc.Request{}, false
	}
	i := g.rng.Intn(len(g.recent))
	id := g.recent[i]
	g.recent = append(g.recent[:i], g.recent[i+1:]...)
	return rpc.Request{Type: rpc.DeleteOrder, OrderID: id, Timestamp: &now}, true
}

// Next returns a cancel CancelPercent of the time, otherwise an order.
func (g *Generator) Next(now time.Time) rpc.Request {
	if g.rng.Intn(100) < g.cancelPct {
		if req, ok := g.Cancel(now); ok {
			return req
		}
	}
	return g.Order()
}

// Accepted records an order id the node acknowledged.
func (g *Generator) Accepted(id string) {
	g.recent = append(g.recent, id)
	if len(g.recent) > recentCap {
		g.recent = g.recent[len(g.recent)-recentCap:]
	}
}

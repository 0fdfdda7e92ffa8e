package book

import (
	"fmt"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

const treeDegree = 32

type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"` // total qty at this price level
	Orders   int             `json:"orders"`
}

// Book holds three indices over the same set of live orders. It is not safe
// for concurrent use: a single owner goroutine performs every mutation, and each
// exported method leaves all three indices consistent before returning.
type Book struct {
	bids *btree.BTreeG[*Order] // price desc, id asc
	asks *btree.BTreeG[*Order] // price asc, id asc
	byID *btree.BTreeG[*Order] // id asc
}

func bidLess(a, b *Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	return a.ID < b.ID
}

func askLess(a, b *Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

func idLess(a, b *Order) bool { return a.ID < b.ID }

func New() *Book {
	return &Book{
		bids: btree.NewG[*Order](treeDegree, bidLess),
		asks: btree.NewG[*Order](treeDegree, askLess),
		byID: btree.NewG[*Order](treeDegree, idLess),
	}
}

func (b *Book) sideTree(s Side) *btree.BTreeG[*Order] {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) lookup(id string) (*Order, bool) {
	return b.byID.Get(&Order{ID: id})
}

// Insert adds o to its side index and the id index.
func (b *Book) Insert(o Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.Quantity == 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive to rest in the book"}
	}
	if _, exists := b.lookup(o.ID); exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, o.ID)
	}
	p := &o
	b.sideTree(p.Side).ReplaceOrInsert(p)
	b.byID.ReplaceOrInsert(p)
	return nil
}

// Remove deletes the order from both indices and hands back its final state.
func (b *Book) Remove(id string) (Order, error) {
	p, ok := b.lookup(id)
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	b.unlink(p)
	return *p, nil
}

func (b *Book) unlink(p *Order) {
	b.sideTree(p.Side).Delete(p)
	b.byID.Delete(p)
}

func (b *Book) FindByID(id string) (Order, error) {
	p, ok := b.lookup(id)
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *p, nil
}

// Best returns the best-priced order resting on side s.
func (b *Book) Best(s Side) (Order, bool) {
	p, ok := b.sideTree(s).Min()
	if !ok {
		return Order{}, false
	}
	return *p, true
}

// BestOpposing returns the order a new order of side s would trade with first:
// the lowest ask for a buy, the highest bid for a sell.
func (b *Book) BestOpposing(s Side) (Order, bool) {
	return b.Best(s.Opposite())
}

// Fill takes qty off a resting order. An order that reaches zero is removed
// from every index in the same call.
func (b *Book) Fill(id string, qty int64) (remaining int64, err error) {
	p, ok := b.lookup(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if qty <= 0 || qty > p.Quantity {
		return p.Quantity, &ValidationError{Field: "quantity", Reason: fmt.Sprintf("fill %d outside (0, %d]", qty, p.Quantity)}
	}
	// Quantity is not part of any index key, so it can change in place.
	p.Quantity -= qty
	if p.Quantity == 0 {
		b.unlink(p)
	}
	return p.Quantity, nil
}

// SetQuantity overwrites the quantity of a resting order and re-seats it in
// its side index. A zero quantity removes the order.
func (b *Book) SetQuantity(id string, qty int64) (removed bool, err error) {
	if qty < 0 {
		return false, &ValidationError{Field: "newQuantity", Reason: "must not be negative"}
	}
	p, ok := b.lookup(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	b.unlink(p)
	if qty == 0 {
		return true, nil
	}
	p.Quantity = qty
	b.sideTree(p.Side).ReplaceOrInsert(p)
	b.byID.ReplaceOrInsert(p)
	return false, nil
}

func (b *Book) Len() int { return b.byID.Len() }

func (b *Book) Count(s Side) int { return b.sideTree(s).Len() }

// Walk visits orders on side s best-first until fn returns false.
func (b *Book) Walk(s Side, fn func(Order) bool) {
	b.sideTree(s).Ascend(func(p *Order) bool { return fn(*p) })
}

// Orders returns a copy of every live order in id order.
func (b *Book) Orders() []Order {
	out := make([]Order, 0, b.byID.Len())
	b.byID.Ascend(func(p *Order) bool {
		out = append(out, *p)
		return true
	})
	return out
}

// Levels aggregates side s by price, best price first.
func (b *Book) Levels(s Side) []PriceLevel {
	var levels []PriceLevel
	b.Walk(s, func(o Order) bool {
		if n := len(levels); n > 0 && levels[n-1].Price.Equal(o.Price) {
			levels[n-1].Quantity += o.Quantity
			levels[n-1].Orders++
			return true
		}
		levels = append(levels, PriceLevel{Price: o.Price, Quantity: o.Quantity, Orders: 1})
		return true
	})
	return levels
}

// Package matching crosses incoming limit orders against the book by price,
// then id, and reports every step as a domain event.
package matching

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/meshbook/pkg/book"
	"github.com/uhyunpark/meshbook/pkg/events"
	"github.com/uhyunpark/meshbook/pkg/util"
)

// Result summarises one MatchAndExecute call.
type Result struct {
	Fills     int   // crossing steps
	Executed  int64 // quantity traded in total
	Remaining int64 // quantity left on the incoming order
	Rested    bool  // remainder inserted into the book
}

type Engine struct {
	book  *book.Book
	pub   events.Publisher
	clock util.Clock
	log   *zap.SugaredLogger
}

func NewEngine(b *book.Book, pub events.Publisher, clock util.Clock, log *zap.SugaredLogger) *Engine {
	if pub == nil {
		pub = events.Discard
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{book: b, pub: pub, clock: clock, log: log}
}

func (e *Engine) Book() *book.Book { return e.book }

func crosses(taker, maker book.Order) bool {
	if taker.Side == book.Buy {
		return taker.Price.GreaterThanOrEqual(maker.Price)
	}
	return taker.Price.LessThanOrEqual(maker.Price)
}

// MatchAndExecute trades o against the opposite side while prices cross, then
// rests any remainder. The book's invariants hold after every step.
func (e *Engine) MatchAndExecute(o book.Order) (Result, error) {
	if err := o.Validate(); err != nil {
		return Result{}, err
	}
	if o.Quantity == 0 {
		return Result{}, &book.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	// Reject before trading: a duplicate discovered at rest time would leave
	// executed fills with no order behind them.
	if _, err := e.book.FindByID(o.ID); err == nil {
		return Result{}, fmt.Errorf("%w: %s", book.ErrDuplicateID, o.ID)
	}

	var res Result
	for o.Quantity > 0 {
		maker, ok := e.book.BestOpposing(o.Side)
		if !ok || !crosses(o, maker) {
			break
		}

		executed := min(o.Quantity, maker.Quantity)
		remaining, err := e.book.Fill(maker.ID, executed)
		if err != nil {
			return res, fmt.Errorf("fill %s: %w", maker.ID, err)
		}
		o.Quantity -= executed
		res.Fills++
		res.Executed += executed

		now := e.clock.Now()
		e.pub.Publish(events.OrderMatched{
			OrderID:          o.ID,
			MatchedWith:      maker.ID,
			ExecutedQuantity: executed,
			Timestamp:        now,
		})
		if remaining == 0 {
			e.pub.Publish(events.OrderRemoved{
				OrderID:          maker.ID,
				MatchedWith:      o.ID,
				ExecutedQuantity: executed,
				Timestamp:        now,
			})
		} else {
			e.pub.Publish(events.OrderUpdated{
				OrderID:     maker.ID,
				NewQuantity: remaining,
				Timestamp:   now,
			})
		}
		e.log.Debugw("order_matched", "taker", o.ID, "maker", maker.ID, "qty", executed, "maker_left", remaining)
	}

	res.Remaining = o.Quantity
	if o.Quantity > 0 {
		if err := e.book.Insert(o); err != nil {
			return res, fmt.Errorf("rest %s: %w", o.ID, err)
		}
		res.Rested = true
		e.pub.Publish(events.Added(o))
	}
	return res, nil
}

type DeleteResult int

const (
	Deleted DeleteResult = iota
	NotFound
	Stale // request predates the order
)

func (r DeleteResult) String() string {
	switch r {
	case Deleted:
		return "deleted"
	case NotFound:
		return "not_found"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// DeleteOrder removes the order unless the request is older than the order
// itself. Deleting an unknown id is a no-op. No event is published here.
func (e *Engine) DeleteOrder(id string, requestedAt time.Time) (book.Order, DeleteResult) {
	o, err := e.book.FindByID(id)
	if err != nil {
		return book.Order{}, NotFound
	}
	if requestedAt.Before(o.Timestamp) {
		e.log.Debugw("delete_stale", "order", id, "requested_at", requestedAt, "created_at", o.Timestamp)
		return o, Stale
	}
	removed, err := e.book.Remove(id)
	if err != nil {
		return book.Order{}, NotFound
	}
	return removed, Deleted
}

package pipeline

import (
	"sort"
	"time"

	"github.com/uhyunpark/meshbook/pkg/book"
)

// Operation is one of Add, Delete, SyncAdd, SyncUpdate or SyncRemove.
type Operation interface {
	Kind() string
	// SortKey orders a batch: timestamp first, then sequence number.
	SortKey() (time.Time, uint64)
	Subject() string
	Validate() error
	isOperation()
}

// Add is a locally submitted order that goes through matching.
type Add struct {
	Order book.Order
}

// Delete is a locally requested cancellation.
type Delete struct {
	OrderID   string
	Timestamp time.Time
}

// SyncAdd replays an order that already rested on another peer. It is inserted
// without matching.
type SyncAdd struct {
	Order book.Order
}

// SyncUpdate replays a partial fill that happened on another peer.
type SyncUpdate struct {
	OrderID     string
	NewQuantity int64
	Timestamp   time.Time
}

// SyncRemove replays a removal (full fill or deletion) from another peer.
type SyncRemove struct {
	OrderID   string
	Timestamp time.Time
}

func (Add) Kind() string        { return "add" }
func (Delete) Kind() string     { return "delete" }
func (SyncAdd) Kind() string    { return "syncAdd" }
func (SyncUpdate) Kind() string { return "syncUpdate" }
func (SyncRemove) Kind() string { return "syncRemove" }

func (op Add) SortKey() (time.Time, uint64)        { return op.Order.Timestamp, op.Order.SequenceNumber }
func (op Delete) SortKey() (time.Time, uint64)     { return op.Timestamp, 0 }
func (op SyncAdd) SortKey() (time.Time, uint64)    { return op.Order.Timestamp, op.Order.SequenceNumber }
func (op SyncUpdate) SortKey() (time.Time, uint64) { return op.Timestamp, 0 }
func (op SyncRemove) SortKey() (time.Time, uint64) { return op.Timestamp, 0 }

func (op Add) Subject() string        { return op.Order.ID }
func (op Delete) Subject() string     { return op.OrderID }
func (op SyncAdd) Subject() string    { return op.Order.ID }
func (op SyncUpdate) Subject() string { return op.OrderID }
func (op SyncRemove) Subject() string { return op.OrderID }

func (Add) isOperation()        {}
func (Delete) isOperation()     {}
func (SyncAdd) isOperation()    {}
func (SyncUpdate) isOperation() {}
func (SyncRemove) isOperation() {}

func validateRestingOrder(o book.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.Quantity == 0 {
		return &book.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	return nil
}

func validateTarget(id string, ts time.Time) error {
	if id == "" {
		return &book.ValidationError{Field: "orderId", Reason: "required"}
	}
	if ts.IsZero() {
		return &book.ValidationError{Field: "timestamp", Reason: "required"}
	}
	return nil
}

func (op Add) Validate() error        { return validateRestingOrder(op.Order) }
func (op SyncAdd) Validate() error    { return validateRestingOrder(op.Order) }
func (op Delete) Validate() error     { return validateTarget(op.OrderID, op.Timestamp) }
func (op SyncRemove) Validate() error { return validateTarget(op.OrderID, op.Timestamp) }

func (op SyncUpdate) Validate() error {
	if err := validateTarget(op.OrderID, op.Timestamp); err != nil {
		return err
	}
	if op.NewQuantity < 0 {
		return &book.ValidationError{Field: "newQuantity", Reason: "must not be negative"}
	}
	return nil
}

// rank puts operations that create an order ahead of operations that target
// one when both carry the same timestamp.
func rank(op Operation) int {
	switch op.(type) {
	case Add, SyncAdd:
		return 0
	default:
		return 1
	}
}

// SortBatch orders ops by timestamp, then creators before targeting operations,
// then sequence number. Equal keys keep their arrival order so the result is
// deterministic for a given batch.
func SortBatch(ops []Operation) {
	sort.SliceStable(ops, func(i, j int) bool {
		ti, si := ops[i].SortKey()
		tj, sj := ops[j].SortKey()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		if ri, rj := rank(ops[i]), rank(ops[j]); ri != rj {
			return ri < rj
		}
		return si < sj
	})
}

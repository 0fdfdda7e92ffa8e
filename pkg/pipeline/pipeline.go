// Package pipeline funnels every book mutation, local or replicated, through
// one consumer goroutine. Operations collect for a fixed window, are sorted by
// (timestamp, sequence number) and then applied one at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/meshbook/pkg/book"
	"github.com/uhyunpark/meshbook/pkg/events"
	"github.com/uhyunpark/meshbook/pkg/matching"
	"github.com/uhyunpark/meshbook/pkg/util"
)

var (
	ErrClosed         = errors.New("pipeline closed")
	ErrStale          = errors.New("operation older than target order")
	ErrAlreadyRunning = errors.New("pipeline already running")
)

type Config struct {
	Window           time.Duration
	QueueSize        int // buffer per producer channel
	BroadcastDeletes bool
}

func DefaultConfig() Config {
	return Config{Window: time.Second, QueueSize: 1024, BroadcastDeletes: true}
}

// Journal receives one line per applied operation.
type Journal interface {
	Append(line string)
}

// journalFlusher is implemented by journals that buffer; Flush runs once per
// applied batch.
type journalFlusher interface {
	Flush() error
}

// Observer receives pipeline measurements. All calls come from the consumer goroutine.
type Observer interface {
	OperationApplied(kind, result string)
	Matched(fills int, executed int64)
	BatchApplied(size int, took time.Duration)
	BookSize(bids, asks int)
}

type Depth struct {
	Bids []book.PriceLevel `json:"bids"` // best (highest) first
	Asks []book.PriceLevel `json:"asks"` // best (lowest) first
}

type Pipeline struct {
	cfg    Config
	book   *book.Book
	engine *matching.Engine
	pub    events.Publisher
	clock  util.Clock
	log    *zap.SugaredLogger

	// Optional, set before Run.
	Journal  Journal
	Observer Observer

	adds        chan Operation
	deletes     chan Operation
	syncAdds    chan Operation
	syncUpdates chan Operation
	syncRemoves chan Operation

	flushReq chan chan struct{}
	views    chan func(*book.Book)

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup

	running atomic.Bool
	stopped chan struct{}
}

// New builds a pipeline that owns b. Nothing else may touch b once Run starts.
func New(cfg Config, b *book.Book, pub events.Publisher, clock util.Clock, log *zap.SugaredLogger) *Pipeline {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if pub == nil {
		pub = events.Discard
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pipeline{
		cfg:         cfg,
		book:        b,
		engine:      matching.NewEngine(b, pub, clock, log),
		pub:         pub,
		clock:       clock,
		log:         log,
		adds:        make(chan Operation, cfg.QueueSize),
		deletes:     make(chan Operation, cfg.QueueSize),
		syncAdds:    make(chan Operation, cfg.QueueSize),
		syncUpdates: make(chan Operation, cfg.QueueSize),
		syncRemoves: make(chan Operation, cfg.QueueSize),
		flushReq:    make(chan chan struct{}),
		views:       make(chan func(*book.Book)),
		stopped:     make(chan struct{}),
	}
}

func (p *Pipeline) route(op Operation) (chan Operation, error) {
	switch op.(type) {
	case Add:
		return p.adds, nil
	case Delete:
		return p.deletes, nil
	case SyncAdd:
		return p.syncAdds, nil
	case SyncUpdate:
		return p.syncUpdates, nil
	case SyncRemove:
		return p.syncRemoves, nil
	default:
		return nil, fmt.Errorf("unknown operation %T", op)
	}
}

// Enqueue hands op to the consumer. It blocks while the producer's channel is
// full. Once accepted, an operation is always applied, including during shutdown.
func (p *Pipeline) Enqueue(ctx context.Context, op Operation) error {
	ch, err := p.route(op)
	if err != nil {
		return err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	p.inflight.Add(1)
	p.mu.RUnlock()
	defer p.inflight.Done()

	select {
	case ch <- op:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restore seeds the book from a snapshot. Only valid before Run.
func (p *Pipeline) Restore(orders []book.Order) (restored int, err error) {
	if p.running.Load() {
		return 0, ErrAlreadyRunning
	}
	for _, o := range orders {
		if err := p.book.Insert(o); err != nil {
			p.log.Warnw("restore_skip", "order", o.ID, "err", err)
			continue
		}
		restored++
	}
	return restored, nil
}

// Run is the single consumer loop. It returns after ctx is cancelled and every
// accepted operation has been applied.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(p.stopped)

	var pending []Operation
	tick := p.clock.After(p.cfg.Window)

	for {
		select {
		case <-ctx.Done():
			pending = p.shutdown(pending)
			p.applyBatch(pending)
			p.log.Infow("pipeline_stopped", "final_batch", len(pending))
			return ctx.Err()

		case op := <-p.adds:
			pending = append(pending, op)
		case op := <-p.deletes:
			pending = append(pending, op)
		case op := <-p.syncAdds:
			pending = append(pending, op)
		case op := <-p.syncUpdates:
			pending = append(pending, op)
		case op := <-p.syncRemoves:
			pending = append(pending, op)

		case <-tick:
			p.applyBatch(p.drainReady(pending))
			pending = nil
			tick = p.clock.After(p.cfg.Window)

		case done := <-p.flushReq:
			p.applyBatch(p.drainReady(pending))
			pending = nil
			tick = p.clock.After(p.cfg.Window)
			close(done)

		case view := <-p.views:
			view(p.book)
		}
	}
}

// drainReady moves whatever is already buffered into the batch without waiting.
func (p *Pipeline) drainReady(pending []Operation) []Operation {
	for _, ch := range []chan Operation{p.adds, p.deletes, p.syncAdds, p.syncUpdates, p.syncRemoves} {
		for n := len(ch); n > 0; n-- {
			pending = append(pending, <-ch)
		}
	}
	return pending
}

// shutdown stops new producers and collects everything already accepted.
func (p *Pipeline) shutdown(pending []Operation) []Operation {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(idle)
	}()

	for {
		select {
		case op := <-p.adds:
			pending = append(pending, op)
		case op := <-p.deletes:
			pending = append(pending, op)
		case op := <-p.syncAdds:
			pending = append(pending, op)
		case op := <-p.syncUpdates:
			pending = append(pending, op)
		case op := <-p.syncRemoves:
			pending = append(pending, op)
		case <-idle:
			return p.drainReady(pending)
		}
	}
}

func (p *Pipeline) applyBatch(ops []Operation) {
	if len(ops) == 0 {
		return
	}
	start := time.Now()
	SortBatch(ops)

	failed := 0
	for _, op := range ops {
		if err := p.apply(op); err != nil && !benign(err) {
			failed++
		}
	}

	if f, ok := p.Journal.(journalFlusher); ok {
		if err := f.Flush(); err != nil {
			p.log.Warnw("journal_flush_failed", "err", err)
		}
	}

	took := time.Since(start)
	if p.Observer != nil {
		p.Observer.BatchApplied(len(ops), took)
		p.Observer.BookSize(p.book.Count(book.Buy), p.book.Count(book.Sell))
	}
	p.log.Debugw("batch_applied", "ops", len(ops), "failed", failed, "took_ms", took.Milliseconds(), "book_size", p.book.Len())
}

// apply is the per-operation error boundary: nothing, not even a panic,
// escapes to the batch.
func (p *Pipeline) apply(op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic applying %s %s: %v", op.Kind(), op.Subject(), r)
		}
		p.record(op, err)
	}()

	if err := op.Validate(); err != nil {
		return err
	}

	switch o := op.(type) {
	case Add:
		res, err := p.engine.MatchAndExecute(o.Order)
		if p.Observer != nil && res.Fills > 0 {
			p.Observer.Matched(res.Fills, res.Executed)
		}
		return err

	case Delete:
		_, outcome := p.engine.DeleteOrder(o.OrderID, o.Timestamp)
		if outcome == matching.Deleted && p.cfg.BroadcastDeletes {
			p.pub.Publish(events.OrderRemoved{OrderID: o.OrderID, Timestamp: o.Timestamp})
		}
		return outcomeErr(o.OrderID, outcome)

	case SyncAdd:
		// Already matched on the origin peer; matching again would double-execute.
		return p.book.Insert(o.Order)

	case SyncUpdate:
		cur, err := p.book.FindByID(o.OrderID)
		if err != nil {
			return err
		}
		if o.Timestamp.Before(cur.Timestamp) {
			return fmt.Errorf("%w: update of %s", ErrStale, o.OrderID)
		}
		_, err = p.book.SetQuantity(o.OrderID, o.NewQuantity)
		return err

	case SyncRemove:
		_, outcome := p.engine.DeleteOrder(o.OrderID, o.Timestamp)
		return outcomeErr(o.OrderID, outcome)

	default:
		return fmt.Errorf("unknown operation %T", op)
	}
}

func outcomeErr(id string, r matching.DeleteResult) error {
	switch r {
	case matching.NotFound:
		return fmt.Errorf("%w: %s", book.ErrNotFound, id)
	case matching.Stale:
		return fmt.Errorf("%w: delete of %s", ErrStale, id)
	default:
		return nil
	}
}

// benign errors are expected outcomes of replication races, not failures.
func benign(err error) bool {
	return errors.Is(err, book.ErrNotFound) || errors.Is(err, ErrStale)
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, book.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStale):
		return "stale"
	case errors.Is(err, book.ErrDuplicateID):
		return "duplicate"
	case book.IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}

func (p *Pipeline) record(op Operation, err error) {
	result := resultOf(err)
	if p.Observer != nil {
		p.Observer.OperationApplied(op.Kind(), result)
	}
	if p.Journal != nil {
		ts, seq := op.SortKey()
		p.Journal.Append(fmt.Sprintf("%s %s %s seq=%d result=%s", ts.UTC().Format(time.RFC3339Nano), op.Kind(), op.Subject(), seq, result))
	}
	switch {
	case err == nil:
	case benign(err):
		p.log.Debugw("operation_skipped", "kind", op.Kind(), "order", op.Subject(), "result", result)
	default:
		p.log.Warnw("operation_failed", "kind", op.Kind(), "order", op.Subject(), "result", result, "err", err)
	}
}

// Flush closes the current window now and waits until it has been applied.
func (p *Pipeline) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case p.flushReq <- done:
	case <-p.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// view runs fn on the consumer goroutine between batches. fn must not retain b.
func (p *Pipeline) view(ctx context.Context, fn func(b *book.Book)) error {
	select {
	case p.views <- fn:
		return nil
	case <-p.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns every live order in id order, taken between batches.
func (p *Pipeline) Snapshot(ctx context.Context) ([]book.Order, error) {
	out := make(chan []book.Order, 1)
	if err := p.view(ctx, func(b *book.Book) { out <- b.Orders() }); err != nil {
		return nil, err
	}
	return <-out, nil
}

// Depth returns aggregated price levels for both sides.
func (p *Pipeline) Depth(ctx context.Context) (Depth, error) {
	out := make(chan Depth, 1)
	if err := p.view(ctx, func(b *book.Book) {
		out <- Depth{Bids: b.Levels(book.Buy), Asks: b.Levels(book.Sell)}
	}); err != nil {
		return Depth{}, err
	}
	return <-out, nil
}

// Order looks a single order up by id.
func (p *Pipeline) Order(ctx context.Context, id string) (book.Order, error) {
	type result struct {
		o   book.Order
		err error
	}
	out := make(chan result, 1)
	if err := p.view(ctx, func(b *book.Book) {
		o, err := b.FindByID(id)
		out <- result{o, err}
	}); err != nil {
		return book.Order{}, err
	}
	r := <-out
	return r.o, r.err
}

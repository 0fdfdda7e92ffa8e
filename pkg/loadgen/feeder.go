package loadgen

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/meshbook/pkg/rpc"
)

// Config controls request generation rate and shape
type Config struct {
	Interval      time.Duration // How often to submit a batch
	BatchSize     int           // Requests per batch
	BasePrice     decimal.Decimal
	Tick          decimal.Decimal
	SpreadTicks   int64 // prices fall within BasePrice ± SpreadTicks*Tick
	MaxQuantity   int64
	CancelPercent int
}

func DefaultConfig() Config {
	return Config{
		Interval:      2 * time.Second,
		BatchSize:     1,
		BasePrice:     decimal.NewFromInt(100),
		Tick:          decimal.NewFromInt(1),
		SpreadTicks:   5,
		MaxQuantity:   10,
		CancelPercent: 10,
	}
}

// Submitter is the node-side request surface (rpc.Handler, or an HTTP client).
type Submitter interface {
	Handle(ctx context.Context, req rpc.Request) (rpc.Reply, error)
}

type Stats struct {
	Submitted int
	Failed    int
}

type Feeder struct {
	cfg Config
	gen *Generator
	sub Submitter
	log *zap.SugaredLogger
}

func NewFeeder(cfg Config, sub Submitter, log *zap.SugaredLogger) *Feeder {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if !cfg.BasePrice.IsPositive() {
		cfg.BasePrice = def.BasePrice
	}
	if !cfg.Tick.IsPositive() {
		cfg.Tick = def.Tick
	}
	if cfg.SpreadTicks < 0 {
		cfg.SpreadTicks = 0
	}
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = def.MaxQuantity
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Feeder{cfg: cfg, gen: NewGenerator(cfg, time.Now().UnixNano()), sub: sub, log: log}
}

// SubmitBatch sends one batch and returns how many requests were accepted.
func (f *Feeder) SubmitBatch(ctx context.Context) (accepted int) {
	for i := 0; i < f.cfg.BatchSize; i++ {
		req := f.gen.Next(time.Now().UTC())
		reply, err := f.sub.Handle(ctx, req)
		if err != nil {
			f.log.Warnw("loadgen_request_failed", "type", req.Type, "err", err)
			continue
		}
		if req.Type == rpc.AddOrder {
			f.gen.Accepted(reply.OrderID)
		}
		accepted++
	}
	return accepted
}

// Run submits batches every Interval until ctx is done.
func (f *Feeder) Run(ctx context.Context) Stats {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	var st Stats
	start := time.Now()
	f.log.Infow("loadgen_started", "batch", f.cfg.BatchSize, "interval", f.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			elapsed := time.Since(start)
			f.log.Infow("loadgen_stopped", "submitted", st.Submitted, "failed", st.Failed,
				"rate_per_sec", float64(st.Submitted)/elapsed.Seconds())
			return st
		case <-ticker.C:
			n := f.SubmitBatch(ctx)
			st.Submitted += n
			st.Failed += f.cfg.BatchSize - n
		}
	}
}

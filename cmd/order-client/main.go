package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/meshbook/pkg/api"
	"github.com/uhyunpark/meshbook/pkg/loadgen"
	"github.com/uhyunpark/meshbook/pkg/util"
)

func main() {
	def := loadgen.DefaultConfig()
	var (
		node     = flag.String("node", "http://localhost:8080", "node API base URL")
		interval = flag.Duration("interval", def.Interval, "time between batches")
		batch    = flag.Int("batch", def.BatchSize, "requests per batch")
		base     = flag.String("base-price", def.BasePrice.String(), "mid price orders are generated around")
		spread   = flag.Int64("spread", def.SpreadTicks, "price spread in ticks either side of the base")
		maxQty   = flag.Int64("max-qty", def.MaxQuantity, "largest generated quantity")
		cancels  = flag.Int("cancel-pct", def.CancelPercent, "percent of requests that cancel a recent order")
		duration = flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logger, err := util.NewLogger(*verbose)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	price, err := decimal.NewFromString(*base)
	if err != nil {
		sugar.Fatalw("invalid_base_price", "value", *base, "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	cfg := def
	cfg.Interval = *interval
	cfg.BatchSize = *batch
	cfg.BasePrice = price
	cfg.SpreadTicks = *spread
	cfg.MaxQuantity = *maxQty
	cfg.CancelPercent = *cancels

	feeder := loadgen.NewFeeder(cfg, api.NewClient(*node), sugar.With("node", *node))
	st := feeder.Run(ctx)
	sugar.Infow("order_client_done", "submitted", st.Submitted, "failed", st.Failed)
	if st.Submitted == 0 && st.Failed > 0 {
		os.Exit(1)
	}
}

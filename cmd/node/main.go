package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/meshbook/params"
	"github.com/uhyunpark/meshbook/pkg/api"
	"github.com/uhyunpark/meshbook/pkg/book"
	"github.com/uhyunpark/meshbook/pkg/events"
	"github.com/uhyunpark/meshbook/pkg/export"
	"github.com/uhyunpark/meshbook/pkg/loadgen"
	"github.com/uhyunpark/meshbook/pkg/metrics"
	"github.com/uhyunpark/meshbook/pkg/p2p"
	"github.com/uhyunpark/meshbook/pkg/pipeline"
	"github.com/uhyunpark/meshbook/pkg/rpc"
	"github.com/uhyunpark/meshbook/pkg/storage"
	"github.com/uhyunpark/meshbook/pkg/syncbridge"
	"github.com/uhyunpark/meshbook/pkg/util"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.Verbose)
	} else {
		logger, err = util.NewLogger(cfg.Node.Verbose)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar().With("peer", cfg.Network.PeerID)
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "verbose", cfg.Node.Verbose)

	// ---- Persistence ----
	var (
		store   storage.SnapshotStore
		journal pipeline.Journal = storage.NewNopWAL()
	)
	if cfg.Node.DataDir != "" {
		if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
			sugar.Fatalw("data_dir_failed", "dir", cfg.Node.DataDir, "err", err)
		}
		ps, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "snapshot"))
		if err != nil {
			sugar.Fatalw("snapshot_store_open_failed", "err", err)
		}
		store = ps
		wal, err := storage.NewFileWAL(filepath.Join(cfg.Node.DataDir, "operations.wal"))
		if err != nil {
			sugar.Fatalw("wal_open_failed", "err", err)
		}
		defer wal.Close()
		journal = wal
	} else {
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	// ---- Core ----
	clock := util.RealClock{}
	bus := events.NewBus()
	m := metrics.New()

	b := book.New()
	pipe := pipeline.New(pipeline.Config{
		Window:           cfg.Pipeline.BatchWindow,
		QueueSize:        cfg.Pipeline.QueueSize,
		BroadcastDeletes: cfg.Pipeline.BroadcastDeletes,
	}, b, bus, clock, sugar)
	pipe.Journal = journal
	pipe.Observer = m

	seq := restore(sugar, store, pipe, cfg.Network.PeerID)
	handler := rpc.NewHandler(cfg.Network.PeerID, pipe, seq, clock, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Network ----
	net, err := p2p.NewNet(ctx, p2p.Config{
		ListenAddr: cfg.Network.ListenAddr,
		Bootstrap:  cfg.Network.Bootstrap,
		Topic:      cfg.Network.Topic,
		Requests:   handler,
		Logger:     sugar,
	})
	if err != nil {
		sugar.Fatalw("libp2p_init_failed", "err", err)
	}
	defer net.Close()

	hub := api.NewHub(sugar)
	outs := syncbridge.Broadcasters{net, hub}
	if len(cfg.Export.KafkaBrokers) > 0 {
		sink := export.NewKafkaSink(cfg.Export.KafkaBrokers, cfg.Export.KafkaTopic, cfg.Network.PeerID)
		defer sink.Close()
		outs = append(outs, sink)
		sugar.Infow("kafka_export_enabled", "brokers", cfg.Export.KafkaBrokers, "topic", cfg.Export.KafkaTopic)
	}

	bridge := syncbridge.New(bus, outs, pipe, cfg.Pipeline.QueueSize, sugar)
	bridge.Observer = m

	// The bridge outlives ctx so the final batch's events still go out.
	bridgeCtx, cancelBridge := context.WithCancel(context.Background())
	defer cancelBridge()
	bridgeDone := make(chan struct{})
	go func() {
		bridge.Run(bridgeCtx)
		close(bridgeDone)
	}()
	go net.Listen(ctx, bridge.HandleRaw)

	// ---- Pipeline ----
	pipeDone := make(chan struct{})
	go func() {
		defer close(pipeDone)
		if err := pipe.Run(ctx); err != nil && ctx.Err() == nil {
			sugar.Errorw("pipeline_failed", "err", err)
			stop()
		}
	}()

	// ---- API Server ----
	apiServer := api.NewServer(api.Config{
		PeerID:   cfg.Network.PeerID,
		Views:    pipe,
		Requests: handler,
		Hub:      hub,
		Metrics:  promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		Peers:    func() int { return len(net.Peers()) },
		Logger:   sugar,
	})
	go func() {
		if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
			sugar.Errorw("api_server_failed", "err", err)
			stop()
		}
	}()

	// ---- Order generator (optional) ----
	if cfg.Node.EnableOrderGen {
		feeder := loadgen.NewFeeder(loadgen.DefaultConfig(), handler, sugar)
		go feeder.Run(ctx)
	}

	sugar.Infow("node_started",
		"api", cfg.Node.APIAddr,
		"topic", cfg.Network.Topic,
		"batch_window_ms", cfg.Pipeline.BatchWindow.Milliseconds(),
		"broadcast_deletes", cfg.Pipeline.BroadcastDeletes)

	var snapshots <-chan time.Time
	if cfg.Node.SnapshotInterval > 0 {
		ticker := time.NewTicker(cfg.Node.SnapshotInterval)
		defer ticker.Stop()
		snapshots = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			<-pipeDone
			// The consumer has exited, so the book can be read directly.
			saveSnapshot(sugar, store, b.Orders(), seq)

			// Closing the bus lets the bridge drain what the last batch published.
			bus.Close()
			select {
			case <-bridgeDone:
			case <-time.After(5 * time.Second):
				sugar.Warnw("sync_bridge_drain_timeout")
				cancelBridge()
			}
			sugar.Infow("node_stopped", "orders", b.Len())
			return

		case <-snapshots:
			snapCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			orders, err := pipe.Snapshot(snapCtx)
			cancel()
			if err != nil {
				sugar.Warnw("snapshot_failed", "err", err)
				continue
			}
			saveSnapshot(sugar, store, orders, seq)
		}
	}
}

// restore loads the last snapshot into the pipeline and resumes the local
// sequence counter past anything already used.
func restore(sugar *zap.SugaredLogger, store storage.SnapshotStore, pipe *pipeline.Pipeline, peerID string) *util.Sequencer {
	last, err := store.LoadSequence()
	if err != nil {
		sugar.Warnw("sequence_load_failed", "err", err)
	}
	seq := util.NewSequencer(last)

	orders, err := store.LoadOrders()
	if err != nil {
		sugar.Warnw("snapshot_load_partial", "err", err)
	}
	for _, o := range orders {
		if o.PeerID == peerID {
			seq.Observe(o.SequenceNumber)
		}
	}
	n, err := pipe.Restore(orders)
	if err != nil {
		sugar.Fatalw("snapshot_restore_failed", "err", err)
	}
	sugar.Infow("snapshot_restored", "orders", n, "sequence", seq.Current())
	return seq
}

func saveSnapshot(sugar *zap.SugaredLogger, store storage.SnapshotStore, orders []book.Order, seq *util.Sequencer) {
	if err := store.SaveOrders(orders); err != nil {
		sugar.Warnw("snapshot_save_failed", "err", err)
		return
	}
	if err := store.SaveSequence(seq.Current()); err != nil {
		sugar.Warnw("sequence_save_failed", "err", err)
	}
	sugar.Debugw("snapshot_saved", "orders", len(orders), "sequence", seq.Current())
}

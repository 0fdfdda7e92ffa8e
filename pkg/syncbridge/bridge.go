// Package syncbridge connects the local event bus to the peer network.
// Outbound, every domain event is wrapped into an Envelope and broadcast.
// Inbound, envelopes from other peers become sync operations.
package syncbridge

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/uhyunpark/meshbook/pkg/events"
	"github.com/uhyunpark/meshbook/pkg/pipeline"
)

// Broadcaster delivers envelopes to other peers (gossip, kafka, websocket hub).
type Broadcaster interface {
	Broadcast(ctx context.Context, env Envelope) error
}

// Broadcasters sends to each in turn and joins the errors.
type Broadcasters []Broadcaster

func (bs Broadcasters) Broadcast(ctx context.Context, env Envelope) error {
	var errs []error
	for _, b := range bs {
		if err := b.Broadcast(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, op pipeline.Operation) error
}

type Observer interface {
	Envelope(direction, action string)
}

const (
	Outbound = "out"
	Inbound  = "in"
)

type Bridge struct {
	sub *events.Subscription
	out Broadcaster
	in  Enqueuer
	log *zap.SugaredLogger

	Observer Observer // optional, set before Run
}

// New subscribes to every event kind immediately so nothing published before
// Run is missed.
func New(bus *events.Bus, out Broadcaster, in Enqueuer, buffer int, log *zap.SugaredLogger) *Bridge {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Bridge{
		sub: bus.Subscribe(buffer),
		out: out,
		in:  in,
		log: log,
	}
}

// Run forwards events until the bus is closed. ctx is passed to the
// broadcaster only; stopping early would lose events from the final batch.
func (b *Bridge) Run(ctx context.Context) {
	for ev := range b.sub.Events() {
		env, err := Wrap(ev)
		if err != nil {
			b.log.Warnw("envelope_wrap_failed", "kind", ev.Kind(), "order", ev.Subject(), "err", err)
			continue
		}
		b.observe(Outbound, string(env.Action))
		if b.out == nil {
			continue
		}
		if err := b.out.Broadcast(ctx, env); err != nil {
			b.log.Warnw("broadcast_failed", "action", env.Action, "order", ev.Subject(), "err", err)
		}
	}
	b.log.Infow("sync_bridge_stopped")
}

// Close detaches from the bus; Run returns after draining what was buffered.
func (b *Bridge) Close() { b.sub.Close() }

// HandleInbound translates a peer's envelope into a sync operation. Matches
// are informational and produce nothing; unknown actions are dropped.
func (b *Bridge) HandleInbound(ctx context.Context, env Envelope) error {
	b.observe(Inbound, actionLabel(env.Action))

	ev, err := env.Event()
	if err != nil {
		b.log.Warnw("sync_envelope_dropped", "action", env.Action, "err", err)
		return err
	}

	var op pipeline.Operation
	switch e := ev.(type) {
	case events.OrderAdded:
		op = pipeline.SyncAdd{Order: e.Order()}
	case events.OrderUpdated:
		op = pipeline.SyncUpdate{OrderID: e.OrderID, NewQuantity: e.NewQuantity, Timestamp: e.Timestamp}
	case events.OrderRemoved:
		op = pipeline.SyncRemove{OrderID: e.OrderID, Timestamp: e.Timestamp}
	case events.OrderMatched:
		b.log.Debugw("sync_match_seen", "order", e.OrderID, "matched_with", e.MatchedWith, "qty", e.ExecutedQuantity)
		return nil
	}
	return b.in.Enqueue(ctx, op)
}

// HandleRaw decodes a wire message and passes it to HandleInbound.
func (b *Bridge) HandleRaw(ctx context.Context, data []byte) error {
	env, err := Decode(data)
	if err != nil {
		b.observe(Inbound, "malformed")
		b.log.Warnw("sync_envelope_dropped", "err", err)
		return err
	}
	return b.HandleInbound(ctx, env)
}

// actionLabel keeps peer-controlled strings out of metric labels.
func actionLabel(k events.Kind) string {
	for _, known := range events.AllKinds {
		if k == known {
			return string(k)
		}
	}
	return "unknown"
}

func (b *Bridge) observe(direction, action string) {
	if b.Observer != nil {
		b.Observer.Envelope(direction, action)
	}
}

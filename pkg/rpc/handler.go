// Package rpc turns client requests into pipeline operations.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/uhyunpark/meshbook/pkg/book"
	"github.com/uhyunpark/meshbook/pkg/pipeline"
	"github.com/uhyunpark/meshbook/pkg/util"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, op pipeline.Operation) error
}

// Handler is the request surface shared by the HTTP API and the peer stream.
type Handler struct {
	peerID string
	pipe   Enqueuer
	seq    *util.Sequencer
	clock  util.Clock
	log    *zap.SugaredLogger
}

func NewHandler(peerID string, pipe Enqueuer, seq *util.Sequencer, clock util.Clock, log *zap.SugaredLogger) *Handler {
	if seq == nil {
		seq = util.NewSequencer(0)
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{peerID: peerID, pipe: pipe, seq: seq, clock: clock, log: log}
}

// Handle validates req and enqueues the matching operation. The reply only
// acknowledges acceptance; the outcome is observable as events.
func (h *Handler) Handle(ctx context.Context, req Request) (Reply, error) {
	if err := req.Validate(); err != nil {
		return Reply{}, err
	}

	switch req.Type {
	case AddOrder:
		o := h.buildOrder(*req.Order)
		if err := h.pipe.Enqueue(ctx, pipeline.Add{Order: o}); err != nil {
			return Reply{}, fmt.Errorf("enqueue add %s: %w", o.ID, err)
		}
		h.log.Debugw("request_add", "order", o.ID, "side", o.Side, "price", o.Price, "qty", o.Quantity)
		return Reply{Status: StatusProcessed, OrderID: o.ID}, nil

	case DeleteOrder:
		ts := h.clock.Now()
		if req.Timestamp != nil {
			ts = *req.Timestamp
		}
		if err := h.pipe.Enqueue(ctx, pipeline.Delete{OrderID: req.OrderID, Timestamp: ts}); err != nil {
			return Reply{}, fmt.Errorf("enqueue delete %s: %w", req.OrderID, err)
		}
		h.log.Debugw("request_delete", "order", req.OrderID, "requested_at", ts)
		return Reply{Status: StatusProcessed, OrderID: req.OrderID}, nil
	}
	return Reply{}, &book.ValidationError{Field: "type", Reason: fmt.Sprintf("unsupported %q", req.Type)}
}

func (h *Handler) buildOrder(body OrderBody) book.Order {
	peer := body.PeerID
	if peer == "" {
		peer = h.peerID
	}
	ts := h.clock.Now()
	if body.Timestamp != nil {
		ts = *body.Timestamp
	}
	seq := body.SequenceNumber
	if seq == 0 {
		seq = h.seq.Next()
	} else if peer == h.peerID {
		h.seq.Observe(seq)
	}
	return book.Order{
		ID:             book.NewOrderID(peer, ts, seq),
		PeerID:         peer,
		Price:          body.Price,
		Quantity:       body.Quantity,
		Side:           body.Type,
		SequenceNumber: seq,
		Timestamp:      ts.UTC(),
	}
}

// HandleJSON is Handle for raw request bodies; it always returns a JSON reply.
func (h *Handler) HandleJSON(ctx context.Context, body []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return errorReply(&book.ValidationError{Field: "request", Reason: "malformed json"}), err
	}
	reply, err := h.Handle(ctx, req)
	if err != nil {
		return errorReply(err), err
	}
	out, _ := json.Marshal(reply)
	return out, nil
}

func errorReply(err error) []byte {
	out, _ := json.Marshal(map[string]string{"status": "error", "error": err.Error()})
	return out
}

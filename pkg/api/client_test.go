package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/meshbook/pkg/book"
	"github.com/uhyunpark/meshbook/pkg/pipeline"
	"github.com/uhyunpark/meshbook/pkg/rpc"
)

func TestClientRoundTrip(t *testing.T) {
	s, q := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	reply, err := c.Handle(context.Background(), rpc.Request{
		Type:  rpc.AddOrder,
		Order: &rpc.OrderBody{Price: decimal.NewFromInt(100), Quantity: 3, Type: book.Sell},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.HasPrefix(reply.OrderID, "order_p1_") {
		t.Errorf("order id = %q", reply.OrderID)
	}
	if len(q.ops) != 1 {
		t.Fatalf("got %d ops, want 1", len(q.ops))
	}
	add, ok := q.ops[0].(pipeline.Add)
	if !ok || add.Order.Side != book.Sell || add.Order.Quantity != 3 {
		t.Errorf("op = %+v", q.ops[0])
	}
}

func TestClientRejected(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	_, err := NewClient(srv.URL).Handle(context.Background(), rpc.Request{Type: rpc.DeleteOrder})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err = %v, want 400 rejection", err)
	}
}

package rpc

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/meshbook/pkg/book"
)

type Kind string

const (
	AddOrder    Kind = "ADD_ORDER"
	DeleteOrder Kind = "DELETE_ORDER"
)

// Request is what a client sends to a node, over HTTP or the peer stream.
type Request struct {
	Type      Kind       `json:"type" validate:"required,oneof=ADD_ORDER DELETE_ORDER"`
	Order     *OrderBody `json:"order,omitempty" validate:"required_if=Type ADD_ORDER"`
	OrderID   string     `json:"orderId,omitempty" validate:"required_if=Type DELETE_ORDER"`
	Timestamp *time.Time `json:"timestamp,omitempty"` // delete request time, defaults to now
}

// OrderBody leaves peerId, sequenceNumber and timestamp optional; the node
// fills them in.
type OrderBody struct {
	PeerID         string          `json:"peerId,omitempty" validate:"omitempty,max=64,excludesall=_"`
	Price          decimal.Decimal `json:"price" validate:"gt=0"`
	Quantity       int64           `json:"quantity" validate:"gte=1"`
	Type           book.Side       `json:"type" validate:"required,oneof=buy sell"`
	SequenceNumber uint64          `json:"sequenceNumber,omitempty"`
	Timestamp      *time.Time      `json:"timestamp,omitempty"`
}

type Reply struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId,omitempty"`
}

const StatusProcessed = "Order processed"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json names so errors match what the client sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Compare decimals numerically; gt=0 only needs the sign.
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		d, ok := f.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		return d.Sign()
	}, decimal.Decimal{})
	return v
}

// Validate returns a *book.ValidationError for the first offending field.
func (r Request) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return &book.ValidationError{Field: "request", Reason: err.Error()}
	}
	fe := verrs[0]
	reason := fe.Tag()
	if fe.Param() != "" {
		reason += "=" + fe.Param()
	}
	return &book.ValidationError{Field: strings.TrimPrefix(fe.Namespace(), "Request."), Reason: reason}
}

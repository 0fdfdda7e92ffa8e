package syncbridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uhyunpark/meshbook/pkg/events"
)

var ErrUnknownAction = errors.New("unknown envelope action")

// Envelope is the broadcast record exchanged with peers: one per event.
type Envelope struct {
	Action events.Kind     `json:"action"`
	Data   json.RawMessage `json:"data"`
}

func Wrap(ev events.Event) (Envelope, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}
	return Envelope{Action: ev.Kind(), Data: data}, nil
}

// Event decodes Data according to Action.
func (e Envelope) Event() (events.Event, error) {
	var (
		ev  events.Event
		err error
	)
	switch e.Action {
	case events.KindOrderAdded:
		var v events.OrderAdded
		err = json.Unmarshal(e.Data, &v)
		ev = v
	case events.KindOrderMatched:
		var v events.OrderMatched
		err = json.Unmarshal(e.Data, &v)
		ev = v
	case events.KindOrderUpdated:
		var v events.OrderUpdated
		err = json.Unmarshal(e.Data, &v)
		ev = v
	case events.KindOrderRemoved:
		var v events.OrderRemoved
		err = json.Unmarshal(e.Data, &v)
		ev = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, e.Action)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.Action, err)
	}
	return ev, nil
}

// Encode is the wire form used on the gossip topic.
func (e Envelope) Encode() ([]byte, error) { return json.Marshal(e) }

func Decode(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return e, nil
}

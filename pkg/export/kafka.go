// Package export ships broadcast envelopes to external consumers.
package export

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/uhyunpark/meshbook/pkg/syncbridge"
)

// messageWriter is the part of kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes every envelope to a topic, keyed by order id so one
// order's events stay on one partition in order.
type KafkaSink struct {
	writer messageWriter
	peerID string
}

func NewKafkaSink(brokers []string, topic, peerID string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		peerID: peerID,
	}
}

func (s *KafkaSink) Broadcast(ctx context.Context, env syncbridge.Envelope) error {
	ev, err := env.Event()
	if err != nil {
		return err
	}
	value, err := env.Encode()
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Subject()),
		Value: value,
		Time:  ev.OccurredAt(),
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(env.Action)},
			{Key: "peer", Value: []byte(s.peerID)},
		},
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

var _ syncbridge.Broadcaster = (*KafkaSink)(nil)

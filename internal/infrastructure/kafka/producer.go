// Package kafka carries storefront events over Kafka topics.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/example/ec-storefront/internal/events"
)

// Producer publishes envelopes keyed by aggregate id, so every event for one
// order lands on the same partition.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func (p *Producer) Publish(ctx context.Context, e events.Envelope) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}
	msg := kafka.Message{
		Key:   []byte(e.AggregateID),
		Value: data,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s", e.Type)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

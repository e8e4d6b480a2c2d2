package kafka

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/events"
)

// Consumer reads envelopes as part of a consumer group and commits each
// message after the handler returns, successful or not. Handler failures are
// logged; notifications are best-effort and never block the partition.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{reader: kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})}
}

func (c *Consumer) Consume(ctx context.Context, handle events.Handler) error {
	lg := zctx.From(ctx)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "fetch message")
		}

		var e events.Envelope
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			lg.Warn("Skipping malformed event",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		} else if err := handle(ctx, e); err != nil {
			lg.Error("Handle event",
				zap.String("type", e.Type),
				zap.String("event_id", e.ID),
				zap.Error(err),
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "commit")
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

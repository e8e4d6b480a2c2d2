// Package rabbitmq carries storefront events over a durable topic exchange.
package rabbitmq

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/events"
)

// Broker owns one connection and channel.
type Broker struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// Dial connects and declares the topic exchange plus its dead-letter
// exchange.
func Dial(url, exchange string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	b := &Broker{conn: conn, ch: ch, exchange: exchange}
	if err := b.declareExchanges(); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Broker) dlx() string { return b.exchange + ".dlx" }

func (b *Broker) declareExchanges() error {
	if err := b.ch.ExchangeDeclare(b.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return errors.Wrapf(err, "declare exchange %q", b.exchange)
	}
	if err := b.ch.ExchangeDeclare(b.dlx(), amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return errors.Wrapf(err, "declare exchange %q", b.dlx())
	}
	return nil
}

// Publish sends e persistently with its type as routing key.
func (b *Broker) Publish(ctx context.Context, e events.Envelope) error {
	body, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}
	err = b.ch.PublishWithContext(ctx, b.exchange, e.Type, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    e.ID,
		Timestamp:    e.OccurredAt,
		Type:         e.Type,
		Body:         body,
	})
	if err != nil {
		return errors.Wrapf(err, "publish %s", e.Type)
	}
	return nil
}

// Consume binds queue to every event type and hands deliveries to handle.
// Failed deliveries are rejected without requeue and land in the queue's
// dead-letter companion.
func (b *Broker) Consume(ctx context.Context, queue string, handle events.Handler) error {
	dlq := queue + ".dead"
	if _, err := b.ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "declare dead-letter queue")
	}
	if err := b.ch.QueueBind(dlq, "", b.dlx(), false, nil); err != nil {
		return errors.Wrap(err, "bind dead-letter queue")
	}
	if _, err := b.ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": b.dlx(),
	}); err != nil {
		return errors.Wrapf(err, "declare queue %q", queue)
	}
	if err := b.ch.QueueBind(queue, "#", b.exchange, false, nil); err != nil {
		return errors.Wrapf(err, "bind queue %q", queue)
	}
	if err := b.ch.Qos(16, 0, false); err != nil {
		return errors.Wrap(err, "qos")
	}

	deliveries, err := b.ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "consume")
	}

	lg := zctx.From(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			var e events.Envelope
			if err := json.Unmarshal(d.Body, &e); err != nil {
				lg.Warn("Rejecting malformed event", zap.String("message_id", d.MessageId), zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			if err := handle(ctx, e); err != nil {
				lg.Error("Handle event", zap.String("type", e.Type), zap.String("event_id", e.ID), zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (b *Broker) Close() error {
	var chErr error
	if b.ch != nil {
		chErr = b.ch.Close()
	}
	if err := b.conn.Close(); err != nil {
		return errors.Wrap(err, "close connection")
	}
	return chErr
}

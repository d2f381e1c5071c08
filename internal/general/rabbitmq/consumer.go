package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// handlerTimeout bounds a single delivery. A handler that exceeds it gets a
// cancelled context and its message is dropped like any other failure.
const handlerTimeout = 30 * time.Second

// Consume reads a queue with manual acks until ctx is cancelled or the
// channel dies. A handler error nacks the delivery without requeue, so a
// poison message cannot wedge the queue. The caller is expected to loop and
// call Consume again after a channel-level failure.
func (client *Client) Consume(
	ctx context.Context,
	queue string,
	consumerTag string,
	prefetch int,
	handler func(context.Context, amqp.Delivery) error,
) error {
	ch, err := client.newConsumerChannel(prefetch)
	if err != nil {
		return err
	}
	defer ch.Close()

	deliveries, err := ch.Consume(queue, consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal (ignored by RabbitMQ)
		false, // noWait
		nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume(%s): %w", queue, err)
	}

	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			if consumerTag != "" {
				_ = ch.Cancel(consumerTag, false)
			}
			return nil

		case cerr := <-chClosed:
			if cerr != nil {
				return fmt.Errorf("rabbitmq: channel closed while consuming %s: %w", queue, cerr)
			}
			return nil

		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			settle(ctx, d, handler)
		}
	}
}

// settle runs the handler under the delivery timeout and acks or nacks
// accordingly. Ack/Nack errors are ignored: the channel close notification
// is what tears the loop down.
func settle(ctx context.Context, d amqp.Delivery, handler func(context.Context, amqp.Delivery) error) {
	hCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if err := handler(hCtx, d); err != nil {
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// newConsumerChannel opens a dedicated channel with prefetch (QoS) applied.
// prefetch <= 0 is clamped to 1 so a consumer never runs unbounded.
func (client *Client) newConsumerChannel(prefetch int) (*amqp.Channel, error) {
	client.mu.RLock()
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, errors.New("rabbitmq: connection is not ready")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	if prefetch < 1 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("rabbitmq: set QoS (prefetch=%d): %w", prefetch, err)
	}

	return ch, nil
}

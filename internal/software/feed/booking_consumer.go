package feed

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"mech-dispatch/internal/general/contracts"
	"mech-dispatch/internal/general/logger"
	"mech-dispatch/internal/general/rabbitmq"
	"mech-dispatch/internal/hub"
)

// BookingFeedConsumer bridges the booking topic exchange into a local
// BookingHub so services outside the booking service can push job updates to
// their own websocket clients.
type BookingFeedConsumer struct {
	logger   *logger.Logger
	client   *rabbitmq.Client
	hub      *hub.BookingHub
	queue    string
	tag      string
	prefetch int
}

func NewBookingFeedConsumer(logger *logger.Logger, client *rabbitmq.Client, bookings *hub.BookingHub, queue, consumerTag string, prefetch int) *BookingFeedConsumer {
	if prefetch <= 0 {
		prefetch = 8
	}
	return &BookingFeedConsumer{logger: logger, client: client, hub: bookings, queue: queue, tag: consumerTag, prefetch: prefetch}
}

// Run consumes until ctx is cancelled, re-entering Consume after transient
// channel or connection failures.
func (consumer *BookingFeedConsumer) Run(ctx context.Context) {
	for {
		err := consumer.client.Consume(ctx, consumer.queue, consumer.tag, consumer.prefetch, consumer.handle)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			consumer.logger.Error(ctx, "booking_consume_failed", "Booking feed consumer stopped, retrying", err, map[string]any{
				"queue": consumer.queue,
			})
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(consumeRetryDelay):
		}
	}
}

func (consumer *BookingFeedConsumer) handle(ctx context.Context, d amqp.Delivery) error {
	var msg contracts.BookingChangeMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		consumer.logger.Error(ctx, "booking_decode_failed", "Dropping malformed booking change", err, map[string]any{
			"queue": consumer.queue,
		})
		return err
	}
	if msg.Booking == nil {
		consumer.logger.Error(ctx, "booking_snapshot_missing", "Dropping booking change without snapshot", nil, map[string]any{
			"booking_id": msg.BookingID,
		})
		return nil
	}

	snapshot, err := contracts.FromBookingTO(msg.Booking)
	if err != nil {
		consumer.logger.Error(ctx, "booking_invalid", "Dropping booking change with invalid snapshot", err, map[string]any{
			"booking_id": msg.BookingID,
		})
		return err
	}

	var kind hub.ChangeKind
	switch msg.EventType {
	case string(hub.ChangeInsert):
		kind = hub.ChangeInsert
	case string(hub.ChangeDelete):
		kind = hub.ChangeDelete
	default:
		kind = hub.ChangeUpdate
	}

	consumer.hub.Publish(kind, snapshot)
	return nil
}

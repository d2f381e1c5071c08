package feed

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"mech-dispatch/internal/domain/geo"
	"mech-dispatch/internal/general/contracts"
	"mech-dispatch/internal/general/logger"
	"mech-dispatch/internal/general/rabbitmq"
	"mech-dispatch/internal/hub"
)

const consumeRetryDelay = 3 * time.Second

// LocationFeedConsumer bridges the location fanout exchange into a local
// LocationHub. Services that do not host the tracking sessions themselves
// still see every mechanic position through their own hub.
type LocationFeedConsumer struct {
	logger   *logger.Logger
	client   *rabbitmq.Client
	hub      *hub.LocationHub
	queue    string
	tag      string
	prefetch int
}

func NewLocationFeedConsumer(logger *logger.Logger, client *rabbitmq.Client, locations *hub.LocationHub, queue, consumerTag string, prefetch int) *LocationFeedConsumer {
	if prefetch <= 0 {
		prefetch = 8
	}
	return &LocationFeedConsumer{logger: logger, client: client, hub: locations, queue: queue, tag: consumerTag, prefetch: prefetch}
}

// Run consumes until ctx is cancelled, re-entering Consume after transient
// channel or connection failures.
func (consumer *LocationFeedConsumer) Run(ctx context.Context) {
	for {
		err := consumer.client.Consume(ctx, consumer.queue, consumer.tag, consumer.prefetch, consumer.handle)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			consumer.logger.Error(ctx, "location_consume_failed", "Location feed consumer stopped, retrying", err, map[string]any{
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

// handle republishes one fanout message into the local hub. Offline markers
// pass through as well so subscribers observe the final state of a session.
func (consumer *LocationFeedConsumer) handle(ctx context.Context, d amqp.Delivery) error {
	var msg contracts.LocationUpdateMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		consumer.logger.Error(ctx, "location_decode_failed", "Dropping malformed location update", err, map[string]any{
			"queue": consumer.queue,
		})
		return err
	}

	loc := geo.MechanicLocation{
		MechanicID:     msg.MechanicID,
		Latitude:       msg.Location.Lat,
		Longitude:      msg.Location.Lng,
		AccuracyMeters: msg.AccuracyMeters,
		SpeedKmh:       msg.SpeedKmh,
		HeadingDegrees: msg.HeadingDegrees,
		IsOnline:       msg.IsOnline,
		LastUpdated:    msg.Timestamp,
	}
	if err := loc.Validate(); err != nil {
		consumer.logger.Error(ctx, "location_invalid", "Dropping invalid location update", err, map[string]any{
			"mechanic_id": msg.MechanicID,
		})
		return err
	}

	consumer.hub.Publish(loc)
	return nil
}

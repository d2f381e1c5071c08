package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"mech-dispatch/internal/domain/booking"
	"mech-dispatch/internal/general/contracts"
	"mech-dispatch/internal/hub"
	"mech-dispatch/internal/ports"
)

// casRetries bounds how often a mutation is replayed after losing an
// optimistic-concurrency race. Each retry re-reads the row, so a transition
// that became illegal in the meantime fails with the domain error instead.
const casRetries = 3

// mutation describes one booking state change: apply runs the domain
// transition, event builds the audit row from the post-transition snapshot.
type mutation struct {
	op    string
	apply func(b *booking.Booking) error
	event func(b *booking.Booking) (booking.EventType, map[string]any)
}

// mutate loads the booking, applies the transition, and persists it with the
// version guard, retrying on concurrent modification. On success the
// committed snapshot is fanned out.
func (service *bookingService) mutate(ctx context.Context, bookingID string, m mutation) (*booking.Booking, error) {
	var out *booking.Booking

	var err error
	for attempt := 0; attempt <= casRetries; attempt++ {
		err = service.uow.WithinTx(ctx, func(txCtx context.Context) error {
			b, err := service.repo.GetByID(txCtx, bookingID)
			if err != nil {
				return err
			}
			expected := b.Version

			if err := m.apply(b); err != nil {
				return err
			}

			if err := service.repo.Update(txCtx, b, expected); err != nil {
				return err
			}

			evType, evData := m.event(b)
			ev, err := booking.NewEvent(b.ID, evType, evData)
			if err != nil {
				return err
			}
			if err := service.events.Append(txCtx, ev); err != nil {
				return err
			}

			out = b
			return nil
		})
		if !errors.Is(err, ports.ErrConcurrentModification) {
			break
		}
		service.logger.Debug(ctx, "booking_cas_retry", "Retrying after concurrent modification", map[string]any{
			"booking_id": bookingID,
			"op":         m.op,
			"attempt":    attempt + 1,
		})
	}
	if err != nil {
		service.logger.Error(ctx, "booking_mutation_failed", "Booking mutation rejected", err, map[string]any{
			"booking_id": bookingID,
			"op":         m.op,
		})
		return nil, err
	}

	service.fanOut(ctx, hub.ChangeUpdate, out)
	return out.Clone(), nil
}

// fanOut delivers the committed snapshot to in-process subscribers and,
// best-effort, to the message bus. Bus failures are logged, never surfaced:
// the write already committed.
func (service *bookingService) fanOut(ctx context.Context, kind hub.ChangeKind, b *booking.Booking) {
	service.changeHub.Publish(kind, b)

	if service.pub == nil {
		return
	}

	msg := contracts.BookingChangeMessage{
		BookingID:  b.ID,
		EventType:  string(kind),
		Status:     b.Status.String(),
		CustomerID: b.CustomerID,
		ETAMinutes: b.ETAMinutes,
		Timestamp:  time.Now().UTC(),
		Booking:    contracts.ToBookingTO(b),
		Envelope: contracts.Envelope{
			CorrelationID: generateCorrelationID(),
			Producer:      "booking-service",
			SentAt:        time.Now().UTC(),
		},
	}
	if b.MechanicID != nil {
		msg.MechanicID = *b.MechanicID
	}

	body, err := json.Marshal(msg)
	if err != nil {
		service.logger.Error(ctx, "booking_feed_encode_failed", "Failed to encode booking change message", err, map[string]any{
			"booking_id": b.ID,
		})
		return
	}

	routingKey := contracts.RouteBookingStatusPrefix + strings.ToLower(b.Status.String())
	if err := service.pub.Publish(contracts.ExchangeBookingTopic, routingKey, body); err != nil {
		service.logger.Error(ctx, "booking_feed_publish_failed", "Failed to publish booking change to RabbitMQ", err, map[string]any{
			"booking_id":  b.ID,
			"routing_key": routingKey,
		})
		return
	}

	service.logger.Debug(ctx, "booking_feed_published", "Published booking change", map[string]any{
		"booking_id":  b.ID,
		"routing_key": routingKey,
	})
}

// generateCorrelationID creates a simple correlation ID for tracing requests.
func generateCorrelationID() string {
	var b [3]byte // 6 hex chars
	_, _ = rand.Read(b[:])
	ts := time.Now().UTC().Format("20060102T150405")
	return "req_" + ts + "_" + hex.EncodeToString(b[:])
}

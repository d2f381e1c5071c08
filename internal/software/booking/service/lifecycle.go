package service

import (
	"context"

	"mech-dispatch/internal/domain/booking"
	"mech-dispatch/internal/ports"
)

// RequestCancel cancels a booking, recording the customer's reason.
func (service *bookingService) RequestCancel(ctx context.Context, bookingID, reason string) (*booking.Booking, error) {
	return service.mutate(ctx, bookingID, mutation{
		op:    "request_cancel",
		apply: func(b *booking.Booking) error { return b.RequestCancel(reason) },
		event: func(b *booking.Booking) (booking.EventType, map[string]any) {
			data := map[string]any{"new_status": b.Status.String()}
			if b.CancellationReason != nil {
				data["reason"] = *b.CancellationReason
			}
			return booking.EventBookingCancelled, data
		},
	})
}

// RequestReschedule attaches a proposed alternate slot and parks the booking
// in RESCHEDULE_REQUESTED until the counterparty responds.
func (service *bookingService) RequestReschedule(ctx context.Context, in ports.RescheduleInput) (*booking.Booking, error) {
	return service.mutate(ctx, in.BookingID, mutation{
		op:    "request_reschedule",
		apply: func(b *booking.Booking) error { return b.RequestReschedule(in.Date, in.Time, in.Reason) },
		event: func(b *booking.Booking) (booking.EventType, map[string]any) {
			data := map[string]any{"new_status": b.Status.String()}
			if b.Reschedule != nil {
				data["proposed_date"] = b.Reschedule.ProposedDate
				data["proposed_time"] = b.Reschedule.ProposedTime
				if b.Reschedule.Reason != "" {
					data["reason"] = b.Reschedule.Reason
				}
			}
			return booking.EventRescheduleProposed, data
		},
	})
}

// RespondToReschedule accepts or rejects the pending proposal. Acceptance
// adopts the proposed slot; rejection restores the prior status.
func (service *bookingService) RespondToReschedule(ctx context.Context, bookingID string, accept bool) (*booking.Booking, error) {
	return service.mutate(ctx, bookingID, mutation{
		op:    "respond_to_reschedule",
		apply: func(b *booking.Booking) error { return b.RespondToReschedule(accept) },
		event: func(b *booking.Booking) (booking.EventType, map[string]any) {
			return booking.EventRescheduleResolved, map[string]any{
				"accepted":       accept,
				"new_status":     b.Status.String(),
				"scheduled_date": b.ScheduledDate,
				"scheduled_time": b.ScheduledTime,
			}
		},
	})
}

// AcceptJob assigns the mechanic and moves the booking to EN_ROUTE. The
// optimistic version guard makes acceptance exclusive: when two mechanics
// race, the loser's retry re-reads the row and gets ErrAlreadyAssigned.
func (service *bookingService) AcceptJob(ctx context.Context, bookingID, mechanicID string) (*booking.Booking, error) {
	b, err := service.mutate(ctx, bookingID, mutation{
		op:    "accept_job",
		apply: func(b *booking.Booking) error { return b.AcceptJob(mechanicID) },
		event: func(b *booking.Booking) (booking.EventType, map[string]any) {
			return booking.EventMechanicAssigned, map[string]any{
				"mechanic_id": mechanicID,
				"new_status":  b.Status.String(),
			}
		},
	})
	if err != nil {
		return nil, err
	}

	service.logger.Info(ctx, "job_accepted", "Mechanic accepted job", map[string]any{
		"booking_id":  bookingID,
		"mechanic_id": mechanicID,
	})
	return b, nil
}

// SetStatus is the operator-driven transition along the visible timeline.
func (service *bookingService) SetStatus(ctx context.Context, bookingID string, next booking.Status) (*booking.Booking, error) {
	return service.mutate(ctx, bookingID, mutation{
		op: "set_status",
		apply: func(b *booking.Booking) error {
			return b.SetStatus(next)
		},
		event: func(b *booking.Booking) (booking.EventType, map[string]any) {
			return booking.EventTypeForStatus(b.Status), map[string]any{
				"new_status": b.Status.String(),
			}
		},
	})
}

// Complete finalizes a job from IN_PROGRESS.
func (service *bookingService) Complete(ctx context.Context, bookingID string) (*booking.Booking, error) {
	return service.mutate(ctx, bookingID, mutation{
		op:    "complete",
		apply: func(b *booking.Booking) error { return b.Complete() },
		event: func(b *booking.Booking) (booking.EventType, map[string]any) {
			return booking.EventJobCompleted, map[string]any{
				"new_status": b.Status.String(),
			}
		},
	})
}

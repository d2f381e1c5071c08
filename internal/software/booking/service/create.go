package service

import (
	"context"

	"mech-dispatch/internal/domain/booking"
	"mech-dispatch/internal/domain/geo"
	"mech-dispatch/internal/hub"
	"mech-dispatch/internal/ports"
)

// Create persists a new UPCOMING booking together with its BOOKING_CREATED
// audit event and fans the committed snapshot out as an insert.
func (service *bookingService) Create(ctx context.Context, in ports.CreateBookingInput) (*booking.Booking, error) {
	b, err := booking.NewBooking(
		in.CustomerID,
		in.VehicleID,
		in.ServiceID,
		in.ScheduledDate,
		in.ScheduledTime,
		geo.Point{Latitude: in.Latitude, Longitude: in.Longitude},
	)
	if err != nil {
		service.logger.Error(ctx, "booking_create_rejected", "Invalid booking input", err, map[string]any{
			"customer_id": in.CustomerID,
		})
		return nil, err
	}

	err = service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		if err := service.repo.Create(txCtx, b); err != nil {
			return err
		}

		ev, err := booking.NewEvent(b.ID, booking.EventBookingCreated, map[string]any{
			"status":         b.Status.String(),
			"customer_id":    b.CustomerID,
			"vehicle_id":     b.VehicleID,
			"service_id":     b.ServiceID,
			"scheduled_date": b.ScheduledDate,
			"scheduled_time": b.ScheduledTime,
		})
		if err != nil {
			return err
		}
		return service.events.Append(txCtx, ev)
	})
	if err != nil {
		service.logger.Error(ctx, "booking_create_failed", "Failed to create booking", err, map[string]any{
			"customer_id": in.CustomerID,
		})
		return nil, err
	}

	ctx = service.logger.WithBookingID(ctx, b.ID)
	service.logger.Info(ctx, "booking_created", "Booking created", map[string]any{
		"booking_id":  b.ID,
		"customer_id": b.CustomerID,
	})

	service.fanOut(ctx, hub.ChangeInsert, b)
	return b.Clone(), nil
}

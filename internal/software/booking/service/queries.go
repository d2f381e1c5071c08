package service

import (
	"context"

	"mech-dispatch/internal/domain/booking"
)

// GetByID returns one booking snapshot.
func (service *bookingService) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	var out *booking.Booking
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		b, err := service.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByCustomer returns every booking owned by a customer, newest first.
func (service *bookingService) ListByCustomer(ctx context.Context, customerID string) ([]*booking.Booking, error) {
	var out []*booking.Booking
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		list, err := service.repo.ListByCustomer(txCtx, customerID)
		if err != nil {
			return err
		}
		out = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByMechanic returns every booking assigned to a mechanic, newest first.
func (service *bookingService) ListByMechanic(ctx context.Context, mechanicID string) ([]*booking.Booking, error) {
	var out []*booking.Booking
	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		list, err := service.repo.ListByMechanic(txCtx, mechanicID)
		if err != nil {
			return err
		}
		out = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

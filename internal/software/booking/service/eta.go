package service

import (
	"context"

	"mech-dispatch/internal/domain/booking"
)

// SetManualETA stores a mechanic-entered ETA. Manual values win over engine
// refreshes for the rest of the current EN_ROUTE episode.
func (service *bookingService) SetManualETA(ctx context.Context, bookingID string, minutes int) (*booking.Booking, error) {
	return service.mutate(ctx, bookingID, mutation{
		op:    "set_manual_eta",
		apply: func(b *booking.Booking) error { return b.SetManualETA(minutes) },
		event: func(b *booking.Booking) (booking.EventType, map[string]any) {
			return booking.EventETARefreshed, map[string]any{
				"eta_minutes": minutes,
				"manual":      true,
			}
		},
	})
}

// SetComputedETA stores an engine-computed ETA. A manual override surfaces as
// booking.ErrManualETASet, which the engine treats as "skip".
func (service *bookingService) SetComputedETA(ctx context.Context, bookingID string, minutes int) (*booking.Booking, error) {
	return service.mutate(ctx, bookingID, mutation{
		op:    "set_computed_eta",
		apply: func(b *booking.Booking) error { return b.SetComputedETA(minutes) },
		event: func(b *booking.Booking) (booking.EventType, map[string]any) {
			return booking.EventETARefreshed, map[string]any{
				"eta_minutes": minutes,
				"manual":      false,
			}
		},
	})
}

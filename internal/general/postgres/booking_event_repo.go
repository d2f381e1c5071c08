package postgres

import (
	"context"

	"mech-dispatch/internal/domain/booking"
	"mech-dispatch/internal/ports"
)

// BookingEventRepo persists booking events using pgx and plain SQL.
type BookingEventRepo struct{}

// NewBookingEventRepo constructs a new BookingEventRepo.
func NewBookingEventRepo() ports.BookingEventRepository {
	return &BookingEventRepo{}
}

// Append inserts a new booking_events row. The table is append-only; events
// are never updated or deleted.
func (repo *BookingEventRepo) Append(ctx context.Context, event *booking.Event) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if err := event.Validate(); err != nil {
		return err
	}

	data, err := event.DataJSON()
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO booking_events (booking_id, event_type, event_data)
		VALUES ($1, $2, $3::jsonb)
		RETURNING id, created_at
	`,
		event.BookingID,
		event.Type.String(),
		string(data),
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return err
	}

	return nil
}

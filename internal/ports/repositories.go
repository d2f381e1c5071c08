package ports

import (
	"context"
	"time"

	"mech-dispatch/internal/domain/booking"
	"mech-dispatch/internal/domain/geo"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// BookingRepository is the authoritative persistent booking table. All writes
// are conditional: Update succeeds only when the stored row still carries
// expectedVersion, otherwise it returns ErrConcurrentModification. A
// networked backing store must provide the same atomicity.
type BookingRepository interface {
	Create(ctx context.Context, b *booking.Booking) error
	GetByID(ctx context.Context, id string) (*booking.Booking, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*booking.Booking, error)
	ListByMechanic(ctx context.Context, mechanicID string) ([]*booking.Booking, error)
	ListByStatus(ctx context.Context, status booking.Status) ([]*booking.Booking, error)
	GetActiveForMechanic(ctx context.Context, mechanicID string) (*booking.Booking, error)
	Update(ctx context.Context, b *booking.Booking, expectedVersion int64) error
	CountByStatus(ctx context.Context) (map[booking.Status]int, error)
}

// BookingEventRepository appends audit rows to booking_events.
type BookingEventRepository interface {
	Append(ctx context.Context, e *booking.Event) error
}

// MechanicLocationRepository is the hot store holding the latest known
// position per mechanic, upsert keyed by mechanic id. Records are never
// deleted; MarkOffline keeps the last known coordinates.
type MechanicLocationRepository interface {
	Upsert(ctx context.Context, loc *geo.MechanicLocation) error
	Get(ctx context.Context, mechanicID string) (*geo.MechanicLocation, error)
	MarkOffline(ctx context.Context, mechanicID string, at time.Time) (*geo.MechanicLocation, error)
	ListOnline(ctx context.Context) ([]*geo.MechanicLocation, error)
}

// LocationHistoryRepository archives position samples.
type LocationHistoryRepository interface {
	Archive(ctx context.Context, row *geo.LocationHistory) error
}

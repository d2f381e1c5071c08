package postgres

import (
	"context"

	"mech-dispatch/internal/domain/geo"
	"mech-dispatch/internal/ports"
)

// LocationHistoryRepo persists location history rows using pgx and plain SQL.
type LocationHistoryRepo struct{}

// NewLocationHistoryRepo constructs a new LocationHistoryRepo.
func NewLocationHistoryRepo() ports.LocationHistoryRepository {
	return &LocationHistoryRepo{}
}

// Archive inserts a single location_history record.
func (repo *LocationHistoryRepo) Archive(ctx context.Context, row *geo.LocationHistory) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if err := row.Validate(); err != nil {
		return err
	}

	var insertedID string
	err = tx.QueryRow(ctx, `
		INSERT INTO location_history (
			mechanic_id, booking_id, latitude, longitude,
			accuracy_meters, speed_kmh, heading_degrees, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
		RETURNING id
	`,
		row.MechanicID,
		row.BookingID,
		row.Latitude,
		row.Longitude,
		row.AccuracyMeters,
		row.SpeedKmh,
		row.HeadingDegrees,
		row.RecordedAt,
	).Scan(&insertedID)
	if err != nil {
		return err
	}

	row.ID = insertedID

	return nil
}

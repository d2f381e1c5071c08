package geo

import (
	"errors"
	"strings"
	"time"
)

// LocationHistory is one archived position sample, corresponding to the
// `location_history` table. The live record lives in the hot store; history
// rows are append-only.
type LocationHistory struct {
	ID             string
	MechanicID     string
	BookingID      *string
	Latitude       float64
	Longitude      float64
	AccuracyMeters *float64
	SpeedKmh       *float64
	HeadingDegrees *float64
	RecordedAt     time.Time
}

var ErrRecordedAtZeroTime = errors.New("recorded_at must be a valid timestamp")

// NewLocationHistory builds a history row from a live location record,
// optionally tagged with the booking the mechanic is travelling to.
func NewLocationHistory(loc *MechanicLocation, bookingID *string, recordedAt time.Time) (*LocationHistory, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	row := &LocationHistory{
		MechanicID:     loc.MechanicID,
		Latitude:       loc.Latitude,
		Longitude:      loc.Longitude,
		AccuracyMeters: clonePtr(loc.AccuracyMeters),
		SpeedKmh:       clonePtr(loc.SpeedKmh),
		HeadingDegrees: clonePtr(loc.HeadingDegrees),
		RecordedAt:     recordedAt,
	}
	if bookingID != nil {
		id := strings.TrimSpace(*bookingID)
		if id != "" {
			row.BookingID = &id
		}
	}
	if row.RecordedAt.IsZero() {
		row.RecordedAt = time.Now().UTC()
	}
	return row, nil
}

// Validate mirrors the DB constraints on location_history rows.
func (row *LocationHistory) Validate() error {
	if row.MechanicID == "" {
		return ErrMissingMechanicID
	}
	if row.Latitude < -90 || row.Latitude > 90 {
		return ErrInvalidLatitude
	}
	if row.Longitude < -180 || row.Longitude > 180 {
		return ErrInvalidLongitude
	}
	if row.RecordedAt.IsZero() {
		return ErrRecordedAtZeroTime
	}
	return nil
}

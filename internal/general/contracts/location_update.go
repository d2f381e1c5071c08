package contracts

import "time"

// LocationUpdateMessage is the fan-out payload for one mechanic position
// sample. Consumed by the booking service (ETA refresh, customer push) and
// the admin dispatch board.
type LocationUpdateMessage struct {
	MechanicID     string    `json:"mechanic_id"`
	Location       GeoPoint  `json:"location"`
	AccuracyMeters *float64  `json:"accuracy_meters,omitempty"`
	SpeedKmh       *float64  `json:"speed_kmh,omitempty"`
	HeadingDegrees *float64  `json:"heading_degrees,omitempty"`
	IsOnline       bool      `json:"is_online"`
	BookingID      string    `json:"booking_id,omitempty"` // active job, when known
	Timestamp      time.Time `json:"timestamp"`
	Envelope
}

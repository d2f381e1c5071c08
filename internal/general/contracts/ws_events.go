package contracts

import "time"

// Outbound WebSocket frames. Every frame carries a "type" discriminator so
// clients can route on it.

// WSCustomerBookingStatus notifies a customer that one of their bookings changed.
type WSCustomerBookingStatus struct {
	Type       string     `json:"type"` // always "booking_status"
	BookingID  string     `json:"booking_id"`
	ChangeKind string     `json:"change_kind"` // insert | update | delete
	Status     string     `json:"status"`
	MechanicID string     `json:"mechanic_id,omitempty"`
	ETAMinutes *int       `json:"eta_minutes,omitempty"`
	Booking    *BookingTO `json:"booking,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// WSCustomerLocationUpdate streams the assigned mechanic's position to the
// customer while the mechanic is en route.
type WSCustomerLocationUpdate struct {
	Type       string    `json:"type"` // always "mechanic_location"
	BookingID  string    `json:"booking_id"`
	MechanicID string    `json:"mechanic_id"`
	Location   GeoPoint  `json:"location"`
	SpeedKmh   *float64  `json:"speed_kmh,omitempty"`
	ETAMinutes *int      `json:"eta_minutes,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// WSMechanicJob notifies a mechanic about a change to a job in their queue.
type WSMechanicJob struct {
	Type       string     `json:"type"` // always "job_update"
	BookingID  string     `json:"booking_id"`
	ChangeKind string     `json:"change_kind"`
	Status     string     `json:"status"`
	Booking    *BookingTO `json:"booking,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// WSAdminDispatchBoard streams the full online-mechanic set to the dispatch
// board whenever any mechanic's state changes.
type WSAdminDispatchBoard struct {
	Type      string          `json:"type"` // always "dispatch_board"
	Mechanics []BoardMechanic `json:"mechanics"`
	Timestamp time.Time       `json:"timestamp"`
}

// BoardMechanic is one row on the dispatch board.
type BoardMechanic struct {
	MechanicID     string    `json:"mechanic_id"`
	Location       GeoPoint  `json:"location"`
	SpeedKmh       *float64  `json:"speed_kmh,omitempty"`
	HeadingDegrees *float64  `json:"heading_degrees,omitempty"`
	LastUpdated    time.Time `json:"last_updated"`
}

// WSTrackingAck acknowledges a tracking_start request.
type WSTrackingAck struct {
	Type       string    `json:"type"` // always "tracking_ack"
	SessionID  string    `json:"session_id"`
	MechanicID string    `json:"mechanic_id"`
	StartedAt  time.Time `json:"started_at"`
}

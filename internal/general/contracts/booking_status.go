package contracts

import "time"

// BookingChangeMessage is published on the booking topic exchange after every
// committed mutation. EventType is one of insert/update/delete.
type BookingChangeMessage struct {
	BookingID  string     `json:"booking_id"`
	EventType  string     `json:"event_type"` // insert | update | delete
	Status     string     `json:"status"`
	CustomerID string     `json:"customer_id"`
	MechanicID string     `json:"mechanic_id,omitempty"`
	ETAMinutes *int       `json:"eta_minutes,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	Booking    *BookingTO `json:"booking,omitempty"` // full snapshot for view refresh
	Envelope
}

// BookingTO is the wire shape of a booking snapshot (persistence row shape).
type BookingTO struct {
	ID                 string              `json:"id"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	CustomerID         string              `json:"customer_id"`
	MechanicID         *string             `json:"mechanic_id,omitempty"`
	VehicleID          string              `json:"vehicle_id"`
	ServiceID          string              `json:"service_id"`
	ScheduledDate      string              `json:"scheduled_date"`
	ScheduledTime      string              `json:"scheduled_time"`
	Status             string              `json:"status"`
	StatusHistory      []StatusEntryTO     `json:"status_history"`
	Location           GeoPoint            `json:"location"`
	ETAMinutes         *int                `json:"eta_minutes,omitempty"`
	ETAManual          bool                `json:"eta_manual,omitempty"`
	CancellationReason *string             `json:"cancellation_reason,omitempty"`
	Reschedule         *RescheduleTO       `json:"reschedule_proposal,omitempty"`
	IsPaid             bool                `json:"is_paid"`
	IsReviewed         bool                `json:"is_reviewed"`
	Version            int64               `json:"version"`
}

// StatusEntryTO is one history row on the wire.
type StatusEntryTO struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// RescheduleTO is the wire shape of a pending reschedule proposal.
type RescheduleTO struct {
	ProposedDate string    `json:"proposed_date"`
	ProposedTime string    `json:"proposed_time"`
	Reason       string    `json:"reason,omitempty"`
	RequestedAt  time.Time `json:"requested_at"`
}

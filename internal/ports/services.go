package ports

import (
	"context"
	"time"

	"mech-dispatch/internal/domain/booking"
)

// ----- DTOs for the Booking Service -----

// CreateBookingInput is the validated input required to create a booking.
type CreateBookingInput struct {
	CustomerID    string
	VehicleID     string
	ServiceID     string
	ScheduledDate string // YYYY-MM-DD
	ScheduledTime string // HH:MM
	Latitude      float64
	Longitude     float64
}

// RescheduleInput carries a proposed alternate slot.
type RescheduleInput struct {
	BookingID string
	Date      string
	Time      string
	Reason    string
}

// ----- Booking Service Interface -----

// BookingService is the authoritative store of bookings: every mutation
// validates the transition, appends history, persists with an optimistic
// concurrency guard, and fans out the committed snapshot.
type BookingService interface {
	Create(ctx context.Context, in CreateBookingInput) (*booking.Booking, error)
	GetByID(ctx context.Context, id string) (*booking.Booking, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*booking.Booking, error)
	ListByMechanic(ctx context.Context, mechanicID string) ([]*booking.Booking, error)
	RequestCancel(ctx context.Context, bookingID, reason string) (*booking.Booking, error)
	RequestReschedule(ctx context.Context, in RescheduleInput) (*booking.Booking, error)
	RespondToReschedule(ctx context.Context, bookingID string, accept bool) (*booking.Booking, error)
	AcceptJob(ctx context.Context, bookingID, mechanicID string) (*booking.Booking, error)
	SetStatus(ctx context.Context, bookingID string, next booking.Status) (*booking.Booking, error)
	Complete(ctx context.Context, bookingID string) (*booking.Booking, error)
	SetManualETA(ctx context.Context, bookingID string, minutes int) (*booking.Booking, error)
	SetComputedETA(ctx context.Context, bookingID string, minutes int) (*booking.Booking, error)
}

// ----- Position source (consumed boundary) -----

// PositionSample is one reading from a mechanic's device.
type PositionSample struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters *float64
	SpeedKmh       *float64
	HeadingDegrees *float64
	TakenAt        time.Time
}

// PositionSource abstracts the device position feed for one mechanic.
// GetCurrentPosition blocks up to the caller's deadline; WatchPosition fires
// fn on movement and returns a stop function (safe to call more than once).
type PositionSource interface {
	GetCurrentPosition(ctx context.Context) (PositionSample, error)
	WatchPosition(fn func(PositionSample)) (stop func())
}

// PositionSourceProvider acquires the position source for a mechanic at
// tracking start. Returns ErrPermissionDenied or ErrPositionUnavailable when
// the underlying source is not grantable.
type PositionSourceProvider interface {
	Acquire(ctx context.Context, mechanicID string) (PositionSource, error)
}

// ----- Tracking service -----

// TrackingAck acknowledges a started (or already running) publisher session.
type TrackingAck struct {
	SessionID  string    `json:"session_id"`
	MechanicID string    `json:"mechanic_id"`
	StartedAt  time.Time `json:"started_at"`
}

// TrackingService manages per-mechanic location publisher sessions.
type TrackingService interface {
	Start(ctx context.Context, mechanicID string) (TrackingAck, error)
	Stop(ctx context.Context, mechanicID string) error
	Push(ctx context.Context, mechanicID string, sample PositionSample) error
}

// ----- Message publisher (change-feed producer) -----

// FeedPublisher publishes committed changes to the realtime channel.
type FeedPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// ----- Admin service -----

// OnlineMechanicRow is one row of the dispatch board.
type OnlineMechanicRow struct {
	MechanicID     string    `json:"mechanic_id"`
	Latitude       float64   `json:"lat"`
	Longitude      float64   `json:"lng"`
	SpeedKmh       *float64  `json:"speed_kmh,omitempty"`
	HeadingDegrees *float64  `json:"heading_degrees,omitempty"`
	LastUpdated    time.Time `json:"last_updated"`
}

// DispatchOverviewResult is the response DTO for GET /admin/overview.
type DispatchOverviewResult struct {
	Timestamp       time.Time           `json:"timestamp"`
	BookingsByState map[string]int      `json:"bookings_by_status"`
	OnlineMechanics []OnlineMechanicRow `json:"online_mechanics"`
}

// AdminService exposes the dispatch monitoring operations.
type AdminService interface {
	GetDispatchOverview(ctx context.Context) (DispatchOverviewResult, error)
}

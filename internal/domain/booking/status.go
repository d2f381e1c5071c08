package booking

import (
	"errors"
	"strings"
)

// Status is a booking status as stored in the `bookings` table.
type Status string

const (
	StatusUpcoming            Status = "UPCOMING"
	StatusConfirmed           Status = "BOOKING_CONFIRMED"
	StatusMechanicAssigned    Status = "MECHANIC_ASSIGNED"
	StatusEnRoute             Status = "EN_ROUTE"
	StatusInProgress          Status = "IN_PROGRESS"
	StatusCompleted           Status = "COMPLETED"
	StatusCancelled           Status = "CANCELLED"
	StatusRescheduleRequested Status = "RESCHEDULE_REQUESTED"
)

var ErrInvalidStatus = errors.New("invalid booking status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed booking status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusUpcoming, StatusConfirmed, StatusMechanicAssigned, StatusEnRoute,
		StatusInProgress, StatusCompleted, StatusCancelled, StatusRescheduleRequested:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// Terminal indicates the status admits no further transitions.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusCancelled
}

// Cancellable reports whether RequestCancel is legal from this status.
// Cancellation is a customer-facing action and is only offered before the
// mechanic starts travelling.
func (status Status) Cancellable() bool {
	switch status {
	case StatusUpcoming, StatusConfirmed, StatusMechanicAssigned:
		return true
	default:
		return false
	}
}

// Reschedulable reports whether RequestReschedule is legal from this status.
// Same window as cancellation.
func (status Status) Reschedulable() bool {
	return status.Cancellable()
}

// RequiresMechanic reports whether a booking in this status must have a
// mechanic attached.
func (status Status) RequiresMechanic() bool {
	return status == StatusMechanicAssigned || status == StatusEnRoute
}

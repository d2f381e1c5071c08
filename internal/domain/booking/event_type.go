package booking

import (
	"errors"
	"strings"
)

// EventType corresponds to the values in the `booking_event_type` table.
type EventType string

const (
	EventBookingCreated     EventType = "BOOKING_CREATED"
	EventBookingCancelled   EventType = "BOOKING_CANCELLED"
	EventRescheduleProposed EventType = "RESCHEDULE_PROPOSED"
	EventRescheduleResolved EventType = "RESCHEDULE_RESOLVED"
	EventMechanicAssigned   EventType = "MECHANIC_ASSIGNED"
	EventJobStarted         EventType = "JOB_STARTED"
	EventJobCompleted       EventType = "JOB_COMPLETED"
	EventStatusChanged      EventType = "STATUS_CHANGED"
	EventETARefreshed       EventType = "ETA_REFRESHED"
)

var ErrInvalidEventType = errors.New("invalid booking event type")

// ParseEventType normalizes (uppercases+trims) and validates an event type string.
func ParseEventType(input string) (EventType, error) {
	eventType := EventType(strings.ToUpper(strings.TrimSpace(input)))
	if eventType.Valid() {
		return eventType, nil
	}
	return "", ErrInvalidEventType
}

// Valid reports whether eventType is one of the allowed event type constants.
func (eventType EventType) Valid() bool {
	switch eventType {
	case EventBookingCreated,
		EventBookingCancelled,
		EventRescheduleProposed,
		EventRescheduleResolved,
		EventMechanicAssigned,
		EventJobStarted,
		EventJobCompleted,
		EventStatusChanged,
		EventETARefreshed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the EventType.
func (eventType EventType) String() string {
	return string(eventType)
}

// EventTypeForStatus maps a newly reached status to its audit event type.
func EventTypeForStatus(status Status) EventType {
	switch status {
	case StatusCancelled:
		return EventBookingCancelled
	case StatusRescheduleRequested:
		return EventRescheduleProposed
	case StatusMechanicAssigned, StatusEnRoute:
		return EventMechanicAssigned
	case StatusInProgress:
		return EventJobStarted
	case StatusCompleted:
		return EventJobCompleted
	default:
		return EventStatusChanged
	}
}

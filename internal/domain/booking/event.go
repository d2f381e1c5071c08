package booking

import (
	"encoding/json"
	"errors"
	"maps"
	"strings"
	"time"
)

// Event is the domain entity corresponding to the `booking_events` table,
// the append-only audit log behind the booking timeline.
type Event struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time

	// Foreign keys
	BookingID string

	// Core payload
	Type EventType
	Data map[string]any
}

var (
	ErrBookingIDRequired = errors.New("booking id is required")
	ErrEventDataNil      = errors.New("event data must not be nil")
)

// NewEvent constructs a new domain Event.
func NewEvent(bookingID string, eventType EventType, eventData map[string]any) (*Event, error) {
	if bookingID = strings.TrimSpace(bookingID); bookingID == "" {
		return nil, ErrBookingIDRequired
	}
	if !eventType.Valid() {
		return nil, ErrInvalidEventType
	}
	if eventData == nil {
		return nil, ErrEventDataNil
	}

	return &Event{
		BookingID: bookingID,
		Type:      eventType,
		Data:      cloneMap(eventData),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Validate performs basic invariants checks mirroring DB constraints.
func (event *Event) Validate() error {
	if event.BookingID == "" {
		return ErrBookingIDRequired
	}
	if !event.Type.Valid() {
		return ErrInvalidEventType
	}
	if event.Data == nil {
		return ErrEventDataNil
	}
	return nil
}

// DataJSON returns event.Data encoded as JSON.
func (event *Event) DataJSON() ([]byte, error) {
	if event.Data == nil {
		return nil, ErrEventDataNil
	}
	return json.Marshal(event.Data)
}

// cloneMap makes a shallow copy of a map[string]any.
func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	maps.Copy(dst, src)
	return dst
}

package booking

import (
	"errors"
	"strings"
	"time"
)

// RescheduleProposal is a pending alternate date/time attached to a booking
// in RESCHEDULE_REQUESTED, awaiting the other party's accept/reject.
type RescheduleProposal struct {
	ProposedDate string    `json:"proposed_date"` // YYYY-MM-DD
	ProposedTime string    `json:"proposed_time"` // HH:MM (24h)
	Reason       string    `json:"reason,omitempty"`
	RequestedAt  time.Time `json:"requested_at"`
}

var (
	ErrBadProposedDate = errors.New("proposed date must be YYYY-MM-DD")
	ErrBadProposedTime = errors.New("proposed time must be HH:MM")
)

// NewRescheduleProposal validates and builds a proposal stamped now (UTC).
func NewRescheduleProposal(date, timeOfDay, reason string) (*RescheduleProposal, error) {
	date = strings.TrimSpace(date)
	timeOfDay = strings.TrimSpace(timeOfDay)

	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, ErrBadProposedDate
	}
	if _, err := time.Parse("15:04", timeOfDay); err != nil {
		return nil, ErrBadProposedTime
	}

	return &RescheduleProposal{
		ProposedDate: date,
		ProposedTime: timeOfDay,
		Reason:       strings.TrimSpace(reason),
		RequestedAt:  time.Now().UTC(),
	}, nil
}

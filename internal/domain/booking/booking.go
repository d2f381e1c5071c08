package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"mech-dispatch/internal/domain/geo"
)

// Booking is the domain entity corresponding to the `bookings` table. It is
// the one scheduled unit of work; customer, mechanic, vehicle and service are
// referenced by id and owned externally.
type Booking struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Actors & references
	CustomerID string
	MechanicID *string // nil until a mechanic accepts the job
	VehicleID  string
	ServiceID  string

	// Schedule
	ScheduledDate string // YYYY-MM-DD
	ScheduledTime string // HH:MM

	// Core state
	Status        Status
	StatusHistory []StatusEntry // append-only, timestamps non-decreasing

	// Destination of the job
	Location geo.Point

	// ETA in minutes, meaningful only while EN_ROUTE. A mechanic-entered
	// value (ETAManual) is never overwritten by the engine for the current
	// EN_ROUTE episode.
	ETAMinutes *int
	ETAManual  bool

	// Exclusive-state payloads
	CancellationReason *string             // present iff CANCELLED
	Reschedule         *RescheduleProposal // present iff RESCHEDULE_REQUESTED

	// Observed flags, set by external collaborators
	IsPaid     bool
	IsReviewed bool

	// Optimistic-concurrency version, bumped by the repository on every
	// committed write.
	Version int64
}

// StatusEntry is one row of the append-only status history.
type StatusEntry struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
}

var (
	ErrCustomerRequired    = errors.New("customer id is required")
	ErrVehicleRequired     = errors.New("vehicle id is required")
	ErrServiceRequired     = errors.New("service id is required")
	ErrMechanicRequired    = errors.New("mechanic id is required")
	ErrInvalidTransition   = errors.New("invalid booking status transition")
	ErrAlreadyAssigned     = errors.New("mechanic already assigned")
	ErrNoReschedulePending = errors.New("no reschedule proposal pending")
	ErrETAOutOfRange       = errors.New("eta must be at least 1 minute")
	ErrETANotEnRoute       = errors.New("eta can only be set while en route")
	ErrManualETASet        = errors.New("manual eta takes precedence")
)

// TransitionError reports a rejected transition with enough detail for the
// caller to explain why (current status vs. attempted status). It unwraps to
// ErrInvalidTransition.
type TransitionError struct {
	From Status
	To   Status
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move booking from %s to %s", e.Op, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// NewBooking creates a booking in UPCOMING with its first history entry.
func NewBooking(customerID, vehicleID, serviceID, scheduledDate, scheduledTime string, location geo.Point) (*Booking, error) {
	if customerID = strings.TrimSpace(customerID); customerID == "" {
		return nil, ErrCustomerRequired
	}
	if vehicleID = strings.TrimSpace(vehicleID); vehicleID == "" {
		return nil, ErrVehicleRequired
	}
	if serviceID = strings.TrimSpace(serviceID); serviceID == "" {
		return nil, ErrServiceRequired
	}
	if _, err := time.Parse("2006-01-02", strings.TrimSpace(scheduledDate)); err != nil {
		return nil, ErrBadProposedDate
	}
	if _, err := time.Parse("15:04", strings.TrimSpace(scheduledTime)); err != nil {
		return nil, ErrBadProposedTime
	}
	if location.Latitude < -90 || location.Latitude > 90 {
		return nil, geo.ErrInvalidLatitude
	}
	if location.Longitude < -180 || location.Longitude > 180 {
		return nil, geo.ErrInvalidLongitude
	}

	now := time.Now().UTC()
	b := &Booking{
		CreatedAt:     now,
		UpdatedAt:     now,
		CustomerID:    customerID,
		VehicleID:     vehicleID,
		ServiceID:     serviceID,
		ScheduledDate: strings.TrimSpace(scheduledDate),
		ScheduledTime: strings.TrimSpace(scheduledTime),
		Status:        StatusUpcoming,
		Location:      location,
	}
	b.StatusHistory = append(b.StatusHistory, StatusEntry{Status: StatusUpcoming, At: now})
	return b, nil
}

// RequestCancel moves the booking to CANCELLED and stores the reason. Legal
// only from UPCOMING, BOOKING_CONFIRMED or MECHANIC_ASSIGNED. The reason is
// stored even when blank so it is present exactly while CANCELLED.
func (b *Booking) RequestCancel(reason string) error {
	if !b.Status.Cancellable() {
		return &TransitionError{From: b.Status, To: StatusCancelled, Op: "request_cancel"}
	}
	rs := strings.TrimSpace(reason)
	b.CancellationReason = &rs
	b.setStatus(StatusCancelled)
	return nil
}

// RequestReschedule attaches a proposal and moves to RESCHEDULE_REQUESTED.
func (b *Booking) RequestReschedule(date, timeOfDay, reason string) error {
	if !b.Status.Reschedulable() {
		return &TransitionError{From: b.Status, To: StatusRescheduleRequested, Op: "request_reschedule"}
	}
	proposal, err := NewRescheduleProposal(date, timeOfDay, reason)
	if err != nil {
		return err
	}
	b.Reschedule = proposal
	b.setStatus(StatusRescheduleRequested)
	return nil
}

// RespondToReschedule resolves a pending proposal. Accepting adopts the
// proposed date/time and lands in BOOKING_CONFIRMED; rejecting restores the
// status the booking held before the reschedule was requested. Either way
// the proposal is cleared.
func (b *Booking) RespondToReschedule(accept bool) error {
	if b.Status != StatusRescheduleRequested {
		return &TransitionError{From: b.Status, To: StatusConfirmed, Op: "respond_to_reschedule"}
	}
	if b.Reschedule == nil {
		return ErrNoReschedulePending
	}

	if accept {
		b.ScheduledDate = b.Reschedule.ProposedDate
		b.ScheduledTime = b.Reschedule.ProposedTime
		b.Reschedule = nil
		b.setStatus(StatusConfirmed)
		return nil
	}

	b.Reschedule = nil
	b.setStatus(b.statusBeforeReschedule())
	return nil
}

// AcceptJob attaches a mechanic and moves the booking straight to EN_ROUTE.
// The direct jump past BOOKING_CONFIRMED/MECHANIC_ASSIGNED is deliberate:
// accepting a job is the fast dispatch path, and the skipped display states
// only appear when an operator advances the booking manually.
// Assignment is exclusive: a second mechanic gets ErrAlreadyAssigned.
func (b *Booking) AcceptJob(mechanicID string) error {
	if mechanicID = strings.TrimSpace(mechanicID); mechanicID == "" {
		return ErrMechanicRequired
	}
	if b.MechanicID != nil && *b.MechanicID != "" {
		return ErrAlreadyAssigned
	}
	if b.Status.Terminal() || b.Status == StatusInProgress {
		return &TransitionError{From: b.Status, To: StatusEnRoute, Op: "accept_job"}
	}

	b.MechanicID = &mechanicID
	b.Reschedule = nil // a pending proposal is superseded by dispatch
	b.startEnRouteEpisode()
	b.setStatus(StatusEnRoute)
	return nil
}

// SetStatus is the operator-driven transition (e.g. a mechanic manually
// advancing the timeline). Legal from any non-terminal state; appends history
// only when the status actually changes. CANCELLED and RESCHEDULE_REQUESTED
// carry payloads and must go through their dedicated operations.
func (b *Booking) SetStatus(next Status) error {
	if !next.Valid() {
		return ErrInvalidStatus
	}
	if b.Status.Terminal() {
		return &TransitionError{From: b.Status, To: next, Op: "set_status"}
	}
	if next == StatusCancelled || next == StatusRescheduleRequested {
		return &TransitionError{From: b.Status, To: next, Op: "set_status"}
	}
	if next.RequiresMechanic() && (b.MechanicID == nil || *b.MechanicID == "") {
		return ErrMechanicRequired
	}
	if next == b.Status {
		return nil
	}

	if next == StatusEnRoute {
		b.startEnRouteEpisode()
	}
	if b.Status == StatusRescheduleRequested {
		b.Reschedule = nil
	}
	b.setStatus(next)
	return nil
}

// Complete finalizes the job: IN_PROGRESS -> COMPLETED only.
func (b *Booking) Complete() error {
	if b.Status != StatusInProgress {
		return &TransitionError{From: b.Status, To: StatusCompleted, Op: "complete"}
	}
	b.setStatus(StatusCompleted)
	return nil
}

// SetManualETA records a mechanic-entered ETA. Manual values take precedence
// over engine-computed ones for the rest of the current EN_ROUTE episode.
func (b *Booking) SetManualETA(minutes int) error {
	if b.Status != StatusEnRoute {
		return ErrETANotEnRoute
	}
	if minutes < 1 {
		return ErrETAOutOfRange
	}
	b.ETAMinutes = &minutes
	b.ETAManual = true
	b.touch()
	return nil
}

// SetComputedETA records an engine-computed ETA. It refuses to overwrite a
// manual value; the caller treats ErrManualETASet as "skip, not a failure".
func (b *Booking) SetComputedETA(minutes int) error {
	if b.Status != StatusEnRoute {
		return ErrETANotEnRoute
	}
	if b.ETAManual {
		return ErrManualETASet
	}
	if minutes < 1 {
		return ErrETAOutOfRange
	}
	b.ETAMinutes = &minutes
	b.touch()
	return nil
}

// MarkPaid and MarkReviewed record flags owned by external collaborators.
func (b *Booking) MarkPaid()     { b.IsPaid = true; b.touch() }
func (b *Booking) MarkReviewed() { b.IsReviewed = true; b.touch() }

// Clone returns a deep copy. Subscribers and callers receive clones; the
// store keeps sole ownership of its Booking values.
func (b *Booking) Clone() *Booking {
	out := *b
	if b.MechanicID != nil {
		id := *b.MechanicID
		out.MechanicID = &id
	}
	if b.ETAMinutes != nil {
		eta := *b.ETAMinutes
		out.ETAMinutes = &eta
	}
	if b.CancellationReason != nil {
		r := *b.CancellationReason
		out.CancellationReason = &r
	}
	if b.Reschedule != nil {
		p := *b.Reschedule
		out.Reschedule = &p
	}
	out.StatusHistory = make([]StatusEntry, len(b.StatusHistory))
	copy(out.StatusHistory, b.StatusHistory)
	return &out
}

// ----- internal helpers -----

// setStatus applies the new status, appends exactly one history entry, and
// keeps the exclusive-payload invariants: the ETA lives only in EN_ROUTE and
// the cancellation reason only in CANCELLED.
func (b *Booking) setStatus(next Status) {
	if b.Status == StatusEnRoute && next != StatusEnRoute {
		b.ETAMinutes = nil
		b.ETAManual = false
	}
	if next != StatusCancelled {
		b.CancellationReason = nil
	}
	b.Status = next
	b.appendHistory(next)
	b.touch()
}

// appendHistory appends (status, now) keeping timestamps non-decreasing even
// if the wall clock steps backwards.
func (b *Booking) appendHistory(status Status) {
	now := time.Now().UTC()
	if n := len(b.StatusHistory); n > 0 && now.Before(b.StatusHistory[n-1].At) {
		now = b.StatusHistory[n-1].At
	}
	b.StatusHistory = append(b.StatusHistory, StatusEntry{Status: status, At: now})
}

// statusBeforeReschedule walks history backwards to the status held before
// the most recent RESCHEDULE_REQUESTED entry. UPCOMING if nothing is found.
func (b *Booking) statusBeforeReschedule() Status {
	for i := len(b.StatusHistory) - 1; i >= 0; i-- {
		if b.StatusHistory[i].Status == StatusRescheduleRequested {
			if i > 0 {
				return b.StatusHistory[i-1].Status
			}
			break
		}
	}
	return StatusUpcoming
}

// startEnRouteEpisode resets ETA state so a new EN_ROUTE episode starts
// without a stale manual override.
func (b *Booking) startEnRouteEpisode() {
	b.ETAMinutes = nil
	b.ETAManual = false
}

func (b *Booking) touch() {
	b.UpdatedAt = time.Now().UTC()
}

package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mech-dispatch/internal/domain/booking"
	"mech-dispatch/internal/general/logger"
	"mech-dispatch/internal/hub"
	"mech-dispatch/internal/ports"
)

// ----- in-memory fakes with the repository contracts -----

type memUnitOfWork struct{}

func (memUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// memBookingRepo mirrors the conditional-update contract: Update succeeds only
// when the stored row still carries expectedVersion.
type memBookingRepo struct {
	mu   sync.Mutex
	rows map[string]*booking.Booking
	seq  int
}

func newMemBookingRepo() *memBookingRepo {
	return &memBookingRepo{rows: make(map[string]*booking.Booking)}
}

func (r *memBookingRepo) Create(_ context.Context, b *booking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	b.ID = fmt.Sprintf("bk-%04d", r.seq)
	b.Version = 1
	r.rows[b.ID] = b.Clone()
	return nil
}

func (r *memBookingRepo) GetByID(_ context.Context, id string) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return row.Clone(), nil
}

func (r *memBookingRepo) ListByCustomer(_ context.Context, customerID string) ([]*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*booking.Booking
	for _, row := range r.rows {
		if row.CustomerID == customerID {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

func (r *memBookingRepo) ListByMechanic(_ context.Context, mechanicID string) ([]*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*booking.Booking
	for _, row := range r.rows {
		if row.MechanicID != nil && *row.MechanicID == mechanicID {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

func (r *memBookingRepo) ListByStatus(_ context.Context, status booking.Status) ([]*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*booking.Booking
	for _, row := range r.rows {
		if row.Status == status {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

func (r *memBookingRepo) GetActiveForMechanic(_ context.Context, mechanicID string) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.MechanicID == nil || *row.MechanicID != mechanicID {
			continue
		}
		switch row.Status {
		case booking.StatusMechanicAssigned, booking.StatusEnRoute, booking.StatusInProgress:
			return row.Clone(), nil
		}
	}
	return nil, nil
}

func (r *memBookingRepo) Update(_ context.Context, b *booking.Booking, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[b.ID]
	if !ok {
		return ports.ErrNotFound
	}
	if row.Version != expectedVersion {
		return ports.ErrConcurrentModification
	}
	b.Version = expectedVersion + 1
	r.rows[b.ID] = b.Clone()
	return nil
}

func (r *memBookingRepo) CountByStatus(_ context.Context) (map[booking.Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[booking.Status]int)
	for _, row := range r.rows {
		out[row.Status]++
	}
	return out, nil
}

type memEventRepo struct {
	mu     sync.Mutex
	events []*booking.Event
}

func (r *memEventRepo) Append(_ context.Context, e *booking.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *memEventRepo) types() []booking.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]booking.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// ----- fixtures -----

type fixture struct {
	svc    ports.BookingService
	repo   *memBookingRepo
	events *memEventRepo
	hub    *hub.BookingHub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemBookingRepo()
	events := &memEventRepo{}
	changeHub := hub.NewBookingHub()
	svc := NewBookingService(logger.New("booking-service-test"), memUnitOfWork{}, repo, events, nil, changeHub)
	return &fixture{svc: svc, repo: repo, events: events, hub: changeHub}
}

func createInput() ports.CreateBookingInput {
	return ports.CreateBookingInput{
		CustomerID:    "cust-1",
		VehicleID:     "veh-1",
		ServiceID:     "svc-1",
		ScheduledDate: "2026-09-01",
		ScheduledTime: "14:30",
		Latitude:      14.5547,
		Longitude:     121.0244,
	}
}

// ----- tests -----

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, createInput())
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, int64(1), b.Version)
	assert.Equal(t, booking.StatusUpcoming, b.Status)
	assert.Equal(t, []booking.EventType{booking.EventBookingCreated}, f.events.types())
}

func TestGetByIDNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetByID(context.Background(), "bk-missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestAcceptJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, createInput())
	require.NoError(t, err)

	out, err := f.svc.AcceptJob(ctx, b.ID, "mech-1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusEnRoute, out.Status)
	require.NotNil(t, out.MechanicID)
	assert.Equal(t, "mech-1", *out.MechanicID)
	assert.Equal(t, int64(2), out.Version)
	assert.Contains(t, f.events.types(), booking.EventMechanicAssigned)
}

func TestAcceptJobExactlyOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, createInput())
	require.NoError(t, err)

	const contenders = 16
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.AcceptJob(ctx, b.ID, fmt.Sprintf("mech-%d", i))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, booking.ErrAlreadyAssigned)
		}
	}
	assert.Equal(t, 1, winners, "exactly one mechanic must win the job")

	stored, err := f.repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.MechanicID)
	assert.Equal(t, booking.StatusEnRoute, stored.Status)
}

func TestRequestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, createInput())
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []booking.Status
	unsub := f.hub.SubscribeToBooking(b.ID, func(change hub.BookingChange) {
		mu.Lock()
		seen = append(seen, change.Booking.Status)
		mu.Unlock()
	})
	defer unsub()

	out, err := f.svc.RequestCancel(ctx, b.ID, "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, out.Status)
	require.NotNil(t, out.CancellationReason)
	assert.Contains(t, f.events.types(), booking.EventBookingCancelled)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == booking.StatusCancelled
	}, 2*time.Second, 10*time.Millisecond, "committed change must reach the hub")
}

func TestRescheduleFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, createInput())
	require.NoError(t, err)

	out, err := f.svc.RequestReschedule(ctx, ports.RescheduleInput{
		BookingID: b.ID,
		Date:      "2026-09-03",
		Time:      "09:00",
		Reason:    "parts delayed",
	})
	require.NoError(t, err)
	assert.Equal(t, booking.StatusRescheduleRequested, out.Status)

	out, err = f.svc.RespondToReschedule(ctx, b.ID, true)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, out.Status)
	assert.Equal(t, "2026-09-03", out.ScheduledDate)
	assert.Contains(t, f.events.types(), booking.EventRescheduleResolved)
}

func TestComputedETARespectsManual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, createInput())
	require.NoError(t, err)
	_, err = f.svc.AcceptJob(ctx, b.ID, "mech-1")
	require.NoError(t, err)

	out, err := f.svc.SetComputedETA(ctx, b.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, *out.ETAMinutes)

	out, err = f.svc.SetManualETA(ctx, b.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, *out.ETAMinutes)

	_, err = f.svc.SetComputedETA(ctx, b.ID, 30)
	assert.ErrorIs(t, err, booking.ErrManualETASet)

	stored, err := f.repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, *stored.ETAMinutes)
}

func TestStatusProgression(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.Create(ctx, createInput())
	require.NoError(t, err)
	_, err = f.svc.AcceptJob(ctx, b.ID, "mech-1")
	require.NoError(t, err)

	out, err := f.svc.SetStatus(ctx, b.ID, booking.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusInProgress, out.Status)
	assert.Contains(t, f.events.types(), booking.EventJobStarted)

	out, err = f.svc.Complete(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, out.Status)
	assert.Contains(t, f.events.types(), booking.EventJobCompleted)

	_, err = f.svc.SetStatus(ctx, b.ID, booking.StatusUpcoming)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
}

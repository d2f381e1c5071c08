package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mech-dispatch/internal/domain/booking"
	"mech-dispatch/internal/domain/geo"
	"mech-dispatch/internal/general/logger"
	"mech-dispatch/internal/hub"
	"mech-dispatch/internal/ports"
)

// ----- fakes -----

// stubSource serves a settable sample; move updates it and fires watchers,
// the way a device source reports movement.
type stubSource struct {
	mu       sync.Mutex
	sample   *ports.PositionSample
	watchers []func(ports.PositionSample)
}

func (s *stubSource) GetCurrentPosition(_ context.Context) (ports.PositionSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sample == nil {
		return ports.PositionSample{}, ports.ErrPositionTimeout
	}
	return *s.sample, nil
}

func (s *stubSource) WatchPosition(fn func(ports.PositionSample)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
	return func() {}
}

func (s *stubSource) move(sample ports.PositionSample) {
	s.mu.Lock()
	s.sample = &sample
	fns := append([]func(ports.PositionSample){}, s.watchers...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(sample)
	}
}

type stubProvider struct {
	src ports.PositionSource
	err error
}

func (p stubProvider) Acquire(context.Context, string) (ports.PositionSource, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.src, nil
}

type memLocationRepo struct {
	mu      sync.Mutex
	rows    map[string]geo.MechanicLocation
	upserts int
}

func newMemLocationRepo() *memLocationRepo {
	return &memLocationRepo{rows: make(map[string]geo.MechanicLocation)}
}

func (r *memLocationRepo) Upsert(_ context.Context, loc *geo.MechanicLocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[loc.MechanicID] = loc.Clone()
	r.upserts++
	return nil
}

func (r *memLocationRepo) Get(_ context.Context, mechanicID string) (*geo.MechanicLocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[mechanicID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := row.Clone()
	return &out, nil
}

func (r *memLocationRepo) MarkOffline(_ context.Context, mechanicID string, at time.Time) (*geo.MechanicLocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[mechanicID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	row.IsOnline = false
	row.LastUpdated = at
	r.rows[mechanicID] = row
	out := row.Clone()
	return &out, nil
}

func (r *memLocationRepo) ListOnline(_ context.Context) ([]*geo.MechanicLocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*geo.MechanicLocation
	for _, row := range r.rows {
		if row.IsOnline {
			c := row.Clone()
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memLocationRepo) upsertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserts
}

type memHistoryRepo struct {
	mu   sync.Mutex
	rows []*geo.LocationHistory
}

func (r *memHistoryRepo) Archive(_ context.Context, row *geo.LocationHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
	return nil
}

func (r *memHistoryRepo) all() []*geo.LocationHistory {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*geo.LocationHistory{}, r.rows...)
}

type passthroughUow struct{}

func (passthroughUow) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// stubBookingRepo only answers GetActiveForMechanic; the rest of the
// repository surface is unused by the tracking service.
type stubBookingRepo struct {
	active *booking.Booking
}

func (r stubBookingRepo) Create(context.Context, *booking.Booking) error { return nil }
func (r stubBookingRepo) GetByID(context.Context, string) (*booking.Booking, error) {
	return nil, ports.ErrNotFound
}
func (r stubBookingRepo) ListByCustomer(context.Context, string) ([]*booking.Booking, error) {
	return nil, nil
}
func (r stubBookingRepo) ListByMechanic(context.Context, string) ([]*booking.Booking, error) {
	return nil, nil
}
func (r stubBookingRepo) ListByStatus(context.Context, booking.Status) ([]*booking.Booking, error) {
	return nil, nil
}
func (r stubBookingRepo) GetActiveForMechanic(context.Context, string) (*booking.Booking, error) {
	return r.active, nil
}
func (r stubBookingRepo) Update(context.Context, *booking.Booking, int64) error { return nil }
func (r stubBookingRepo) CountByStatus(context.Context) (map[booking.Status]int, error) {
	return nil, nil
}

func sampleAt(lat, lng float64) ports.PositionSample {
	return ports.PositionSample{Latitude: lat, Longitude: lng, TakenAt: time.Now().UTC()}
}

// ----- tests -----

func TestStartSamplesImmediately(t *testing.T) {
	src := &stubSource{}
	src.move(sampleAt(14.5547, 121.0244))

	repo := newMemLocationRepo()
	locHub := hub.NewLocationHub()
	svc := NewTrackingService(logger.New("tracking-test"), stubProvider{src: src}, nil, repo, nil, nil, nil,
		locHub, time.Hour, 200*time.Millisecond)

	ack, err := svc.Start(context.Background(), "mech-1")
	require.NoError(t, err)
	assert.NotEmpty(t, ack.SessionID)
	assert.Equal(t, "mech-1", ack.MechanicID)
	defer svc.Stop(context.Background(), "mech-1")

	require.Eventually(t, func() bool {
		loc, err := repo.Get(context.Background(), "mech-1")
		return err == nil && loc.IsOnline && loc.Latitude == 14.5547
	}, 2*time.Second, 10*time.Millisecond, "first sample must land without waiting a full interval")

	loc, ok := locHub.Latest("mech-1")
	require.True(t, ok)
	assert.True(t, loc.IsOnline)
}

func TestStartIdempotent(t *testing.T) {
	src := &stubSource{}
	src.move(sampleAt(14.5547, 121.0244))

	svc := NewTrackingService(logger.New("tracking-test"), stubProvider{src: src}, nil, newMemLocationRepo(),
		nil, nil, nil, nil, time.Hour, 200*time.Millisecond)

	first, err := svc.Start(context.Background(), "mech-1")
	require.NoError(t, err)
	second, err := svc.Start(context.Background(), "mech-1")
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	defer svc.Stop(context.Background(), "mech-1")
}

func TestStartAcquireFailure(t *testing.T) {
	svc := NewTrackingService(logger.New("tracking-test"), stubProvider{err: ports.ErrPermissionDenied},
		nil, newMemLocationRepo(), nil, nil, nil, nil, time.Hour, 200*time.Millisecond)

	_, err := svc.Start(context.Background(), "mech-1")
	assert.ErrorIs(t, err, ports.ErrPermissionDenied)
}

func TestStopKeepsLastKnownCoordinates(t *testing.T) {
	src := &stubSource{}
	src.move(sampleAt(14.5547, 121.0244))

	repo := newMemLocationRepo()
	locHub := hub.NewLocationHub()
	svc := NewTrackingService(logger.New("tracking-test"), stubProvider{src: src}, nil, repo, nil, nil, nil,
		locHub, time.Hour, 200*time.Millisecond)

	_, err := svc.Start(context.Background(), "mech-1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return repo.upsertCount() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Stop(context.Background(), "mech-1"))

	loc, err := repo.Get(context.Background(), "mech-1")
	require.NoError(t, err)
	assert.False(t, loc.IsOnline)
	assert.Equal(t, 14.5547, loc.Latitude)
	assert.Equal(t, 121.0244, loc.Longitude)

	// the offline marker reaches subscribers as the final record
	latest, ok := locHub.Latest("mech-1")
	require.True(t, ok)
	assert.False(t, latest.IsOnline)

	// a second stop has nothing left to do
	assert.NoError(t, svc.Stop(context.Background(), "mech-1"))
}

func TestStopWithoutSession(t *testing.T) {
	repo := newMemLocationRepo()
	svc := NewTrackingService(logger.New("tracking-test"), stubProvider{src: &stubSource{}}, nil,
		repo, nil, nil, nil, nil, time.Hour, 200*time.Millisecond)

	// stopping a mechanic that never started publishing is a no-op
	assert.NoError(t, svc.Stop(context.Background(), "mech-1"))
	assert.Equal(t, 0, repo.upsertCount())
	_, err := repo.Get(context.Background(), "mech-1")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestStopBeforeFirstSample(t *testing.T) {
	// a source that never yields keeps the store empty
	svc := NewTrackingService(logger.New("tracking-test"), stubProvider{src: &stubSource{}}, nil,
		newMemLocationRepo(), nil, nil, nil, nil, time.Hour, 10*time.Millisecond)

	_, err := svc.Start(context.Background(), "mech-1")
	require.NoError(t, err)
	assert.NoError(t, svc.Stop(context.Background(), "mech-1"))
}

func TestPushWithoutSession(t *testing.T) {
	svc := NewTrackingService(logger.New("tracking-test"), stubProvider{src: &stubSource{}}, nil,
		newMemLocationRepo(), nil, nil, nil, nil, time.Hour, 200*time.Millisecond)

	err := svc.Push(context.Background(), "mech-1", sampleAt(14.5547, 121.0244))
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestMovementTriggersPublish(t *testing.T) {
	src := &stubSource{}
	src.move(sampleAt(14.5547, 121.0244))

	repo := newMemLocationRepo()
	svc := NewTrackingService(logger.New("tracking-test"), stubProvider{src: src}, nil, repo, nil, nil, nil,
		nil, time.Hour, 200*time.Millisecond)

	_, err := svc.Start(context.Background(), "mech-1")
	require.NoError(t, err)
	defer svc.Stop(context.Background(), "mech-1")

	require.Eventually(t, func() bool {
		return repo.upsertCount() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	src.move(sampleAt(14.5600, 121.0300))

	require.Eventually(t, func() bool {
		loc, err := repo.Get(context.Background(), "mech-1")
		return err == nil && loc.Latitude == 14.5600
	}, 2*time.Second, 10*time.Millisecond, "movement must publish without waiting for the interval")
}

func TestPushThroughDeviceSourceIngestsOnce(t *testing.T) {
	provider := NewDeviceSourceProvider()
	repo := newMemLocationRepo()
	hist := &memHistoryRepo{}
	active, err := booking.NewBooking("cust-1", "veh-1", "svc-1", "2026-09-01", "14:30",
		geo.Point{Latitude: 14.5547, Longitude: 121.0244})
	require.NoError(t, err)
	active.ID = "bk-42"

	svc := NewTrackingService(logger.New("tracking-test"), provider, passthroughUow{}, repo, hist,
		stubBookingRepo{active: active}, nil, nil, time.Hour, 20*time.Millisecond)

	_, err = svc.Start(context.Background(), "mech-1")
	require.NoError(t, err)
	defer svc.Stop(context.Background(), "mech-1")

	// the interval poll times out while no sample was pushed yet
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, repo.upsertCount())

	require.NoError(t, svc.Push(context.Background(), "mech-1", sampleAt(14.5547, 121.0244)))

	require.Eventually(t, func() bool {
		return repo.upsertCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// a pushed sample is written exactly once even though the device source
	// serves both the watch and the poll
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, repo.upsertCount())

	rows := hist.all()
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].BookingID)
	assert.Equal(t, "bk-42", *rows[0].BookingID)
}

func TestDeviceSourceAcquire(t *testing.T) {
	provider := NewDeviceSourceProvider()

	_, err := provider.Acquire(context.Background(), "")
	assert.ErrorIs(t, err, ports.ErrPositionUnavailable)

	a, err := provider.Acquire(context.Background(), "mech-1")
	require.NoError(t, err)
	b, err := provider.Acquire(context.Background(), "mech-1")
	require.NoError(t, err)
	assert.Same(t, a.(*deviceSource), b.(*deviceSource))
}

func TestDeviceSourceWaitsForFirstSample(t *testing.T) {
	src := newDeviceSource()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := src.GetCurrentPosition(ctx)
	assert.ErrorIs(t, err, ports.ErrPositionTimeout)

	go func() {
		time.Sleep(20 * time.Millisecond)
		src.offer(sampleAt(14.5547, 121.0244))
	}()

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	sample, err := src.GetCurrentPosition(ctx2)
	require.NoError(t, err)
	assert.Equal(t, 14.5547, sample.Latitude)
}

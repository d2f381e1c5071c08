package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mech-dispatch/internal/domain/booking"
	"mech-dispatch/internal/domain/geo"
	"mech-dispatch/internal/general/logger"
	"mech-dispatch/internal/hub"
)

// enRouteFixture creates a booking already EN_ROUTE with mech-1 assigned and
// an engine following the change feed.
func enRouteFixture(t *testing.T) (*fixture, *hub.LocationHub, *ETAEngine, *booking.Booking) {
	t.Helper()
	f := newFixture(t)
	locHub := hub.NewLocationHub()

	engine := NewETAEngine(logger.New("eta-test"), f.svc, f.hub, locHub, 50*time.Millisecond, geo.DefaultAvgSpeedKmh)
	engine.Start(context.Background())
	t.Cleanup(engine.Stop)

	b, err := f.svc.Create(context.Background(), createInput())
	require.NoError(t, err)
	b, err = f.svc.AcceptJob(context.Background(), b.ID, "mech-1")
	require.NoError(t, err)
	return f, locHub, engine, b
}

func publishMechanicAt(t *testing.T, h *hub.LocationHub, lat, lng float64) {
	t.Helper()
	loc, err := geo.NewMechanicLocation("mech-1", lat, lng, nil, nil, nil)
	require.NoError(t, err)
	h.Publish(*loc)
}

func TestETAEngineComputesFromMovement(t *testing.T) {
	f, locHub, _, b := enRouteFixture(t)

	// mechanic roughly 10 km due north of the job site
	publishMechanicAt(t, locHub, b.Location.Latitude+0.09, b.Location.Longitude)

	wantKm := geo.HaversineKm(b.Location.Latitude+0.09, b.Location.Longitude,
		b.Location.Latitude, b.Location.Longitude)
	want := geo.EstimateETAMinutes(wantKm, geo.DefaultAvgSpeedKmh)

	require.Eventually(t, func() bool {
		stored, err := f.repo.GetByID(context.Background(), b.ID)
		return err == nil && stored.ETAMinutes != nil && *stored.ETAMinutes == want
	}, 3*time.Second, 10*time.Millisecond, "engine must store a computed ETA after a position update")
}

func TestETAEngineRespectsManualOverride(t *testing.T) {
	f, locHub, _, b := enRouteFixture(t)

	_, err := f.svc.SetManualETA(context.Background(), b.ID, 7)
	require.NoError(t, err)

	publishMechanicAt(t, locHub, b.Location.Latitude+0.09, b.Location.Longitude)

	// both the movement kick and several fallback ticks pass without a write
	time.Sleep(200 * time.Millisecond)
	stored, err := f.repo.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, *stored.ETAMinutes)
}

func TestETAEngineUntracksWhenLeavingEnRoute(t *testing.T) {
	f, locHub, engine, b := enRouteFixture(t)

	publishMechanicAt(t, locHub, b.Location.Latitude+0.09, b.Location.Longitude)
	require.Eventually(t, func() bool {
		stored, err := f.repo.GetByID(context.Background(), b.ID)
		return err == nil && stored.ETAMinutes != nil
	}, 3*time.Second, 10*time.Millisecond)

	_, err := f.svc.SetStatus(context.Background(), b.ID, booking.StatusInProgress)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return len(engine.jobs) == 0
	}, 3*time.Second, 10*time.Millisecond, "leaving EN_ROUTE must drop the follower")

	// later movement no longer resurrects an ETA
	publishMechanicAt(t, locHub, b.Location.Latitude+0.05, b.Location.Longitude)
	time.Sleep(150 * time.Millisecond)
	stored, err := f.repo.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ETAMinutes)
}

func TestETAEngineFallbackUsesLastKnownPosition(t *testing.T) {
	f := newFixture(t)
	locHub := hub.NewLocationHub()

	// position known before the booking ever goes EN_ROUTE
	publishMechanicAt(t, locHub, 14.6447, 121.0244)

	engine := NewETAEngine(logger.New("eta-test"), f.svc, f.hub, locHub, 50*time.Millisecond, geo.DefaultAvgSpeedKmh)
	engine.Start(context.Background())
	t.Cleanup(engine.Stop)

	b, err := f.svc.Create(context.Background(), createInput())
	require.NoError(t, err)
	_, err = f.svc.AcceptJob(context.Background(), b.ID, "mech-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := f.repo.GetByID(context.Background(), b.ID)
		return err == nil && stored.ETAMinutes != nil
	}, 3*time.Second, 10*time.Millisecond, "fallback refresh must use the hub's latest record")
}

package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"mech-dispatch/internal/domain/booking"
	"mech-dispatch/internal/domain/geo"
	"mech-dispatch/internal/general/logger"
	"mech-dispatch/internal/hub"
	"mech-dispatch/internal/ports"
)

// ETAEngine keeps the ETA of every EN_ROUTE booking fresh. For each such
// booking it follows the assigned mechanic's position and recomputes the ETA
// on movement; a fallback timer refreshes from the last known position when
// the mechanic goes quiet. A mechanic-entered ETA always wins: the engine
// skips the refresh for the rest of that EN_ROUTE episode.
type ETAEngine struct {
	logger    *logger.Logger
	svc       ports.BookingService
	bookings  *hub.BookingHub
	locations *hub.LocationHub

	refreshEvery time.Duration
	avgSpeedKmh  float64

	mu        sync.Mutex
	jobs      map[string]*etaJob
	unsubFeed func()
	runCtx    context.Context
	cancel    context.CancelFunc
}

// NewETAEngine wires the engine; Start must be called before it does anything.
func NewETAEngine(
	logger *logger.Logger,
	svc ports.BookingService,
	bookings *hub.BookingHub,
	locations *hub.LocationHub,
	refreshEvery time.Duration,
	avgSpeedKmh float64,
) *ETAEngine {
	if refreshEvery <= 0 {
		refreshEvery = 15 * time.Second
	}
	if avgSpeedKmh <= 0 {
		avgSpeedKmh = geo.DefaultAvgSpeedKmh
	}
	return &ETAEngine{
		logger:       logger,
		svc:          svc,
		bookings:     bookings,
		locations:    locations,
		refreshEvery: refreshEvery,
		avgSpeedKmh:  avgSpeedKmh,
		jobs:         make(map[string]*etaJob),
	}
}

// Start subscribes to the booking change feed and begins tracking.
func (engine *ETAEngine) Start(ctx context.Context) {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	if engine.unsubFeed != nil {
		return
	}
	engine.runCtx, engine.cancel = context.WithCancel(context.WithoutCancel(ctx))
	engine.unsubFeed = engine.bookings.SubscribeAll(engine.observe)
	engine.logger.Info(ctx, "eta_engine_started", "ETA engine subscribed to booking changes", map[string]any{
		"refresh_seconds": int(engine.refreshEvery.Seconds()),
	})
}

// Stop unsubscribes and tears down every tracked booking.
func (engine *ETAEngine) Stop() {
	engine.mu.Lock()
	unsub := engine.unsubFeed
	engine.unsubFeed = nil
	cancel := engine.cancel
	jobs := engine.jobs
	engine.jobs = make(map[string]*etaJob)
	engine.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	for _, job := range jobs {
		job.stop()
	}
	if cancel != nil {
		cancel()
	}
}

// observe aligns the tracked set with one committed booking change.
func (engine *ETAEngine) observe(change hub.BookingChange) {
	b := change.Booking
	track := change.Kind != hub.ChangeDelete &&
		b.Status == booking.StatusEnRoute &&
		b.MechanicID != nil && *b.MechanicID != ""

	engine.mu.Lock()
	existing := engine.jobs[b.ID]

	if !track {
		delete(engine.jobs, b.ID)
		engine.mu.Unlock()
		if existing != nil {
			existing.stop()
			engine.logger.Debug(engine.runCtx, "eta_tracking_stopped", "Booking left EN_ROUTE", map[string]any{
				"booking_id": b.ID,
			})
		}
		return
	}

	if existing != nil && existing.mechanicID == *b.MechanicID {
		engine.mu.Unlock()
		return
	}

	job := newETAJob(engine, b.ID, *b.MechanicID, b.Location)
	engine.jobs[b.ID] = job
	engine.mu.Unlock()

	// reassignment replaces the old follower
	if existing != nil {
		existing.stop()
	}
	job.start()

	engine.logger.Debug(engine.runCtx, "eta_tracking_started", "Following mechanic for EN_ROUTE booking", map[string]any{
		"booking_id":  b.ID,
		"mechanic_id": job.mechanicID,
	})
}

// dropJob removes a job that terminated itself (e.g. stale state after a
// transition the engine has not observed yet).
func (engine *ETAEngine) dropJob(bookingID string, job *etaJob) {
	engine.mu.Lock()
	if engine.jobs[bookingID] == job {
		delete(engine.jobs, bookingID)
	}
	engine.mu.Unlock()
	job.stop()
}

// ----- per-booking follower -----

type etaJob struct {
	engine     *ETAEngine
	bookingID  string
	mechanicID string
	dest       geo.Point

	mu       sync.Mutex
	lastLoc  *geo.MechanicLocation
	unsubLoc func()

	kick chan struct{}
	done chan struct{}
	once sync.Once
}

func newETAJob(engine *ETAEngine, bookingID, mechanicID string, dest geo.Point) *etaJob {
	return &etaJob{
		engine:     engine,
		bookingID:  bookingID,
		mechanicID: mechanicID,
		dest:       dest,
		kick:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

func (job *etaJob) start() {
	unsub := job.engine.locations.SubscribeToMechanic(job.mechanicID, func(loc geo.MechanicLocation) {
		job.mu.Lock()
		job.lastLoc = &loc
		job.mu.Unlock()
		select {
		case job.kick <- struct{}{}:
		default:
		}
	})

	job.mu.Lock()
	job.unsubLoc = unsub
	job.mu.Unlock()

	go job.run()
}

func (job *etaJob) stop() {
	job.once.Do(func() { close(job.done) })
	job.mu.Lock()
	unsub := job.unsubLoc
	job.unsubLoc = nil
	job.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (job *etaJob) run() {
	// fallback refresh keeps the ETA moving while the device is quiet
	ticker := time.NewTicker(job.engine.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-job.done:
			return
		case <-job.kick:
			job.refresh()
		case <-ticker.C:
			job.refresh()
		}
	}
}

// refresh recomputes the ETA from the newest known position and writes it
// through the booking service.
func (job *etaJob) refresh() {
	job.mu.Lock()
	loc := job.lastLoc
	job.mu.Unlock()

	if loc == nil {
		if latest, ok := job.engine.locations.Latest(job.mechanicID); ok {
			loc = &latest
		} else {
			return
		}
	}

	distanceKm := geo.HaversineKm(loc.Latitude, loc.Longitude, job.dest.Latitude, job.dest.Longitude)
	minutes := geo.EstimateETAMinutes(distanceKm, job.engine.avgSpeedKmh)

	ctx, cancel := context.WithTimeout(job.engine.runCtx, 5*time.Second)
	defer cancel()

	_, err := job.engine.svc.SetComputedETA(ctx, job.bookingID, minutes)
	switch {
	case err == nil:
	case errors.Is(err, booking.ErrManualETASet):
		// mechanic override in place; keep following without writing
	case errors.Is(err, booking.ErrETANotEnRoute), errors.Is(err, booking.ErrInvalidTransition):
		// booking moved on before the change event reached us
		job.engine.dropJob(job.bookingID, job)
	default:
		job.engine.logger.Error(ctx, "eta_refresh_failed", "Failed to store computed ETA", err, map[string]any{
			"booking_id":  job.bookingID,
			"mechanic_id": job.mechanicID,
		})
	}
}

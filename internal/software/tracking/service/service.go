package service

import (
	"context"
	"sync"
	"time"

	"mech-dispatch/internal/general/logger"
	"mech-dispatch/internal/hub"
	"mech-dispatch/internal/ports"
)

// trackingService manages one location publisher session per mechanic. A
// session samples the device position on a fixed interval and additionally on
// movement; every sample is upserted into the hot store, archived, and fanned
// out to subscribers and the message bus.
type trackingService struct {
	logger   *logger.Logger
	provider ports.PositionSourceProvider
	uow      ports.UnitOfWork
	locRepo  ports.MechanicLocationRepository
	histRepo ports.LocationHistoryRepository
	bookings ports.BookingRepository
	pub      ports.FeedPublisher
	locHub   *hub.LocationHub

	sampleInterval  time.Duration
	positionTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*publisherSession
}

// NewTrackingService creates a TrackingService. bookings may be nil; it is
// only used to tag archived samples with the mechanic's active job.
func NewTrackingService(
	logger *logger.Logger,
	provider ports.PositionSourceProvider,
	uow ports.UnitOfWork,
	locRepo ports.MechanicLocationRepository,
	histRepo ports.LocationHistoryRepository,
	bookings ports.BookingRepository,
	pub ports.FeedPublisher,
	locHub *hub.LocationHub,
	sampleInterval time.Duration,
	positionTimeout time.Duration,
) ports.TrackingService {
	if sampleInterval <= 0 {
		sampleInterval = 10 * time.Second
	}
	if positionTimeout <= 0 {
		positionTimeout = 5 * time.Second
	}
	return &trackingService{
		logger:          logger,
		provider:        provider,
		uow:             uow,
		locRepo:         locRepo,
		histRepo:        histRepo,
		bookings:        bookings,
		pub:             pub,
		locHub:          locHub,
		sampleInterval:  sampleInterval,
		positionTimeout: positionTimeout,
		sessions:        make(map[string]*publisherSession),
	}
}

// Start begins publishing for a mechanic. Starting an already-running session
// is a no-op that returns the existing acknowledgement.
func (service *trackingService) Start(ctx context.Context, mechanicID string) (ports.TrackingAck, error) {
	service.mu.Lock()
	if existing, ok := service.sessions[mechanicID]; ok {
		ack := existing.ack
		service.mu.Unlock()
		service.logger.Debug(ctx, "tracking_already_running", "Publisher session already active", map[string]any{
			"mechanic_id": mechanicID,
			"session_id":  ack.SessionID,
		})
		return ack, nil
	}
	service.mu.Unlock()

	// acquire outside the lock: the provider may block on permissions
	src, err := service.provider.Acquire(ctx, mechanicID)
	if err != nil {
		service.logger.Error(ctx, "tracking_acquire_failed", "Failed to acquire position source", err, map[string]any{
			"mechanic_id": mechanicID,
		})
		return ports.TrackingAck{}, err
	}

	session := newPublisherSession(service, mechanicID, src)

	service.mu.Lock()
	if existing, ok := service.sessions[mechanicID]; ok {
		// lost a start/start race; keep the winner
		ack := existing.ack
		service.mu.Unlock()
		session.discard()
		return ack, nil
	}
	service.sessions[mechanicID] = session
	service.mu.Unlock()

	session.start()

	service.logger.Info(ctx, "tracking_started", "Location publisher session started", map[string]any{
		"mechanic_id": mechanicID,
		"session_id":  session.ack.SessionID,
	})
	return session.ack, nil
}

// Stop ends the session and flips the stored record offline, keeping the last
// known coordinates. Stopping a mechanic with no running session is a no-op:
// the end state (not publishing) already holds.
func (service *trackingService) Stop(ctx context.Context, mechanicID string) error {
	service.mu.Lock()
	session, ok := service.sessions[mechanicID]
	delete(service.sessions, mechanicID)
	service.mu.Unlock()

	if !ok {
		service.logger.Debug(ctx, "tracking_stop_noop", "No publisher session to stop", map[string]any{
			"mechanic_id": mechanicID,
		})
		return nil
	}

	session.shutdown()

	loc, err := service.locRepo.MarkOffline(ctx, mechanicID, time.Now().UTC())
	if err != nil {
		if err == ports.ErrNotFound {
			// never produced a sample; nothing to flip
			service.logger.Info(ctx, "tracking_stopped", "Publisher session stopped before first sample", map[string]any{
				"mechanic_id": mechanicID,
			})
			return nil
		}
		service.logger.Error(ctx, "tracking_offline_failed", "Failed to mark mechanic offline", err, map[string]any{
			"mechanic_id": mechanicID,
		})
		return err
	}

	service.fanOut(ctx, loc)

	service.logger.Info(ctx, "tracking_stopped", "Location publisher session stopped", map[string]any{
		"mechanic_id": mechanicID,
		"session_id":  session.ack.SessionID,
	})
	return nil
}

// Push feeds one device-pushed sample into the mechanic's running session.
func (service *trackingService) Push(ctx context.Context, mechanicID string, sample ports.PositionSample) error {
	service.mu.Lock()
	session, ok := service.sessions[mechanicID]
	service.mu.Unlock()

	if !ok {
		return ports.ErrNotFound
	}
	return session.push(ctx, sample)
}

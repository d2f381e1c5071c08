package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"mech-dispatch/internal/domain/geo"
	"mech-dispatch/internal/general/contracts"
	"mech-dispatch/internal/ports"
)

// publisherSession runs the sampling loop for one mechanic. It samples on a
// fixed interval and additionally whenever the source reports movement; the
// two paths converge in ingest.
type publisherSession struct {
	service    *trackingService
	mechanicID string
	source     ports.PositionSource
	ack        ports.TrackingAck

	stopWatch func()
	done      chan struct{}
	once      sync.Once
}

func newPublisherSession(service *trackingService, mechanicID string, source ports.PositionSource) *publisherSession {
	return &publisherSession{
		service:    service,
		mechanicID: mechanicID,
		source:     source,
		ack: ports.TrackingAck{
			SessionID:  uuid.NewString(),
			MechanicID: mechanicID,
			StartedAt:  time.Now().UTC(),
		},
		done: make(chan struct{}),
	}
}

// start wires the movement watch and launches the interval loop. The first
// sample is taken immediately so subscribers see the mechanic without waiting
// a full interval.
func (session *publisherSession) start() {
	session.stopWatch = session.source.WatchPosition(func(sample ports.PositionSample) {
		select {
		case <-session.done:
			return
		default:
		}
		session.ingest(context.Background(), sample)
	})

	go session.run()
}

func (session *publisherSession) run() {
	session.sampleOnce()

	ticker := time.NewTicker(session.service.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-session.done:
			return
		case <-ticker.C:
			session.sampleOnce()
		}
	}
}

// sampleOnce polls the source with a bounded wait. A timeout is not fatal:
// the session keeps running and the next tick tries again.
func (session *publisherSession) sampleOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), session.service.positionTimeout)
	defer cancel()

	sample, err := session.source.GetCurrentPosition(ctx)
	if err != nil {
		if errors.Is(err, ports.ErrPositionTimeout) || errors.Is(err, context.DeadlineExceeded) {
			session.service.logger.Debug(ctx, "position_sample_timeout", "No position within the sampling window", map[string]any{
				"mechanic_id": session.mechanicID,
			})
			return
		}
		session.service.logger.Error(ctx, "position_sample_failed", "Position source returned an error", err, map[string]any{
			"mechanic_id": session.mechanicID,
		})
		return
	}

	session.ingest(ctx, sample)
}

// sampleSink is implemented by sources that accept externally pushed samples.
type sampleSink interface {
	offer(ports.PositionSample)
}

// push hands a device-pushed sample into the session. Sources that accept
// pushes get the sample through their sink so the movement watch carries it
// to ingest exactly once; other sources are ingested directly.
func (session *publisherSession) push(ctx context.Context, sample ports.PositionSample) error {
	select {
	case <-session.done:
		return ports.ErrNotFound
	default:
	}
	if sink, ok := session.source.(sampleSink); ok {
		sink.offer(sample)
		return nil
	}
	return session.ingest(ctx, sample)
}

// ingest is the single write path for every sample regardless of origin:
// validate, upsert the hot store, archive, then fan out.
func (session *publisherSession) ingest(ctx context.Context, sample ports.PositionSample) error {
	service := session.service

	loc, err := geo.NewMechanicLocation(
		session.mechanicID,
		sample.Latitude, sample.Longitude,
		sample.AccuracyMeters, sample.SpeedKmh, sample.HeadingDegrees,
	)
	if err != nil {
		service.logger.Error(ctx, "position_sample_invalid", "Dropping invalid position sample", err, map[string]any{
			"mechanic_id": session.mechanicID,
		})
		return err
	}
	if !sample.TakenAt.IsZero() {
		loc.LastUpdated = sample.TakenAt.UTC()
	}

	if err := service.locRepo.Upsert(ctx, loc); err != nil {
		service.logger.Error(ctx, "location_upsert_failed", "Failed to upsert mechanic location", err, map[string]any{
			"mechanic_id": session.mechanicID,
		})
		return ports.ErrPersistenceUnavailable
	}

	service.archive(ctx, loc)
	service.fanOut(ctx, loc)
	return nil
}

// shutdown stops the loops without touching the store; Stop on the service
// performs the final offline upsert.
func (session *publisherSession) shutdown() {
	session.once.Do(func() { close(session.done) })
	if session.stopWatch != nil {
		session.stopWatch()
	}
}

// discard releases a session that lost a start race before it ever ran.
func (session *publisherSession) discard() {
	session.once.Do(func() { close(session.done) })
}

// archive writes the sample into location_history, tagged with the mechanic's
// active job when one exists. Archival is best effort; a failed insert never
// blocks the live feed.
func (service *trackingService) archive(ctx context.Context, loc *geo.MechanicLocation) {
	if service.histRepo == nil || service.uow == nil {
		return
	}

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		var bookingID *string
		if service.bookings != nil {
			active, err := service.bookings.GetActiveForMechanic(txCtx, loc.MechanicID)
			if err != nil {
				return err
			}
			if active != nil {
				bookingID = &active.ID
			}
		}

		row, err := geo.NewLocationHistory(loc, bookingID, loc.LastUpdated)
		if err != nil {
			return err
		}
		return service.histRepo.Archive(txCtx, row)
	})
	if err != nil {
		service.logger.Error(ctx, "location_archive_failed", "Failed to archive position sample", err, map[string]any{
			"mechanic_id": loc.MechanicID,
		})
	}
}

// fanOut delivers a committed location record to in-process subscribers and
// the fanout exchange. The hub sees the record first so local consumers never
// lag the bus.
func (service *trackingService) fanOut(ctx context.Context, loc *geo.MechanicLocation) {
	if service.locHub != nil {
		service.locHub.Publish(loc.Clone())
	}

	if service.pub == nil {
		return
	}

	msg := contracts.LocationUpdateMessage{
		MechanicID:     loc.MechanicID,
		Location:       contracts.GeoPoint{Lat: loc.Latitude, Lng: loc.Longitude},
		AccuracyMeters: loc.AccuracyMeters,
		SpeedKmh:       loc.SpeedKmh,
		HeadingDegrees: loc.HeadingDegrees,
		IsOnline:       loc.IsOnline,
		Timestamp:      loc.LastUpdated,
		Envelope: contracts.Envelope{
			CorrelationID: uuid.NewString(),
			Producer:      "tracking-service",
			SentAt:        time.Now().UTC(),
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		service.logger.Error(ctx, "location_encode_failed", "Failed to encode location update", err, nil)
		return
	}

	if err := service.pub.Publish(contracts.ExchangeLocationFanout, "", body); err != nil {
		service.logger.Error(ctx, "location_publish_failed", "Failed to publish location update", err, map[string]any{
			"mechanic_id": loc.MechanicID,
		})
	}
}

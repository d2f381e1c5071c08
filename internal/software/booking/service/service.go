package service

import (
	"mech-dispatch/internal/general/logger"
	"mech-dispatch/internal/hub"
	"mech-dispatch/internal/ports"
)

// bookingService is the authoritative booking store: every mutation validates
// the transition on the domain entity, persists with an optimistic version
// guard, appends an audit event, and fans the committed snapshot out to the
// in-process hub and the message bus.
type bookingService struct {
	logger    *logger.Logger
	uow       ports.UnitOfWork
	repo      ports.BookingRepository
	events    ports.BookingEventRepository
	pub       ports.FeedPublisher
	changeHub *hub.BookingHub
}

// NewBookingService creates a BookingService with the provided dependencies.
// pub may be nil in single-process setups; changeHub must not be nil.
func NewBookingService(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	repo ports.BookingRepository,
	events ports.BookingEventRepository,
	pub ports.FeedPublisher,
	changeHub *hub.BookingHub,
) ports.BookingService {
	return &bookingService{
		logger:    logger,
		uow:       uow,
		repo:      repo,
		events:    events,
		pub:       pub,
		changeHub: changeHub,
	}
}

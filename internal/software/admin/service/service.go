package service

import (
	"context"
	"time"

	"mech-dispatch/internal/general/logger"
	"mech-dispatch/internal/ports"
)

// adminService assembles the dispatch board from the hot location store and
// the booking table.
type adminService struct {
	logger   *logger.Logger
	uow      ports.UnitOfWork
	bookings ports.BookingRepository
	locRepo  ports.MechanicLocationRepository
}

func NewAdminService(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	bookings ports.BookingRepository,
	locRepo ports.MechanicLocationRepository,
) ports.AdminService {
	return &adminService{logger: logger, uow: uow, bookings: bookings, locRepo: locRepo}
}

// GetDispatchOverview returns a point-in-time snapshot: bookings grouped by
// status plus every mechanic currently publishing a position.
func (service *adminService) GetDispatchOverview(ctx context.Context) (ports.DispatchOverviewResult, error) {
	out := ports.DispatchOverviewResult{
		Timestamp:       time.Now().UTC(),
		BookingsByState: make(map[string]int),
		OnlineMechanics: []ports.OnlineMechanicRow{},
	}

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		counts, err := service.bookings.CountByStatus(txCtx)
		if err != nil {
			return err
		}
		for status, n := range counts {
			out.BookingsByState[string(status)] = n
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "overview_counts_failed", "Failed to count bookings by status", err, nil)
		return ports.DispatchOverviewResult{}, err
	}

	online, err := service.locRepo.ListOnline(ctx)
	if err != nil {
		service.logger.Error(ctx, "overview_online_failed", "Failed to list online mechanics", err, nil)
		return ports.DispatchOverviewResult{}, err
	}
	for _, loc := range online {
		out.OnlineMechanics = append(out.OnlineMechanics, ports.OnlineMechanicRow{
			MechanicID:     loc.MechanicID,
			Latitude:       loc.Latitude,
			Longitude:      loc.Longitude,
			SpeedKmh:       loc.SpeedKmh,
			HeadingDegrees: loc.HeadingDegrees,
			LastUpdated:    loc.LastUpdated,
		})
	}

	return out, nil
}

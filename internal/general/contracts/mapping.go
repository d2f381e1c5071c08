package contracts

import (
	"mech-dispatch/internal/domain/booking"
	"mech-dispatch/internal/domain/geo"
)

// ToBookingTO converts a domain booking snapshot into its wire shape.
func ToBookingTO(b *booking.Booking) *BookingTO {
	if b == nil {
		return nil
	}

	out := &BookingTO{
		ID:                 b.ID,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
		CustomerID:         b.CustomerID,
		MechanicID:         b.MechanicID,
		VehicleID:          b.VehicleID,
		ServiceID:          b.ServiceID,
		ScheduledDate:      b.ScheduledDate,
		ScheduledTime:      b.ScheduledTime,
		Status:             b.Status.String(),
		Location:           GeoPoint{Lat: b.Location.Latitude, Lng: b.Location.Longitude},
		ETAMinutes:         b.ETAMinutes,
		ETAManual:          b.ETAManual,
		CancellationReason: b.CancellationReason,
		IsPaid:             b.IsPaid,
		IsReviewed:         b.IsReviewed,
		Version:            b.Version,
	}

	out.StatusHistory = make([]StatusEntryTO, 0, len(b.StatusHistory))
	for _, e := range b.StatusHistory {
		out.StatusHistory = append(out.StatusHistory, StatusEntryTO{Status: e.Status.String(), At: e.At})
	}

	if b.Reschedule != nil {
		out.Reschedule = &RescheduleTO{
			ProposedDate: b.Reschedule.ProposedDate,
			ProposedTime: b.Reschedule.ProposedTime,
			Reason:       b.Reschedule.Reason,
			RequestedAt:  b.Reschedule.RequestedAt,
		}
	}

	return out
}

// FromBookingTO rebuilds a domain snapshot from its wire shape. Unknown
// statuses are rejected; the snapshot is read-only state, not a validated
// aggregate.
func FromBookingTO(to *BookingTO) (*booking.Booking, error) {
	if to == nil {
		return nil, nil
	}

	status, err := booking.ParseStatus(to.Status)
	if err != nil {
		return nil, err
	}

	b := &booking.Booking{
		ID:                 to.ID,
		CreatedAt:          to.CreatedAt,
		UpdatedAt:          to.UpdatedAt,
		CustomerID:         to.CustomerID,
		MechanicID:         to.MechanicID,
		VehicleID:          to.VehicleID,
		ServiceID:          to.ServiceID,
		ScheduledDate:      to.ScheduledDate,
		ScheduledTime:      to.ScheduledTime,
		Status:             status,
		Location:           geo.Point{Latitude: to.Location.Lat, Longitude: to.Location.Lng},
		ETAMinutes:         to.ETAMinutes,
		ETAManual:          to.ETAManual,
		CancellationReason: to.CancellationReason,
		IsPaid:             to.IsPaid,
		IsReviewed:         to.IsReviewed,
		Version:            to.Version,
	}

	b.StatusHistory = make([]booking.StatusEntry, 0, len(to.StatusHistory))
	for _, e := range to.StatusHistory {
		entryStatus, err := booking.ParseStatus(e.Status)
		if err != nil {
			return nil, err
		}
		b.StatusHistory = append(b.StatusHistory, booking.StatusEntry{Status: entryStatus, At: e.At})
	}

	if to.Reschedule != nil {
		b.Reschedule = &booking.RescheduleProposal{
			ProposedDate: to.Reschedule.ProposedDate,
			ProposedTime: to.Reschedule.ProposedTime,
			Reason:       to.Reschedule.Reason,
			RequestedAt:  to.Reschedule.RequestedAt,
		}
	}

	return b, nil
}

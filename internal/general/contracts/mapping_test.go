package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mech-dispatch/internal/domain/booking"
	"mech-dispatch/internal/domain/geo"
)

func TestBookingWireMapping(t *testing.T) {
	b, err := booking.NewBooking("cust-1", "veh-1", "svc-1", "2026-09-01", "14:30",
		geo.Point{Latitude: 14.5547, Longitude: 121.0244})
	require.NoError(t, err)
	b.ID = "bk-1"
	require.NoError(t, b.AcceptJob("mech-1"))
	require.NoError(t, b.SetManualETA(9))

	back, err := FromBookingTO(ToBookingTO(b))
	require.NoError(t, err)

	assert.Equal(t, b.ID, back.ID)
	assert.Equal(t, booking.StatusEnRoute, back.Status)
	assert.Equal(t, "mech-1", *back.MechanicID)
	assert.Equal(t, 9, *back.ETAMinutes)
	assert.True(t, back.ETAManual)
	assert.Equal(t, b.Location, back.Location)
	require.Len(t, back.StatusHistory, len(b.StatusHistory))
	assert.Equal(t, b.StatusHistory[0].Status, back.StatusHistory[0].Status)
}

func TestFromBookingTORejectsUnknownStatus(t *testing.T) {
	_, err := FromBookingTO(&BookingTO{ID: "bk-1", Status: "DISPATCHED"})
	assert.ErrorIs(t, err, booking.ErrInvalidStatus)

	_, err = FromBookingTO(&BookingTO{
		ID:            "bk-1",
		Status:        "UPCOMING",
		StatusHistory: []StatusEntryTO{{Status: "WARPING"}},
	})
	assert.Error(t, err)
}

func TestFromBookingTONil(t *testing.T) {
	b, err := FromBookingTO(nil)
	require.NoError(t, err)
	assert.Nil(t, b)
}

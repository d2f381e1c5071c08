package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mech-dispatch/internal/domain/geo"
)

func newTestBooking(t *testing.T) *Booking {
	t.Helper()
	b, err := NewBooking("cust-1", "veh-1", "svc-1", "2026-09-01", "14:30",
		geo.Point{Latitude: 14.5547, Longitude: 121.0244})
	require.NoError(t, err)
	return b
}

func TestNewBooking(t *testing.T) {
	t.Run("starts upcoming with one history entry", func(t *testing.T) {
		b := newTestBooking(t)
		assert.Equal(t, StatusUpcoming, b.Status)
		require.Len(t, b.StatusHistory, 1)
		assert.Equal(t, StatusUpcoming, b.StatusHistory[0].Status)
		assert.Nil(t, b.MechanicID)
		assert.Nil(t, b.ETAMinutes)
	})

	t.Run("rejects missing references", func(t *testing.T) {
		_, err := NewBooking("", "veh-1", "svc-1", "2026-09-01", "14:30", geo.Point{})
		assert.ErrorIs(t, err, ErrCustomerRequired)
		_, err = NewBooking("cust-1", "", "svc-1", "2026-09-01", "14:30", geo.Point{})
		assert.ErrorIs(t, err, ErrVehicleRequired)
		_, err = NewBooking("cust-1", "veh-1", "", "2026-09-01", "14:30", geo.Point{})
		assert.ErrorIs(t, err, ErrServiceRequired)
	})

	t.Run("rejects malformed schedule", func(t *testing.T) {
		_, err := NewBooking("cust-1", "veh-1", "svc-1", "01-09-2026", "14:30", geo.Point{})
		assert.ErrorIs(t, err, ErrBadProposedDate)
		_, err = NewBooking("cust-1", "veh-1", "svc-1", "2026-09-01", "2:30pm", geo.Point{})
		assert.ErrorIs(t, err, ErrBadProposedTime)
	})
}

func TestRequestCancel(t *testing.T) {
	t.Run("legal before dispatch", func(t *testing.T) {
		b := newTestBooking(t)
		require.NoError(t, b.RequestCancel("changed my mind"))
		assert.Equal(t, StatusCancelled, b.Status)
		require.NotNil(t, b.CancellationReason)
		assert.Equal(t, "changed my mind", *b.CancellationReason)
	})

	t.Run("blank reason is kept as empty string", func(t *testing.T) {
		b := newTestBooking(t)
		require.NoError(t, b.RequestCancel("   "))
		require.NotNil(t, b.CancellationReason)
		assert.Equal(t, "", *b.CancellationReason)
	})

	t.Run("rejected once en route", func(t *testing.T) {
		b := newTestBooking(t)
		require.NoError(t, b.AcceptJob("mech-1"))
		err := b.RequestCancel("too late")
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, StatusEnRoute, b.Status)
		assert.Nil(t, b.CancellationReason)
	})

	t.Run("rejected from terminal", func(t *testing.T) {
		b := newTestBooking(t)
		require.NoError(t, b.RequestCancel(""))
		assert.ErrorIs(t, b.RequestCancel("again"), ErrInvalidTransition)
	})
}

func TestReschedule(t *testing.T) {
	t.Run("accept adopts the proposed slot", func(t *testing.T) {
		b := newTestBooking(t)
		require.NoError(t, b.RequestReschedule("2026-09-03", "09:00", "rainy day"))
		assert.Equal(t, StatusRescheduleRequested, b.Status)
		require.NotNil(t, b.Reschedule)

		require.NoError(t, b.RespondToReschedule(true))
		assert.Equal(t, StatusConfirmed, b.Status)
		assert.Equal(t, "2026-09-03", b.ScheduledDate)
		assert.Equal(t, "09:00", b.ScheduledTime)
		assert.Nil(t, b.Reschedule)
	})

	t.Run("reject restores the prior status", func(t *testing.T) {
		b := newTestBooking(t)
		require.NoError(t, b.SetStatus(StatusConfirmed))
		require.NoError(t, b.RequestReschedule("2026-09-03", "09:00", ""))

		require.NoError(t, b.RespondToReschedule(false))
		assert.Equal(t, StatusConfirmed, b.Status)
		assert.Equal(t, "2026-09-01", b.ScheduledDate)
		assert.Equal(t, "14:30", b.ScheduledTime)
		assert.Nil(t, b.Reschedule)
	})

	t.Run("respond without pending proposal is rejected", func(t *testing.T) {
		b := newTestBooking(t)
		assert.ErrorIs(t, b.RespondToReschedule(true), ErrInvalidTransition)
	})

	t.Run("malformed proposal leaves state untouched", func(t *testing.T) {
		b := newTestBooking(t)
		assert.ErrorIs(t, b.RequestReschedule("tomorrow", "09:00", ""), ErrBadProposedDate)
		assert.Equal(t, StatusUpcoming, b.Status)
		assert.Nil(t, b.Reschedule)
	})
}

func TestAcceptJob(t *testing.T) {
	t.Run("jumps straight to en route", func(t *testing.T) {
		b := newTestBooking(t)
		require.NoError(t, b.AcceptJob("mech-1"))
		assert.Equal(t, StatusEnRoute, b.Status)
		require.NotNil(t, b.MechanicID)
		assert.Equal(t, "mech-1", *b.MechanicID)
	})

	t.Run("assignment is exclusive", func(t *testing.T) {
		b := newTestBooking(t)
		require.NoError(t, b.AcceptJob("mech-1"))
		err := b.AcceptJob("mech-2")
		assert.ErrorIs(t, err, ErrAlreadyAssigned)
		assert.Equal(t, "mech-1", *b.MechanicID)
	})

	t.Run("supersedes a pending reschedule proposal", func(t *testing.T) {
		b := newTestBooking(t)
		require.NoError(t, b.RequestReschedule("2026-09-03", "09:00", ""))
		require.NoError(t, b.AcceptJob("mech-1"))
		assert.Equal(t, StatusEnRoute, b.Status)
		assert.Nil(t, b.Reschedule)
	})

	t.Run("rejected mid-job and from terminal", func(t *testing.T) {
		b := newTestBooking(t)
		require.NoError(t, b.AcceptJob("mech-1"))
		require.NoError(t, b.SetStatus(StatusInProgress))
		b2 := b.Clone()
		b2.MechanicID = nil
		assert.ErrorIs(t, b2.AcceptJob("mech-2"), ErrInvalidTransition)

		c := newTestBooking(t)
		require.NoError(t, c.RequestCancel(""))
		assert.ErrorIs(t, c.AcceptJob("mech-1"), ErrInvalidTransition)
	})

	t.Run("requires a mechanic id", func(t *testing.T) {
		b := newTestBooking(t)
		assert.ErrorIs(t, b.AcceptJob("  "), ErrMechanicRequired)
	})
}

func TestSetStatus(t *testing.T) {
	t.Run("same status is a no-op without history growth", func(t *testing.T) {
		b := newTestBooking(t)
		require.NoError(t, b.SetStatus(StatusUpcoming))
		assert.Len(t, b.StatusHistory, 1)
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		b := newTestBooking(t)
		assert.ErrorIs(t, b.SetStatus(Status("DISPATCHED")), ErrInvalidStatus)
	})

	t.Run("terminal states admit nothing", func(t *testing.T) {
		b := newTestBooking(t)
		require.NoError(t, b.RequestCancel(""))
		assert.ErrorIs(t, b.SetStatus(StatusUpcoming), ErrInvalidTransition)
	})

	t.Run("payload states must use their dedicated operations", func(t *testing.T) {
		b := newTestBooking(t)
		assert.ErrorIs(t, b.SetStatus(StatusCancelled), ErrInvalidTransition)
		assert.ErrorIs(t, b.SetStatus(StatusRescheduleRequested), ErrInvalidTransition)
	})

	t.Run("mechanic-bearing states require a mechanic", func(t *testing.T) {
		b := newTestBooking(t)
		assert.ErrorIs(t, b.SetStatus(StatusMechanicAssigned), ErrMechanicRequired)
		assert.ErrorIs(t, b.SetStatus(StatusEnRoute), ErrMechanicRequired)
	})

	t.Run("leaving en route clears the eta", func(t *testing.T) {
		b := newTestBooking(t)
		require.NoError(t, b.AcceptJob("mech-1"))
		require.NoError(t, b.SetManualETA(12))
		require.NoError(t, b.SetStatus(StatusInProgress))
		assert.Nil(t, b.ETAMinutes)
		assert.False(t, b.ETAManual)
	})

	t.Run("history timestamps never decrease", func(t *testing.T) {
		b := newTestBooking(t)
		require.NoError(t, b.SetStatus(StatusConfirmed))
		require.NoError(t, b.AcceptJob("mech-1"))
		require.NoError(t, b.SetStatus(StatusInProgress))
		require.NoError(t, b.Complete())

		for i := 1; i < len(b.StatusHistory); i++ {
			assert.False(t, b.StatusHistory[i].At.Before(b.StatusHistory[i-1].At),
				"history entry %d is older than entry %d", i, i-1)
		}
	})
}

func TestComplete(t *testing.T) {
	b := newTestBooking(t)
	assert.ErrorIs(t, b.Complete(), ErrInvalidTransition)

	require.NoError(t, b.AcceptJob("mech-1"))
	assert.ErrorIs(t, b.Complete(), ErrInvalidTransition)

	require.NoError(t, b.SetStatus(StatusInProgress))
	require.NoError(t, b.Complete())
	assert.Equal(t, StatusCompleted, b.Status)
}

func TestETA(t *testing.T) {
	enRoute := func(t *testing.T) *Booking {
		b := newTestBooking(t)
		require.NoError(t, b.AcceptJob("mech-1"))
		return b
	}

	t.Run("only while en route", func(t *testing.T) {
		b := newTestBooking(t)
		assert.ErrorIs(t, b.SetManualETA(10), ErrETANotEnRoute)
		assert.ErrorIs(t, b.SetComputedETA(10), ErrETANotEnRoute)
	})

	t.Run("at least one minute", func(t *testing.T) {
		b := enRoute(t)
		assert.ErrorIs(t, b.SetManualETA(0), ErrETAOutOfRange)
		assert.ErrorIs(t, b.SetComputedETA(-3), ErrETAOutOfRange)
	})

	t.Run("manual wins over computed", func(t *testing.T) {
		b := enRoute(t)
		require.NoError(t, b.SetComputedETA(20))
		require.NoError(t, b.SetManualETA(8))
		err := b.SetComputedETA(25)
		assert.ErrorIs(t, err, ErrManualETASet)
		assert.Equal(t, 8, *b.ETAMinutes)
	})

	t.Run("new en route episode drops a stale manual override", func(t *testing.T) {
		b := enRoute(t)
		require.NoError(t, b.SetManualETA(8))
		require.NoError(t, b.SetStatus(StatusInProgress))
		require.NoError(t, b.SetStatus(StatusEnRoute))
		require.NoError(t, b.SetComputedETA(14))
		assert.Equal(t, 14, *b.ETAMinutes)
	})
}

func TestClone(t *testing.T) {
	b := newTestBooking(t)
	require.NoError(t, b.AcceptJob("mech-1"))
	require.NoError(t, b.SetManualETA(9))

	c := b.Clone()
	*c.MechanicID = "mech-2"
	*c.ETAMinutes = 99
	c.StatusHistory[0].Status = StatusCompleted

	assert.Equal(t, "mech-1", *b.MechanicID)
	assert.Equal(t, 9, *b.ETAMinutes)
	assert.Equal(t, StatusUpcoming, b.StatusHistory[0].Status)
}

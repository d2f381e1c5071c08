package hub

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mech-dispatch/internal/domain/booking"
	"mech-dispatch/internal/domain/geo"
)

func makeBooking(t *testing.T, customerID string) *booking.Booking {
	t.Helper()
	b, err := booking.NewBooking(customerID, "veh-1", "svc-1", "2026-09-01", "14:30",
		geo.Point{Latitude: 14.5547, Longitude: 121.0244})
	require.NoError(t, err)
	b.ID = fmt.Sprintf("bk-%s-%d", customerID, time.Now().UnixNano())
	return b
}

func TestBookingHubCommitOrderPerBooking(t *testing.T) {
	h := NewBookingHub()
	b := makeBooking(t, "cust-1")

	const n = 50
	got := make(chan booking.Status, n)
	unsub := h.SubscribeToBooking(b.ID, func(change BookingChange) {
		got <- change.Booking.Status
	})
	defer unsub()

	// alternate between two states; the subscriber must see the exact sequence
	want := make([]booking.Status, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			b.Status = booking.StatusUpcoming
		} else {
			b.Status = booking.StatusConfirmed
		}
		want = append(want, b.Status)
		h.Publish(ChangeUpdate, b)
	}

	for i := 0; i < n; i++ {
		select {
		case s := <-got:
			assert.Equal(t, want[i], s, "delivery %d out of commit order", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i)
		}
	}
}

func TestBookingHubRouting(t *testing.T) {
	h := NewBookingHub()

	mine := makeBooking(t, "cust-1")
	theirs := makeBooking(t, "cust-2")
	mech := "mech-1"
	theirs.MechanicID = &mech

	var mu sync.Mutex
	var customerSeen, mechanicSeen, allSeen []string

	unsubCust := h.SubscribeToCustomer("cust-1", func(change BookingChange) {
		mu.Lock()
		customerSeen = append(customerSeen, change.Booking.ID)
		mu.Unlock()
	})
	defer unsubCust()

	unsubMech := h.SubscribeToMechanicQueue("mech-1", func(change BookingChange) {
		mu.Lock()
		mechanicSeen = append(mechanicSeen, change.Booking.ID)
		mu.Unlock()
	})
	defer unsubMech()

	unsubAll := h.SubscribeAll(func(change BookingChange) {
		mu.Lock()
		allSeen = append(allSeen, change.Booking.ID)
		mu.Unlock()
	})
	defer unsubAll()

	h.Publish(ChangeInsert, mine)
	h.Publish(ChangeInsert, theirs)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(customerSeen) == 1 && len(mechanicSeen) == 1 && len(allSeen) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{mine.ID}, customerSeen)
	assert.Equal(t, []string{theirs.ID}, mechanicSeen)
}

func TestBookingHubSubscriberGetsSnapshot(t *testing.T) {
	h := NewBookingHub()
	b := makeBooking(t, "cust-1")

	got := make(chan *booking.Booking, 1)
	unsub := h.SubscribeToBooking(b.ID, func(change BookingChange) {
		got <- change.Booking
	})
	defer unsub()

	h.Publish(ChangeUpdate, b)

	select {
	case snapshot := <-got:
		require.NotSame(t, b, snapshot)
		// mutating the original after publish must not leak into the snapshot
		b.Status = booking.StatusCancelled
		assert.Equal(t, booking.StatusUpcoming, snapshot.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestBookingHubUnsubscribe(t *testing.T) {
	h := NewBookingHub()
	b := makeBooking(t, "cust-1")

	var mu sync.Mutex
	count := 0
	unsub := h.SubscribeToBooking(b.ID, func(BookingChange) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	h.Publish(ChangeUpdate, b)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)

	unsub()
	unsub() // idempotent

	h.Publish(ChangeUpdate, b)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

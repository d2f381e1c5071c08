package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mech-dispatch/internal/domain/geo"
)

func makeLocation(t *testing.T, mechanicID string, lat float64) geo.MechanicLocation {
	t.Helper()
	loc, err := geo.NewMechanicLocation(mechanicID, lat, 121.0244, nil, nil, nil)
	require.NoError(t, err)
	return *loc
}

func TestLocationHubLatest(t *testing.T) {
	h := NewLocationHub()

	_, ok := h.Latest("mech-1")
	assert.False(t, ok)

	h.Publish(makeLocation(t, "mech-1", 14.55))
	h.Publish(makeLocation(t, "mech-1", 14.56))

	loc, ok := h.Latest("mech-1")
	require.True(t, ok)
	assert.Equal(t, 14.56, loc.Latitude)
}

func TestLocationHubReplaysCurrentOnSubscribe(t *testing.T) {
	h := NewLocationHub()
	h.Publish(makeLocation(t, "mech-1", 14.55))

	got := make(chan geo.MechanicLocation, 1)
	unsub := h.SubscribeToMechanic("mech-1", func(loc geo.MechanicLocation) {
		got <- loc
	})
	defer unsub()

	select {
	case loc := <-got:
		assert.Equal(t, 14.55, loc.Latitude)
	case <-time.After(2 * time.Second):
		t.Fatal("expected immediate replay of the current record")
	}
}

func TestLocationHubConvergesOnNewest(t *testing.T) {
	h := NewLocationHub()

	var mu sync.Mutex
	var last geo.MechanicLocation
	delivered := 0
	unsub := h.SubscribeToMechanic("mech-1", func(loc geo.MechanicLocation) {
		// a deliberately slow subscriber; intermediate samples may be skipped
		time.Sleep(time.Millisecond)
		mu.Lock()
		last = loc
		delivered++
		mu.Unlock()
	})
	defer unsub()

	const n = 100
	for i := 0; i < n; i++ {
		h.Publish(makeLocation(t, "mech-1", 14.0+float64(i)/1000))
	}
	final := 14.0 + float64(n-1)/1000

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last.Latitude == final
	}, 2*time.Second, 5*time.Millisecond, "subscriber must converge on the newest sample")

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, delivered, n, "latest-wins mailbox never delivers more than published")
}

func TestLocationHubReplayNeverShadowsConcurrentPublish(t *testing.T) {
	// a publish racing with subscribe must win over the replayed older
	// record, whichever side takes the hub lock first
	for i := 0; i < 300; i++ {
		h := NewLocationHub()
		h.Publish(makeLocation(t, "mech-1", 14.55))

		var mu sync.Mutex
		var last geo.MechanicLocation
		start := make(chan struct{})
		published := make(chan struct{})

		go func() {
			<-start
			h.Publish(makeLocation(t, "mech-1", 14.99))
			close(published)
		}()

		close(start)
		unsub := h.SubscribeToMechanic("mech-1", func(loc geo.MechanicLocation) {
			mu.Lock()
			last = loc
			mu.Unlock()
		})
		<-published

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return last.Latitude == 14.99
		}, 2*time.Second, time.Millisecond, "iteration %d converged on the stale replay", i)
		unsub()
	}
}

func TestLocationHubIsolatesSubscribers(t *testing.T) {
	h := NewLocationHub()

	other := make(chan geo.MechanicLocation, 1)
	unsub := h.SubscribeToMechanic("mech-2", func(loc geo.MechanicLocation) {
		other <- loc
	})
	defer unsub()

	h.Publish(makeLocation(t, "mech-1", 14.55))

	select {
	case <-other:
		t.Fatal("subscriber for mech-2 must not see mech-1 samples")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocationHubSubscribeAllOnline(t *testing.T) {
	h := NewLocationHub()
	h.Publish(makeLocation(t, "mech-1", 14.55))

	offline := makeLocation(t, "mech-2", 14.60)
	offline.IsOnline = false
	h.Publish(offline)

	var mu sync.Mutex
	var latestSet []geo.MechanicLocation
	unsub := h.SubscribeAllOnline(func(online []geo.MechanicLocation) {
		mu.Lock()
		latestSet = online
		mu.Unlock()
	})
	defer unsub()

	// initial delivery carries the full current online set
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(latestSet) == 1 && latestSet[0].MechanicID == "mech-1"
	}, 2*time.Second, 10*time.Millisecond)

	// a mechanic going offline shrinks the set
	gone := makeLocation(t, "mech-1", 14.55)
	gone.IsOnline = false
	h.Publish(gone)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(latestSet) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLocationHubUnsubscribeIdempotent(t *testing.T) {
	h := NewLocationHub()

	var mu sync.Mutex
	count := 0
	unsub := h.SubscribeToMechanic("mech-1", func(geo.MechanicLocation) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	h.Publish(makeLocation(t, "mech-1", 14.55))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)

	unsub()
	unsub()

	h.Publish(makeLocation(t, "mech-1", 14.56))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

package hub

import (
	"sync"

	"mech-dispatch/internal/domain/geo"
)

// LocationFunc receives one mechanic-location snapshot.
type LocationFunc func(geo.MechanicLocation)

// OnlineSetFunc receives the full set of currently online mechanics.
type OnlineSetFunc func([]geo.MechanicLocation)

// LocationHub fans mechanic-location changes out to subscribers without
// polling. Delivery never blocks the publisher: each subscriber owns a
// latest-wins mailbox drained by its own goroutine, so a lagging subscriber
// may skip intermediate samples but always converges on the newest one
// ("at-least-latest"). Per-mechanic delivery order follows publish order.
type LocationHub struct {
	mu         sync.RWMutex
	latest     map[string]geo.MechanicLocation
	byMechanic map[string]map[int64]*locSubscriber
	global     map[int64]*onlineSubscriber
	nextID     int64
}

// NewLocationHub creates an empty hub.
func NewLocationHub() *LocationHub {
	return &LocationHub{
		latest:     make(map[string]geo.MechanicLocation),
		byMechanic: make(map[string]map[int64]*locSubscriber),
		global:     make(map[int64]*onlineSubscriber),
	}
}

// Publish records the upsert and wakes every interested subscriber. The hub
// stores and hands out clones only.
func (h *LocationHub) Publish(loc geo.MechanicLocation) {
	snapshot := loc.Clone()

	h.mu.Lock()
	h.latest[snapshot.MechanicID] = snapshot
	subs := make([]*locSubscriber, 0, len(h.byMechanic[snapshot.MechanicID]))
	for _, s := range h.byMechanic[snapshot.MechanicID] {
		subs = append(subs, s)
	}
	globals := make([]*onlineSubscriber, 0, len(h.global))
	for _, g := range h.global {
		globals = append(globals, g)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.offer(snapshot.Clone())
	}
	for _, g := range globals {
		g.poke()
	}
}

// Latest returns the current record for a mechanic, if known.
func (h *LocationHub) Latest(mechanicID string) (geo.MechanicLocation, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	loc, ok := h.latest[mechanicID]
	if !ok {
		return geo.MechanicLocation{}, false
	}
	return loc.Clone(), true
}

// SubscribeToMechanic delivers the current record immediately (if one exists)
// and then every subsequent upsert for that mechanic id. The returned
// function unsubscribes and is safe to call multiple times.
func (h *LocationHub) SubscribeToMechanic(mechanicID string, fn LocationFunc) func() {
	sub := newLocSubscriber(fn)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.byMechanic[mechanicID] == nil {
		h.byMechanic[mechanicID] = make(map[int64]*locSubscriber)
	}
	h.byMechanic[mechanicID][id] = sub
	// replay under the lock: a Publish racing with this subscribe serializes
	// after it, so its newer sample can never be overwritten by the replay
	if current, ok := h.latest[mechanicID]; ok {
		sub.offer(current.Clone())
	}
	h.mu.Unlock()

	go sub.run()

	return func() {
		sub.close()
		h.mu.Lock()
		if m := h.byMechanic[mechanicID]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(h.byMechanic, mechanicID)
			}
		}
		h.mu.Unlock()
	}
}

// SubscribeAllOnline delivers the full current online set on subscribe and
// again whenever any mechanic's online/location state changes.
func (h *LocationHub) SubscribeAllOnline(fn OnlineSetFunc) func() {
	sub := newOnlineSubscriber(h, fn)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.global[id] = sub
	h.mu.Unlock()

	go sub.run()
	sub.poke()

	return func() {
		sub.close()
		h.mu.Lock()
		delete(h.global, id)
		h.mu.Unlock()
	}
}

// onlineSnapshot lists clones of every online mechanic record.
func (h *LocationHub) onlineSnapshot() []geo.MechanicLocation {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]geo.MechanicLocation, 0, len(h.latest))
	for _, loc := range h.latest {
		if loc.IsOnline {
			out = append(out, loc.Clone())
		}
	}
	return out
}

// ----- per-mechanic subscriber -----

type locSubscriber struct {
	fn LocationFunc

	mu      sync.Mutex
	pending *geo.MechanicLocation

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newLocSubscriber(fn LocationFunc) *locSubscriber {
	return &locSubscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// offer replaces the mailbox content with the newest snapshot and wakes the
// drain goroutine without ever blocking the publisher.
func (s *locSubscriber) offer(loc geo.MechanicLocation) {
	s.mu.Lock()
	s.pending = &loc
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *locSubscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
			for {
				s.mu.Lock()
				p := s.pending
				s.pending = nil
				s.mu.Unlock()
				if p == nil {
					break
				}
				select {
				case <-s.done:
					return
				default:
				}
				s.fn(*p)
			}
		}
	}
}

func (s *locSubscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// ----- all-online subscriber -----

type onlineSubscriber struct {
	hub  *LocationHub
	fn   OnlineSetFunc
	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newOnlineSubscriber(h *LocationHub, fn OnlineSetFunc) *onlineSubscriber {
	return &onlineSubscriber{
		hub:  h,
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (s *onlineSubscriber) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *onlineSubscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
			// snapshot at delivery time: coalesced wakeups still end on
			// the newest state
			s.fn(s.hub.onlineSnapshot())
		}
	}
}

func (s *onlineSubscriber) close() {
	s.once.Do(func() { close(s.done) })
}

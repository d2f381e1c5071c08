package hub

import (
	"sync"

	"mech-dispatch/internal/domain/booking"
)

// ChangeKind mirrors the change-feed event types.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// BookingChange is one committed booking mutation. Booking is a snapshot
// owned by the receiver; for deletes it holds the last known state.
type BookingChange struct {
	Kind    ChangeKind
	Booking *booking.Booking
}

// BookingFunc receives booking changes.
type BookingFunc func(BookingChange)

// BookingHub fans committed booking mutations out to every connected view.
// Events for a single booking id are delivered in commit order; cross-booking
// ordering is not guaranteed. Publishing never blocks: each subscriber drains
// its own FIFO queue on a dedicated goroutine, so a slow consumer delays only
// itself.
type BookingHub struct {
	mu         sync.RWMutex
	byBooking  map[string]map[int64]*bookingSubscriber
	byCustomer map[string]map[int64]*bookingSubscriber
	byMechanic map[string]map[int64]*bookingSubscriber
	all        map[int64]*bookingSubscriber
	nextID     int64
}

// NewBookingHub creates an empty hub.
func NewBookingHub() *BookingHub {
	return &BookingHub{
		byBooking:  make(map[string]map[int64]*bookingSubscriber),
		byCustomer: make(map[string]map[int64]*bookingSubscriber),
		byMechanic: make(map[string]map[int64]*bookingSubscriber),
		all:        make(map[int64]*bookingSubscriber),
	}
}

// Publish routes one committed change to every matching subscriber.
func (h *BookingHub) Publish(kind ChangeKind, b *booking.Booking) {
	if b == nil {
		return
	}
	snapshot := b.Clone()
	change := BookingChange{Kind: kind, Booking: snapshot}

	h.mu.RLock()
	targets := make([]*bookingSubscriber, 0, 4)
	for _, s := range h.byBooking[snapshot.ID] {
		targets = append(targets, s)
	}
	for _, s := range h.byCustomer[snapshot.CustomerID] {
		targets = append(targets, s)
	}
	if snapshot.MechanicID != nil {
		for _, s := range h.byMechanic[*snapshot.MechanicID] {
			targets = append(targets, s)
		}
	}
	for _, s := range h.all {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		// each subscriber gets its own snapshot
		s.enqueue(BookingChange{Kind: change.Kind, Booking: snapshot.Clone()})
	}
}

// SubscribeToBooking delivers changes for one booking id, in commit order.
func (h *BookingHub) SubscribeToBooking(bookingID string, fn BookingFunc) func() {
	return h.subscribe(h.byBooking, bookingID, fn)
}

// SubscribeToCustomer delivers changes for every booking owned by a customer.
func (h *BookingHub) SubscribeToCustomer(customerID string, fn BookingFunc) func() {
	return h.subscribe(h.byCustomer, customerID, fn)
}

// SubscribeToMechanicQueue delivers changes for every booking assigned to a
// mechanic.
func (h *BookingHub) SubscribeToMechanicQueue(mechanicID string, fn BookingFunc) func() {
	return h.subscribe(h.byMechanic, mechanicID, fn)
}

// SubscribeAll delivers every change; used by the ETA engine and the admin
// board.
func (h *BookingHub) SubscribeAll(fn BookingFunc) func() {
	sub := newBookingSubscriber(fn)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.all[id] = sub
	h.mu.Unlock()

	go sub.run()

	return func() {
		sub.close()
		h.mu.Lock()
		delete(h.all, id)
		h.mu.Unlock()
	}
}

func (h *BookingHub) subscribe(index map[string]map[int64]*bookingSubscriber, key string, fn BookingFunc) func() {
	sub := newBookingSubscriber(fn)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if index[key] == nil {
		index[key] = make(map[int64]*bookingSubscriber)
	}
	index[key][id] = sub
	h.mu.Unlock()

	go sub.run()

	return func() {
		sub.close()
		h.mu.Lock()
		if m := index[key]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(index, key)
			}
		}
		h.mu.Unlock()
	}
}

// ----- subscriber -----

type bookingSubscriber struct {
	fn BookingFunc

	mu    sync.Mutex
	queue []BookingChange

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newBookingSubscriber(fn BookingFunc) *bookingSubscriber {
	return &bookingSubscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (s *bookingSubscriber) enqueue(change BookingChange) {
	s.mu.Lock()
	s.queue = append(s.queue, change)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *bookingSubscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
			for {
				s.mu.Lock()
				if len(s.queue) == 0 {
					s.mu.Unlock()
					break
				}
				change := s.queue[0]
				s.queue = s.queue[1:]
				s.mu.Unlock()

				select {
				case <-s.done:
					return
				default:
				}
				s.fn(change)
			}
		}
	}
}

func (s *bookingSubscriber) close() {
	s.once.Do(func() { close(s.done) })
}

package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"mech-dispatch/internal/domain/booking"
	"mech-dispatch/internal/domain/geo"
	"mech-dispatch/internal/domain/user"
	"mech-dispatch/internal/general/contracts"
	"mech-dispatch/internal/hub"

	"github.com/gorilla/websocket"
)

// ConnectCustomer handles customer WebSocket connections. After auth the
// customer receives every change to their bookings; while a booking is
// EN_ROUTE the assigned mechanic's position is streamed alongside.
func (gw *Gateway) ConnectCustomer(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		gw.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer conn.Close()
	defer gw.writeLocks.Delete(conn)

	customerID, ok := gw.authenticate(r, conn, user.RoleCustomer, "customer_id")
	if !ok {
		return
	}

	if err := gw.sendAuthSuccess(conn, "customer_id", customerID); err != nil {
		gw.logger.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}

	gw.logger.Info(r.Context(), "ws_connected", "Customer WebSocket connected",
		map[string]any{"customer_id": customerID})

	_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	stopPing := gw.startPingLoop(conn)
	defer stopPing()

	gw.customers.Store(customerID, conn)
	defer gw.customers.Delete(customerID)

	// track one location subscription per booking that is currently EN_ROUTE
	tracker := newEnRouteTracker(gw, conn)
	defer tracker.stopAll()

	var unsubBookings func()
	if gw.bookings != nil {
		unsubBookings = gw.bookings.SubscribeToCustomer(customerID, func(change hub.BookingChange) {
			gw.pushCustomerBookingChange(conn, change)
			tracker.observe(change)
		})
		defer unsubBookings()
	}

	// read loop: customers only send pings/closes, anything else is rejected
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				gw.logger.Error(r.Context(), "ws_unexpected_close", "Customer connection closed unexpectedly", err, map[string]any{
					"customer_id": customerID,
				})
				gw.wsWriteClose(conn, websocket.CloseInternalServerErr, "internal error")
			} else {
				gw.logger.Info(r.Context(), "ws_connection_closed", "Customer connection closed normally", map[string]any{
					"customer_id": customerID,
				})
				gw.wsWriteClose(conn, websocket.CloseNormalClosure, "bye")
			}
			break
		}

		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = gw.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"bad json"}`))
			continue
		}

		switch msg.Type {
		case "ping":
			_ = gw.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"pong"}`))
		default:
			_ = gw.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"unknown message type"}`))
		}
	}
}

// pushCustomerBookingChange translates one hub change into an outbound frame.
func (gw *Gateway) pushCustomerBookingChange(conn *websocket.Conn, change hub.BookingChange) {
	b := change.Booking
	frame := contracts.WSCustomerBookingStatus{
		Type:       "booking_status",
		BookingID:  b.ID,
		ChangeKind: string(change.Kind),
		Status:     b.Status.String(),
		ETAMinutes: b.ETAMinutes,
		Booking:    contracts.ToBookingTO(b),
		Timestamp:  time.Now().UTC(),
	}
	if b.MechanicID != nil {
		frame.MechanicID = *b.MechanicID
	}
	_ = gw.writeJSON(conn, frame)
}

// enRouteTracker maintains one mechanic-location subscription per booking
// while that booking stays EN_ROUTE. Accessed from the booking subscriber
// goroutine, the location subscriber goroutines and the connection goroutine,
// hence the mutex.
type enRouteTracker struct {
	gw   *Gateway
	conn *websocket.Conn

	mu     sync.Mutex
	unsubs map[string]func() // bookingID -> location unsubscribe
	etas   map[string]*int   // bookingID -> latest ETA for location frames
}

func newEnRouteTracker(gw *Gateway, conn *websocket.Conn) *enRouteTracker {
	return &enRouteTracker{
		gw:     gw,
		conn:   conn,
		unsubs: make(map[string]func()),
		etas:   make(map[string]*int),
	}
}

// observe keeps the location subscriptions aligned with the booking state.
func (t *enRouteTracker) observe(change hub.BookingChange) {
	b := change.Booking
	enRoute := change.Kind != hub.ChangeDelete && b.Status == booking.StatusEnRoute && b.MechanicID != nil

	t.mu.Lock()
	t.etas[b.ID] = b.ETAMinutes
	if !enRoute {
		unsub, ok := t.unsubs[b.ID]
		delete(t.unsubs, b.ID)
		delete(t.etas, b.ID)
		t.mu.Unlock()
		if ok {
			unsub()
		}
		return
	}
	if _, subscribed := t.unsubs[b.ID]; subscribed || t.gw.locations == nil {
		t.mu.Unlock()
		return
	}
	bookingID := b.ID
	mechanicID := *b.MechanicID
	t.unsubs[bookingID] = t.gw.locations.SubscribeToMechanic(mechanicID, func(loc geo.MechanicLocation) {
		t.mu.Lock()
		eta := t.etas[bookingID]
		t.mu.Unlock()

		frame := contracts.WSCustomerLocationUpdate{
			Type:       "mechanic_location",
			BookingID:  bookingID,
			MechanicID: mechanicID,
			Location:   contracts.GeoPoint{Lat: loc.Latitude, Lng: loc.Longitude},
			SpeedKmh:   loc.SpeedKmh,
			ETAMinutes: eta,
			Timestamp:  loc.LastUpdated,
		}
		_ = t.gw.writeJSON(t.conn, frame)
	})
	t.mu.Unlock()
}

func (t *enRouteTracker) stopAll() {
	t.mu.Lock()
	unsubs := make([]func(), 0, len(t.unsubs))
	for id, unsub := range t.unsubs {
		unsubs = append(unsubs, unsub)
		delete(t.unsubs, id)
	}
	t.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

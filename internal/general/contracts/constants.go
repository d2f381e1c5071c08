package contracts

// Exchanges
const (
	ExchangeBookingTopic   = "booking_topic"
	ExchangeLocationFanout = "location_fanout"
)

// Queues
const (
	QueueBookingStatus           = "booking_status"
	QueueLocationUpdatesBooking  = "location_updates_booking"
	QueueLocationUpdatesDispatch = "location_updates_dispatch"
)

// Routing patterns
const (
	RouteBookingStatusPrefix = "booking.status." // {status}
)

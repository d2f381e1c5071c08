package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"mech-dispatch/internal/domain/booking"
	"mech-dispatch/internal/general/contracts"
	"mech-dispatch/internal/general/jwt"
	"mech-dispatch/internal/ports"
)

// bookingResponse is the wire shape all mutation endpoints return.
func bookingResponse(b *booking.Booking) *contracts.BookingTO {
	return contracts.ToBookingTO(b)
}

// bookingIDFrom extracts and validates the path parameter.
func (handler *BookingHTTPHandler) bookingIDFrom(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("booking_id"))
	if id == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "booking_id is required", nil)
		return "", false
	}
	return id, true
}

// ----- GET /bookings/{booking_id} -----

func (handler *BookingHTTPHandler) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	id, ok := handler.bookingIDFrom(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithBookingID(ctx, id)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b, err := handler.svc.GetByID(ctxWithTimeout, id)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, bookingResponse(b))
}

// ----- GET /customers/{customer_id}/bookings -----

func (handler *BookingHTTPHandler) handleListByCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	customerID := strings.TrimSpace(r.PathValue("customer_id"))
	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}
	// customers may only read their own list; admins may read anyone's
	if claims.Role.IsCustomer() && customerID != claims.Subject {
		handler.httpError(ctx, w, http.StatusForbidden, "customer_id does not match token subject", errors.New("customer/token mismatch"))
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	list, err := handler.svc.ListByCustomer(ctxWithTimeout, customerID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	out := make([]*contracts.BookingTO, 0, len(list))
	for _, b := range list {
		out = append(out, bookingResponse(b))
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, out)
}

// ----- GET /mechanics/{mechanic_id}/bookings -----

func (handler *BookingHTTPHandler) handleListByMechanic(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	mechanicID := strings.TrimSpace(r.PathValue("mechanic_id"))
	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}
	if claims.Role.IsMechanic() && mechanicID != claims.Subject {
		handler.httpError(ctx, w, http.StatusForbidden, "mechanic_id does not match token subject", errors.New("mechanic/token mismatch"))
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	list, err := handler.svc.ListByMechanic(ctxWithTimeout, mechanicID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	out := make([]*contracts.BookingTO, 0, len(list))
	for _, b := range list {
		out = append(out, bookingResponse(b))
	}
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, out)
}

// ----- POST /bookings/{booking_id}/cancel -----

func (handler *BookingHTTPHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	id, ok := handler.bookingIDFrom(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithBookingID(ctx, id)

	var req struct {
		Reason string `json:"reason"`
	}
	if !handler.decodeJSONBody(ctx, w, r, &req) {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b, err := handler.svc.RequestCancel(ctxWithTimeout, id, req.Reason)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, bookingResponse(b))
}

// ----- POST /bookings/{booking_id}/reschedule -----

func (handler *BookingHTTPHandler) handleReschedule(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	id, ok := handler.bookingIDFrom(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithBookingID(ctx, id)

	var req struct {
		Date   string `json:"date"` // YYYY-MM-DD
		Time   string `json:"time"` // HH:MM
		Reason string `json:"reason"`
	}
	if !handler.decodeJSONBody(ctx, w, r, &req) {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b, err := handler.svc.RequestReschedule(ctxWithTimeout, ports.RescheduleInput{
		BookingID: id,
		Date:      strings.TrimSpace(req.Date),
		Time:      strings.TrimSpace(req.Time),
		Reason:    req.Reason,
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, bookingResponse(b))
}

// ----- POST /bookings/{booking_id}/reschedule/respond -----

func (handler *BookingHTTPHandler) handleRescheduleRespond(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	id, ok := handler.bookingIDFrom(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithBookingID(ctx, id)

	var req struct {
		Accept bool `json:"accept"`
	}
	if !handler.decodeJSONBody(ctx, w, r, &req) {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b, err := handler.svc.RespondToReschedule(ctxWithTimeout, id, req.Accept)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, bookingResponse(b))
}

// ----- POST /bookings/{booking_id}/accept -----

func (handler *BookingHTTPHandler) handleAcceptJob(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	id, ok := handler.bookingIDFrom(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithBookingID(ctx, id)

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b, err := handler.svc.AcceptJob(ctxWithTimeout, id, claims.Subject)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, bookingResponse(b))
}

// ----- POST /bookings/{booking_id}/status -----

func (handler *BookingHTTPHandler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	id, ok := handler.bookingIDFrom(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithBookingID(ctx, id)

	var req struct {
		Status string `json:"status"`
	}
	if !handler.decodeJSONBody(ctx, w, r, &req) {
		return
	}

	next, err := booking.ParseStatus(req.Status)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid status", err)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b, err := handler.svc.SetStatus(ctxWithTimeout, id, next)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, bookingResponse(b))
}

// ----- POST /bookings/{booking_id}/complete -----

func (handler *BookingHTTPHandler) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	id, ok := handler.bookingIDFrom(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithBookingID(ctx, id)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b, err := handler.svc.Complete(ctxWithTimeout, id)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, bookingResponse(b))
}

// ----- POST /bookings/{booking_id}/eta -----

func (handler *BookingHTTPHandler) handleManualETA(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	id, ok := handler.bookingIDFrom(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithBookingID(ctx, id)

	var req struct {
		Minutes int `json:"minutes"`
	}
	if !handler.decodeJSONBody(ctx, w, r, &req) {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b, err := handler.svc.SetManualETA(ctxWithTimeout, id, req.Minutes)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, bookingResponse(b))
}

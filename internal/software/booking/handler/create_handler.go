package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"mech-dispatch/internal/general/jwt"
	"mech-dispatch/internal/ports"
)

// --- Request DTO (HTTP boundary) ---

type createBookingRequest struct {
	CustomerID    string  `json:"customer_id"`
	VehicleID     string  `json:"vehicle_id"`
	ServiceID     string  `json:"service_id"`
	ScheduledDate string  `json:"scheduled_date"` // YYYY-MM-DD
	ScheduledTime string  `json:"scheduled_time"` // HH:MM
	Latitude      float64 `json:"lat"`
	Longitude     float64 `json:"lng"`
}

// ----- Handler: POST /bookings -----

func (handler *BookingHTTPHandler) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req createBookingRequest
	if !handler.decodeJSONBody(ctx, w, r, &req) {
		return
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	// fill or verify customer_id against the token subject
	sub := strings.TrimSpace(claims.Subject)
	if strings.TrimSpace(req.CustomerID) == "" {
		req.CustomerID = sub
	} else if req.CustomerID != sub {
		handler.httpError(ctx, w, http.StatusForbidden, "customer_id does not match token subject", errors.New("customer/token mismatch"))
		return
	}

	in := ports.CreateBookingInput{
		CustomerID:    strings.TrimSpace(req.CustomerID),
		VehicleID:     strings.TrimSpace(req.VehicleID),
		ServiceID:     strings.TrimSpace(req.ServiceID),
		ScheduledDate: strings.TrimSpace(req.ScheduledDate),
		ScheduledTime: strings.TrimSpace(req.ScheduledTime),
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b, err := handler.svc.Create(ctxWithTimeout, in)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}
	ctxWithTimeout = handler.logger.WithBookingID(ctxWithTimeout, b.ID)

	handler.jsonResponse(ctxWithTimeout, w, http.StatusCreated, bookingResponse(b))
}

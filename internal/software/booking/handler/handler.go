package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"mech-dispatch/internal/domain/booking"
	"mech-dispatch/internal/domain/user"
	"mech-dispatch/internal/general/jwt"
	"mech-dispatch/internal/general/logger"
	"mech-dispatch/internal/general/websocket"
	"mech-dispatch/internal/ports"

	"github.com/jackc/pgx/v5/pgconn"
)

// BookingHTTPHandler adapts HTTP requests to the BookingService.
type BookingHTTPHandler struct {
	svc     ports.BookingService
	logger  *logger.Logger
	auth    *jwt.Manager
	gateway *websocket.Gateway
}

// NewBookingHTTPHandler wires an HTTP handler around the BookingService.
func NewBookingHTTPHandler(
	svc ports.BookingService,
	logger *logger.Logger,
	auth *jwt.Manager,
	gateway *websocket.Gateway,
) *BookingHTTPHandler {
	return &BookingHTTPHandler{svc: svc, logger: logger, auth: auth, gateway: gateway}
}

// RegisterRoutes mounts booking endpoints on the provided mux.
func (handler *BookingHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /bookings",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer)(handler.handleCreateBooking),
	)
	mux.HandleFunc("GET /bookings/{booking_id}",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer, user.RoleMechanic, user.RoleAdmin)(handler.handleGetBooking),
	)
	mux.HandleFunc("GET /customers/{customer_id}/bookings",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer, user.RoleAdmin)(handler.handleListByCustomer),
	)
	mux.HandleFunc("GET /mechanics/{mechanic_id}/bookings",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleMechanic, user.RoleAdmin)(handler.handleListByMechanic),
	)
	mux.HandleFunc("POST /bookings/{booking_id}/cancel",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer, user.RoleAdmin)(handler.handleCancel),
	)
	mux.HandleFunc("POST /bookings/{booking_id}/reschedule",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer, user.RoleMechanic)(handler.handleReschedule),
	)
	mux.HandleFunc("POST /bookings/{booking_id}/reschedule/respond",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer, user.RoleMechanic)(handler.handleRescheduleRespond),
	)
	mux.HandleFunc("POST /bookings/{booking_id}/accept",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleMechanic)(handler.handleAcceptJob),
	)
	mux.HandleFunc("POST /bookings/{booking_id}/status",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleMechanic, user.RoleAdmin)(handler.handleSetStatus),
	)
	mux.HandleFunc("POST /bookings/{booking_id}/complete",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleMechanic)(handler.handleComplete),
	)
	mux.HandleFunc("POST /bookings/{booking_id}/eta",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleMechanic)(handler.handleManualETA),
	)

	// WebSocket endpoints run their own first-frame auth
	mux.HandleFunc("GET /ws/customer/{customer_id}", handler.gateway.ConnectCustomer)
	mux.HandleFunc("GET /ws/mechanic/{mechanic_id}", handler.gateway.ConnectMechanic)

	mux.HandleFunc("GET /bookings/health", handler.handleHealth)
	mux.HandleFunc("POST /tokens", handler.handleCreateToken)
}

func (handler *BookingHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// ----- token issuing (development convenience) -----

type TokenRequest struct {
	UserID string    `json:"user_id"`
	Role   user.Role `json:"role"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      user.Role `json:"role"`
}

func (handler *BookingHTTPHandler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if strings.TrimSpace(req.UserID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	tokenString, claims, err := handler.auth.IssueUserToken(req.UserID, req.Role)
	if err != nil {
		handler.httpError(ctx, w, http.StatusInternalServerError, "Failed to generate token", err)
		return
	}

	handler.logger.Info(ctx, "token_generated", "JWT token generated successfully",
		map[string]any{"user_id": req.UserID, "role": req.Role.String()})

	handler.jsonResponse(ctx, w, http.StatusCreated, TokenResponse{
		Token:     tokenString,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    req.UserID,
		Role:      req.Role,
	})
}

// ----- shared helpers -----

// decodeJSONBody enforces content type, bounds the body, and decodes strictly.
func (handler *BookingHTTPHandler) decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return false
		}
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return false
	}
	return true
}

// serviceError maps service/domain failures onto HTTP status codes.
func (handler *BookingHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	var pgErr *pgconn.PgError

	switch {
	case errors.Is(err, ports.ErrNotFound):
		handler.httpError(ctx, w, http.StatusNotFound, "booking not found", err)
	case errors.Is(err, booking.ErrAlreadyAssigned):
		handler.httpError(ctx, w, http.StatusConflict, "booking already has a mechanic", err)
	case errors.Is(err, ports.ErrConcurrentModification):
		handler.httpError(ctx, w, http.StatusConflict, "booking was modified concurrently, retry", err)
	case errors.Is(err, booking.ErrInvalidTransition):
		handler.httpError(ctx, w, http.StatusConflict, err.Error(), err)
	case errors.As(err, &pgErr):
		handler.httpError(ctx, w, http.StatusInternalServerError, "database error", err)
	default:
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	}
}

// jsonResponse encodes data to the response, controlling status on failure.
func (handler *BookingHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *BookingHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	} else if status == http.StatusUnsupportedMediaType {
		action = "unsupported_media_type"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *BookingHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

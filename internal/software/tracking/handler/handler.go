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

	"mech-dispatch/internal/domain/user"
	"mech-dispatch/internal/general/jwt"
	"mech-dispatch/internal/general/logger"
	"mech-dispatch/internal/general/websocket"
	"mech-dispatch/internal/ports"
)

// TrackingHTTPHandler adapts HTTP requests to the TrackingService. The
// websocket gateway carries the realtime flows; the REST endpoints exist for
// devices that cannot hold a socket open.
type TrackingHTTPHandler struct {
	svc     ports.TrackingService
	locRepo ports.MechanicLocationRepository
	logger  *logger.Logger
	auth    *jwt.Manager
	gateway *websocket.Gateway
}

func NewTrackingHTTPHandler(
	svc ports.TrackingService,
	locRepo ports.MechanicLocationRepository,
	logger *logger.Logger,
	auth *jwt.Manager,
	gateway *websocket.Gateway,
) *TrackingHTTPHandler {
	return &TrackingHTTPHandler{svc: svc, locRepo: locRepo, logger: logger, auth: auth, gateway: gateway}
}

// RegisterRoutes mounts tracking endpoints on the provided mux.
func (handler *TrackingHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /tracking/{mechanic_id}/start",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleMechanic)(handler.handleStart),
	)
	mux.HandleFunc("POST /tracking/{mechanic_id}/stop",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleMechanic)(handler.handleStop),
	)
	mux.HandleFunc("POST /tracking/{mechanic_id}/location",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleMechanic)(handler.handlePush),
	)
	mux.HandleFunc("GET /tracking/mechanics/{mechanic_id}",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleCustomer, user.RoleMechanic, user.RoleAdmin)(handler.handleLatest),
	)

	// WebSocket endpoint runs its own first-frame auth
	mux.HandleFunc("GET /ws/mechanic/{mechanic_id}", handler.gateway.ConnectMechanic)

	mux.HandleFunc("GET /tracking/health", handler.handleHealth)
}

func (handler *TrackingHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// mechanicIDFrom extracts the path parameter and enforces that mechanics only
// act on their own session.
func (handler *TrackingHTTPHandler) mechanicIDFrom(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("mechanic_id"))
	if id == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "mechanic_id is required", nil)
		return "", false
	}
	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return "", false
	}
	if claims.Role.IsMechanic() && claims.Subject != id {
		handler.httpError(ctx, w, http.StatusForbidden, "mechanic_id does not match token subject", errors.New("mechanic/token mismatch"))
		return "", false
	}
	return id, true
}

// ----- POST /tracking/{mechanic_id}/start -----

func (handler *TrackingHTTPHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	id, ok := handler.mechanicIDFrom(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ack, err := handler.svc.Start(ctxWithTimeout, id)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, ack)
}

// ----- POST /tracking/{mechanic_id}/stop -----

func (handler *TrackingHTTPHandler) handleStop(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	id, ok := handler.mechanicIDFrom(ctx, w, r)
	if !ok {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := handler.svc.Stop(ctxWithTimeout, id); err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, map[string]string{"status": "stopped"})
}

// ----- POST /tracking/{mechanic_id}/location -----

type pushLocationRequest struct {
	Latitude       float64  `json:"lat"`
	Longitude      float64  `json:"lng"`
	AccuracyMeters *float64 `json:"accuracy_meters,omitempty"`
	SpeedKmh       *float64 `json:"speed_kmh,omitempty"`
	HeadingDegrees *float64 `json:"heading_degrees,omitempty"`
	Timestamp      string   `json:"timestamp,omitempty"` // RFC3339
}

func (handler *TrackingHTTPHandler) handlePush(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	id, ok := handler.mechanicIDFrom(ctx, w, r)
	if !ok {
		return
	}

	var req pushLocationRequest
	if !handler.decodeJSONBody(ctx, w, r, &req) {
		return
	}

	sample := ports.PositionSample{
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		AccuracyMeters: req.AccuracyMeters,
		SpeedKmh:       req.SpeedKmh,
		HeadingDegrees: req.HeadingDegrees,
	}
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			handler.httpError(ctx, w, http.StatusBadRequest, "timestamp must be RFC3339", err)
			return
		}
		sample.TakenAt = ts
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := handler.svc.Push(ctxWithTimeout, id, sample); err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// ----- GET /tracking/mechanics/{mechanic_id} -----

type latestLocationResponse struct {
	MechanicID     string    `json:"mechanic_id"`
	Latitude       float64   `json:"lat"`
	Longitude      float64   `json:"lng"`
	AccuracyMeters *float64  `json:"accuracy_meters,omitempty"`
	SpeedKmh       *float64  `json:"speed_kmh,omitempty"`
	HeadingDegrees *float64  `json:"heading_degrees,omitempty"`
	IsOnline       bool      `json:"is_online"`
	LastUpdated    time.Time `json:"last_updated"`
}

func (handler *TrackingHTTPHandler) handleLatest(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	id := strings.TrimSpace(r.PathValue("mechanic_id"))
	if id == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "mechanic_id is required", nil)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	loc, err := handler.locRepo.Get(ctxWithTimeout, id)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, latestLocationResponse{
		MechanicID:     loc.MechanicID,
		Latitude:       loc.Latitude,
		Longitude:      loc.Longitude,
		AccuracyMeters: loc.AccuracyMeters,
		SpeedKmh:       loc.SpeedKmh,
		HeadingDegrees: loc.HeadingDegrees,
		IsOnline:       loc.IsOnline,
		LastUpdated:    loc.LastUpdated,
	})
}

// ----- shared helpers -----

func (handler *TrackingHTTPHandler) decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
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

func (handler *TrackingHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		handler.httpError(ctx, w, http.StatusNotFound, "no active session or location for mechanic", err)
	case errors.Is(err, ports.ErrPermissionDenied):
		handler.httpError(ctx, w, http.StatusForbidden, "location permission denied", err)
	case errors.Is(err, ports.ErrPositionTimeout):
		handler.httpError(ctx, w, http.StatusGatewayTimeout, "position request timed out", err)
	case errors.Is(err, ports.ErrPositionUnavailable):
		handler.httpError(ctx, w, http.StatusServiceUnavailable, "position source unavailable", err)
	case errors.Is(err, ports.ErrPersistenceUnavailable):
		handler.httpError(ctx, w, http.StatusServiceUnavailable, "location store unavailable", err)
	default:
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	}
}

func (handler *TrackingHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
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

func (handler *TrackingHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

func (handler *TrackingHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

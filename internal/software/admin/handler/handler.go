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

	"github.com/jackc/pgx/v5/pgconn"
)

// AdminHTTPHandler serves the dispatch monitoring endpoints.
type AdminHTTPHandler struct {
	svc     ports.AdminService
	logger  *logger.Logger
	auth    *jwt.Manager
	gateway *websocket.Gateway
}

func NewAdminHTTPHandler(
	svc ports.AdminService,
	logger *logger.Logger,
	auth *jwt.Manager,
	gateway *websocket.Gateway,
) *AdminHTTPHandler {
	return &AdminHTTPHandler{svc: svc, logger: logger, auth: auth, gateway: gateway}
}

// RegisterRoutes mounts admin endpoints on the provided mux.
func (handler *AdminHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/overview",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleAdmin)(handler.handleOverview),
	)

	// WebSocket dispatch board runs its own first-frame auth
	mux.HandleFunc("GET /ws/admin/{admin_id}", handler.gateway.ConnectAdmin)

	mux.HandleFunc("GET /admin/health", handler.handleHealth)
}

func (handler *AdminHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// ----- GET /admin/overview -----

func (handler *AdminHTTPHandler) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	overview, err := handler.svc.GetDispatchOverview(ctxWithTimeout)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, overview)
}

// ----- shared helpers -----

func (handler *AdminHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	var pgErr *pgconn.PgError

	switch {
	case errors.Is(err, ports.ErrPersistenceUnavailable):
		handler.httpError(ctx, w, http.StatusServiceUnavailable, "store unavailable", err)
	case errors.As(err, &pgErr):
		handler.httpError(ctx, w, http.StatusInternalServerError, "database error", err)
	default:
		handler.httpError(ctx, w, http.StatusInternalServerError, "failed to build overview", err)
	}
}

func (handler *AdminHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
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

func (handler *AdminHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

func (handler *AdminHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
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

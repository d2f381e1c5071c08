package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"mech-dispatch/internal/domain/user"
	"mech-dispatch/internal/general/jwt"
	"mech-dispatch/internal/general/logger"
	"mech-dispatch/internal/hub"
	"mech-dispatch/internal/ports"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second
	readIdleTimeout  = 60 * time.Second
	pingInterval     = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Gateway hosts the realtime WebSocket endpoints with JWT auth. Outbound
// frames come from the in-process hubs; inbound mechanic frames feed the
// tracking service. Services that do not host a given side leave the
// corresponding dependency nil and do not register that route.
type Gateway struct {
	logger    *logger.Logger
	jwtMgr    *jwt.Manager
	tracking  ports.TrackingService
	bookings  *hub.BookingHub
	locations *hub.LocationHub

	writeLocks sync.Map
	customers  sync.Map // customerID -> *websocket.Conn
	mechanics  sync.Map // mechanicID -> *websocket.Conn
}

// NewGateway creates a gateway. tracking, bookings and locations may each be
// nil when the hosting service does not carry that concern.
func NewGateway(logger *logger.Logger, jwtMgr *jwt.Manager, tracking ports.TrackingService, bookings *hub.BookingHub, locations *hub.LocationHub) *Gateway {
	return &Gateway{
		logger:    logger,
		jwtMgr:    jwtMgr,
		tracking:  tracking,
		bookings:  bookings,
		locations: locations,
	}
}

// authenticate performs the first-frame auth handshake and returns the
// authenticated subject id. On failure an auth_error frame has already been
// sent and the caller must close the connection.
func (gw *Gateway) authenticate(r *http.Request, conn *websocket.Conn, role user.Role, pathParam string) (string, bool) {
	conn.SetReadLimit(1 << 20) // 1 MiB
	if err := conn.SetReadDeadline(time.Now().Add(10 * time.Second)); err != nil {
		gw.logger.Error(r.Context(), "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		gw.sendAuthError(conn, "internal server error")
		return "", false
	}

	msgType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			gw.logger.Error(r.Context(), "ws_auth_timeout", "Client disconnected before authentication", err, nil)
		} else {
			gw.logger.Error(r.Context(), "ws_auth_read_failed", "Failed to read auth message", err, nil)
		}
		gw.sendAuthError(conn, "authentication timeout: please send auth message within 10 seconds")
		return "", false
	}

	if msgType != websocket.TextMessage {
		gw.logger.Error(r.Context(), "ws_auth_invalid_format", "Auth message must be text format", nil, nil)
		gw.sendAuthError(conn, "auth message must be in text format")
		return "", false
	}

	res, err := jwt.ValidateWSAuth(firstFrame, gw.jwtMgr, role)
	if err != nil {
		gw.logger.Error(r.Context(), "ws_auth_failed", "Invalid auth message or token", err, nil)
		gw.sendAuthError(conn, "authentication failed: invalid token")
		return "", false
	}

	// path param must match the subject in claims
	if id := r.PathValue(pathParam); id != "" && id != res.Claims.Subject {
		gw.logger.Error(r.Context(), "ws_auth_failed", "Subject mismatch", nil, map[string]any{
			"path_param":    id,
			"token_subject": res.Claims.Subject,
		})
		gw.sendAuthError(conn, "subject ID mismatch")
		return "", false
	}

	return res.Claims.Subject, true
}

// sendAuthError sends authentication error message to client
func (gw *Gateway) sendAuthError(conn *websocket.Conn, message string) error {
	errorMsg := map[string]any{
		"type":    "auth_error",
		"error":   message,
		"success": false,
	}
	msgBytes, err := json.Marshal(errorMsg)
	if err != nil {
		return err
	}
	return gw.wsWriteMessage(conn, websocket.TextMessage, msgBytes)
}

// sendAuthSuccess sends authentication success message to client
func (gw *Gateway) sendAuthSuccess(conn *websocket.Conn, idField, id string) error {
	successMsg := map[string]any{
		"type":      "auth_success",
		"message":   "Authentication successful",
		"success":   true,
		idField:     id,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	msgBytes, err := json.Marshal(successMsg)
	if err != nil {
		return err
	}
	return gw.wsWriteMessage(conn, websocket.TextMessage, msgBytes)
}

// startPingLoop keeps the connection alive and closes it when pings fail.
// Returns a stop function for the loop.
func (gw *Gateway) startPingLoop(conn *websocket.Conn) func() {
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	})

	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				mu := gw.lockOf(conn)
				mu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(ctrlTimeout))
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
				mu.Unlock()
				if err != nil {
					// close socket to unblock the reader; goroutine exits
					_ = conn.Close()
					return
				}
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

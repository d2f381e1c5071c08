package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"mech-dispatch/internal/domain/geo"
	"mech-dispatch/internal/domain/user"
	"mech-dispatch/internal/general/contracts"

	"github.com/gorilla/websocket"
)

// ConnectAdmin streams the dispatch board. After auth the admin receives the
// full online-mechanic set immediately and again on every change; coalesced
// updates are fine because each frame carries the whole set.
func (gw *Gateway) ConnectAdmin(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		gw.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer conn.Close()
	defer gw.writeLocks.Delete(conn)

	adminID, ok := gw.authenticate(r, conn, user.RoleAdmin, "admin_id")
	if !ok {
		return
	}

	if err := gw.sendAuthSuccess(conn, "admin_id", adminID); err != nil {
		gw.logger.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}

	gw.logger.Info(r.Context(), "ws_connected", "Admin WebSocket connected",
		map[string]any{"admin_id": adminID})

	_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	stopPing := gw.startPingLoop(conn)
	defer stopPing()

	var unsubBoard func()
	if gw.locations != nil {
		unsubBoard = gw.locations.SubscribeAllOnline(func(online []geo.MechanicLocation) {
			gw.pushDispatchBoard(conn, online)
		})
		defer unsubBoard()
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				gw.logger.Error(r.Context(), "ws_unexpected_close", "Admin connection closed unexpectedly", err, map[string]any{
					"admin_id": adminID,
				})
				gw.wsWriteClose(conn, websocket.CloseInternalServerErr, "internal error")
			} else {
				gw.logger.Info(r.Context(), "ws_connection_closed", "Admin connection closed normally", map[string]any{
					"admin_id": adminID,
				})
				gw.wsWriteClose(conn, websocket.CloseNormalClosure, "bye")
			}
			break
		}

		var msg struct {
			Type string `json:"type"`
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

func (gw *Gateway) pushDispatchBoard(conn *websocket.Conn, online []geo.MechanicLocation) {
	frame := contracts.WSAdminDispatchBoard{
		Type:      "dispatch_board",
		Mechanics: make([]contracts.BoardMechanic, 0, len(online)),
		Timestamp: time.Now().UTC(),
	}
	for _, loc := range online {
		frame.Mechanics = append(frame.Mechanics, contracts.BoardMechanic{
			MechanicID:     loc.MechanicID,
			Location:       contracts.GeoPoint{Lat: loc.Latitude, Lng: loc.Longitude},
			SpeedKmh:       loc.SpeedKmh,
			HeadingDegrees: loc.HeadingDegrees,
			LastUpdated:    loc.LastUpdated,
		})
	}
	_ = gw.writeJSON(conn, frame)
}

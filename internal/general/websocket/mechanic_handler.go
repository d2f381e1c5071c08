package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mech-dispatch/internal/domain/user"
	"mech-dispatch/internal/general/contracts"
	"mech-dispatch/internal/hub"
	"mech-dispatch/internal/ports"

	"github.com/gorilla/websocket"
)

// ConnectMechanic handles mechanic WebSocket connections. Inbound frames
// control the tracking session (tracking_start / location_update /
// tracking_stop); outbound frames carry the mechanic's job queue.
func (gw *Gateway) ConnectMechanic(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		gw.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer conn.Close()
	defer gw.writeLocks.Delete(conn)

	mechanicID, ok := gw.authenticate(r, conn, user.RoleMechanic, "mechanic_id")
	if !ok {
		return
	}

	if err := gw.sendAuthSuccess(conn, "mechanic_id", mechanicID); err != nil {
		gw.logger.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}

	gw.logger.Info(r.Context(), "ws_connected", "Mechanic WebSocket connected",
		map[string]any{"mechanic_id": mechanicID})

	_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	stopPing := gw.startPingLoop(conn)
	defer stopPing()

	gw.mechanics.Store(mechanicID, conn)
	defer gw.mechanics.Delete(mechanicID)

	// push job queue changes while connected
	if gw.bookings != nil {
		unsub := gw.bookings.SubscribeToMechanicQueue(mechanicID, func(change hub.BookingChange) {
			gw.pushMechanicJobChange(conn, change)
		})
		defer unsub()
	}

	// tracking survives short reconnects; Stop is explicit, not implied by
	// socket loss
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				gw.logger.Error(r.Context(), "ws_unexpected_close", "Mechanic connection closed unexpectedly", err, map[string]any{
					"mechanic_id": mechanicID,
				})
				gw.wsWriteClose(conn, websocket.CloseInternalServerErr, "internal error")
			} else {
				gw.logger.Info(r.Context(), "ws_connection_closed", "Mechanic connection closed normally", map[string]any{
					"mechanic_id": mechanicID,
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
		case "tracking_start":
			if err := gw.handleTrackingStart(r.Context(), conn, mechanicID); err != nil {
				gw.logger.Error(r.Context(), "tracking_start_failed", "Failed to start tracking session", err, map[string]any{
					"mechanic_id": mechanicID,
				})
			}

		case "tracking_stop":
			if err := gw.handleTrackingStop(r.Context(), conn, mechanicID); err != nil {
				gw.logger.Error(r.Context(), "tracking_stop_failed", "Failed to stop tracking session", err, map[string]any{
					"mechanic_id": mechanicID,
				})
			}

		case "location_update":
			if err := gw.handleLocationPush(r.Context(), conn, mechanicID, msg.Data); err != nil {
				gw.logger.Error(r.Context(), "location_push_failed", "Failed to ingest pushed location", err, map[string]any{
					"mechanic_id": mechanicID,
				})
			}

		default:
			_ = gw.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"unknown message type"}`))
		}
	}
}

func (gw *Gateway) pushMechanicJobChange(conn *websocket.Conn, change hub.BookingChange) {
	b := change.Booking
	frame := contracts.WSMechanicJob{
		Type:       "job_update",
		BookingID:  b.ID,
		ChangeKind: string(change.Kind),
		Status:     b.Status.String(),
		Booking:    contracts.ToBookingTO(b),
		Timestamp:  time.Now().UTC(),
	}
	_ = gw.writeJSON(conn, frame)
}

func (gw *Gateway) handleTrackingStart(ctx context.Context, conn *websocket.Conn, mechanicID string) error {
	if gw.tracking == nil {
		_ = gw.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"tracking not available"}`))
		return errors.New("tracking service not configured")
	}

	ack, err := gw.tracking.Start(ctx, mechanicID)
	if err != nil {
		_ = gw.writeJSON(conn, map[string]any{"type": "error", "error": trackingErrorText(err)})
		return err
	}

	return gw.writeJSON(conn, contracts.WSTrackingAck{
		Type:       "tracking_ack",
		SessionID:  ack.SessionID,
		MechanicID: ack.MechanicID,
		StartedAt:  ack.StartedAt,
	})
}

func (gw *Gateway) handleTrackingStop(ctx context.Context, conn *websocket.Conn, mechanicID string) error {
	if gw.tracking == nil {
		_ = gw.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"tracking not available"}`))
		return errors.New("tracking service not configured")
	}

	if err := gw.tracking.Stop(ctx, mechanicID); err != nil {
		_ = gw.writeJSON(conn, map[string]any{"type": "error", "error": trackingErrorText(err)})
		return err
	}

	_ = gw.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"tracking_stopped"}`))
	return nil
}

// handleLocationPush feeds one device-pushed sample into the tracking service.
func (gw *Gateway) handleLocationPush(ctx context.Context, conn *websocket.Conn, mechanicID string, raw json.RawMessage) error {
	if gw.tracking == nil {
		_ = gw.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"tracking not available"}`))
		return errors.New("tracking service not configured")
	}

	var in struct {
		Latitude       float64  `json:"lat"`
		Longitude      float64  `json:"lng"`
		AccuracyMeters *float64 `json:"accuracy_meters,omitempty"`
		SpeedKmh       *float64 `json:"speed_kmh,omitempty"`
		HeadingDegrees *float64 `json:"heading_degrees,omitempty"`
		Timestamp      *string  `json:"timestamp,omitempty"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		_ = gw.wsWriteMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"bad location payload"}`))
		return fmt.Errorf("decode location_update: %w", err)
	}

	sample := ports.PositionSample{
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
		AccuracyMeters: in.AccuracyMeters,
		SpeedKmh:       in.SpeedKmh,
		HeadingDegrees: in.HeadingDegrees,
		TakenAt:        time.Now().UTC(),
	}
	if in.Timestamp != nil {
		if ts, err := time.Parse(time.RFC3339, *in.Timestamp); err == nil {
			sample.TakenAt = ts.UTC()
		}
	}

	if err := gw.tracking.Push(ctx, mechanicID, sample); err != nil {
		_ = gw.writeJSON(conn, map[string]any{"type": "error", "error": trackingErrorText(err)})
		return err
	}
	return nil
}

// trackingErrorText maps well-known tracking errors to client-safe strings.
func trackingErrorText(err error) string {
	switch {
	case errors.Is(err, ports.ErrPermissionDenied):
		return "location permission denied"
	case errors.Is(err, ports.ErrPositionTimeout):
		return "position acquisition timed out"
	case errors.Is(err, ports.ErrPositionUnavailable):
		return "position unavailable"
	case errors.Is(err, ports.ErrNotFound):
		return "no active tracking session"
	default:
		return "tracking error"
	}
}

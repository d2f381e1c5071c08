package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsWriteClose sends a close control frame with the given code and reason.
func (gw *Gateway) wsWriteClose(conn *websocket.Conn, code int, reason string) {
	mu := gw.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
	gw.writeLocks.Delete(conn)
}

// wsWriteMessage sets a short write deadline and writes a message.
func (gw *Gateway) wsWriteMessage(conn *websocket.Conn, mt int, payload []byte) error {
	mu := gw.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(mt, payload)
}

// lockOf returns the writer mutex for a specific connection.
func (gw *Gateway) lockOf(conn *websocket.Conn) *sync.Mutex {
	if v, ok := gw.writeLocks.Load(conn); ok {
		if mu, ok := v.(*sync.Mutex); ok && mu != nil {
			return mu
		}
	}
	mu := &sync.Mutex{}
	actual, _ := gw.writeLocks.LoadOrStore(conn, mu)
	return actual.(*sync.Mutex)
}

// writeJSON marshals v and writes a single TextMessage to the given connection.
func (gw *Gateway) writeJSON(conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return gw.wsWriteMessage(conn, websocket.TextMessage, payload)
}

// SendToMechanic pushes one JSON frame to a connected mechanic.
func (gw *Gateway) SendToMechanic(mechanicID string, msg any) error {
	v, ok := gw.mechanics.Load(mechanicID)
	if !ok {
		return fmt.Errorf("mechanic %s not connected", mechanicID)
	}
	conn, _ := v.(*websocket.Conn)
	if conn == nil {
		return fmt.Errorf("no connection for mechanic %s", mechanicID)
	}
	return gw.writeJSON(conn, msg)
}

// SendToCustomer pushes one JSON frame to a connected customer.
func (gw *Gateway) SendToCustomer(customerID string, msg any) error {
	v, ok := gw.customers.Load(customerID)
	if !ok {
		return fmt.Errorf("customer %s not connected", customerID)
	}
	conn, _ := v.(*websocket.Conn)
	if conn == nil {
		return fmt.Errorf("no connection for customer %s", customerID)
	}
	return gw.writeJSON(conn, msg)
}

// IsMechanicConnected checks if a mechanic currently has a live socket.
func (gw *Gateway) IsMechanicConnected(mechanicID string) bool {
	v, ok := gw.mechanics.Load(mechanicID)
	return ok && v != nil
}

// Package ws implements the WebSocket Hub (C7): authenticated connections,
// room-based subscriptions, and fan-out of sensor/status/alert/health/
// analytics events with a bounded per-socket send buffer.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/Buchi-dev/puretrack/internal/auth"
	"github.com/Buchi-dev/puretrack/internal/models"
	"github.com/Buchi-dev/puretrack/internal/store"
)

const (
	roomStaff  = "role:staff"
	roomAdmin  = "role:admin"
	roomAlerts = "alerts:all"
)

func deviceRoom(deviceID string) string { return "device:" + deviceID }

// client is one connected socket and its room membership.
type client struct {
	conn   *websocket.Conn
	userID string
	role   models.Role
	rooms  map[string]bool
	send   chan []byte
	mu     sync.Mutex
}

// Hub is the WebSocket Hub (C7).
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool

	st         store.Store
	issuer     *auth.Issuer
	sendBuffer int

	pingInterval time.Duration
	pingTimeout  time.Duration
}

func NewHub(st store.Store, issuer *auth.Issuer, sendBufferHighWater int, pingInterval, pingTimeout time.Duration) *Hub {
	return &Hub{
		clients:      make(map[*client]bool),
		st:           st,
		issuer:       issuer,
		sendBuffer:   sendBufferHighWater,
		pingInterval: pingInterval,
		pingTimeout:  pingTimeout,
	}
}

// ConnectedClients reports the current socket count, used by the health
// broadcast and the /health endpoint.
func (h *Hub) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// tokenFromHandshake extracts the bearer token from the token query
// parameter, falling back to the Sec-WebSocket-Protocol header. No other
// handshake field is read.
func tokenFromHandshake(c *websocket.Conn) string {
	if tok := c.Query("token"); tok != "" {
		return tok
	}
	return c.Headers("Sec-WebSocket-Protocol")
}

// HandleConnection is the Fiber/websocket upgrade entry point. It verifies
// the bearer token, resolves role from Store (never trusting token claims),
// joins the role room(s), and runs the read loop until the client
// disconnects or is dropped as a slow consumer.
func (h *Hub) HandleConnection(c *websocket.Conn) {
	token := tokenFromHandshake(c)
	userID, err := h.issuer.Verify(token)
	if err != nil {
		h.writeError(c, models.WSErrAuth, "invalid or missing bearer token")
		c.Close()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	user, err := h.lookupUser(ctx, userID)
	cancel()
	if err != nil {
		h.writeError(c, models.WSErrAuth, "unknown user")
		c.Close()
		return
	}

	cl := &client{
		conn:   c,
		userID: userID,
		role:   user.Role,
		rooms:  make(map[string]bool),
		send:   make(chan []byte, 256),
	}
	cl.rooms[roomStaff] = true
	if user.Role == models.RoleAdmin {
		cl.rooms[roomAdmin] = true
	}

	h.mu.Lock()
	h.clients[cl] = true
	h.mu.Unlock()
	log.Printf("ws: client connected, user=%s role=%s, total=%d", userID, user.Role, h.ConnectedClients())

	defer func() {
		h.mu.Lock()
		delete(h.clients, cl)
		h.mu.Unlock()
		close(cl.send)
		c.Close()
		log.Printf("ws: client disconnected, user=%s, total=%d", userID, h.ConnectedClients())
	}()

	go h.writePump(cl)

	h.send(cl, models.NewWSMessage(models.WSConnectionStatus, map[string]any{"status": "connected", "userId": userID}))

	c.SetReadDeadline(time.Now().Add(h.pingTimeout))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(h.pingTimeout))
		return nil
	})

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			break
		}
		h.handleClientCommand(cl, raw)
	}
}

func (h *Hub) lookupUser(ctx context.Context, userID string) (*models.User, error) {
	type userLister interface {
		ListActiveStaffWithEmailNotifications(ctx context.Context) ([]*models.User, error)
	}
	ul, ok := h.st.(userLister)
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	users, err := ul.ListActiveStaffWithEmailNotifications(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID == userID {
			return u, nil
		}
	}
	return nil, auth.ErrInvalidToken
}

func (h *Hub) handleClientCommand(cl *client, raw []byte) {
	var cmd models.WSClientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		h.send(cl, models.NewWSMessage(models.WSError, models.WSErrorPayload{Message: "malformed command", Code: models.WSErrInvalidSubscribe}))
		return
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	switch cmd.Type {
	case models.WSCmdSubscribeDevices:
		for _, id := range cmd.IDs {
			cl.rooms[deviceRoom(id)] = true
		}
	case models.WSCmdUnsubscribeDevices:
		for _, id := range cmd.IDs {
			delete(cl.rooms, deviceRoom(id))
		}
	case models.WSCmdSubscribeAlerts:
		cl.rooms[roomAlerts] = true
	case models.WSCmdUnsubscribeAlerts:
		delete(cl.rooms, roomAlerts)
	default:
		h.sendLocked(cl, models.NewWSMessage(models.WSError, models.WSErrorPayload{Message: "unknown command", Code: models.WSErrInvalidSubscribe}))
	}
}

func (h *Hub) writeError(c *websocket.Conn, code models.WSErrorCode, message string) {
	msg := models.NewWSMessage(models.WSError, models.WSErrorPayload{Message: message, Code: code})
	b, _ := json.Marshal(msg)
	_ = c.WriteMessage(websocket.TextMessage, b)
}

// writePump is the sole goroutine allowed to write to a socket; fan-out
// enqueues onto cl.send instead of writing directly, so concurrent
// broadcasts never race on the connection.
func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case b, ok := <-cl.send:
			if !ok {
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) send(cl *client, msg models.WSMessage) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	h.sendLocked(cl, msg)
}

// sendLocked enqueues a message non-blocking; on overflow the slow consumer
// is dropped, never stalling fan-out to other subscribers.
func (h *Hub) sendLocked(cl *client, msg models.WSMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if h.sendBuffer > 0 && len(b) > h.sendBuffer {
		log.Printf("ws: message exceeds send-buffer high water for user %s, dropping", cl.userID)
		return
	}
	select {
	case cl.send <- b:
	default:
		log.Printf("ws: slow consumer user=%s, disconnecting", cl.userID)
		go h.disconnect(cl, models.WSErrorPayload{Message: "slow consumer", Code: "SLOW_CONSUMER"})
	}
}

func (h *Hub) disconnect(cl *client, errPayload models.WSErrorPayload) {
	h.mu.Lock()
	_, ok := h.clients[cl]
	delete(h.clients, cl)
	h.mu.Unlock()
	if !ok {
		return
	}
	b, _ := json.Marshal(models.NewWSMessage(models.WSError, errPayload))
	_ = cl.conn.WriteMessage(websocket.TextMessage, b)
	close(cl.send)
	cl.conn.Close()
}

// broadcastToRooms fans msg out to every connected client whose room set
// intersects rooms. Delivery is at-most-once; there is no replay buffer.
func (h *Hub) broadcastToRooms(msg models.WSMessage, rooms ...string) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		cl.mu.Lock()
		member := false
		for _, r := range rooms {
			if cl.rooms[r] {
				member = true
				break
			}
		}
		cl.mu.Unlock()
		if member {
			targets = append(targets, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range targets {
		h.send(cl, msg)
	}
}

func (h *Hub) PublishSensorData(r models.SensorReading) {
	h.broadcastToRooms(models.NewWSMessage(models.WSSensorData, r), deviceRoom(r.DeviceID), roomStaff)
}

func (h *Hub) NotifyDeviceStatus(d *models.Device) {
	h.broadcastToRooms(models.NewWSMessage(models.WSDeviceStatus, d), deviceRoom(d.DeviceID), roomStaff)
}

// NotifyDeviceHeartbeat fans out a raw liveness ping, distinct from
// device:status: it fires on every presence signal, not only on a state
// transition.
func (h *Hub) NotifyDeviceHeartbeat(deviceID string, at time.Time) {
	h.broadcastToRooms(models.NewWSMessage(models.WSDeviceHeartbeat, models.DeviceHeartbeat{DeviceID: deviceID, At: at}), deviceRoom(deviceID), roomStaff)
}

func (h *Hub) PublishAlertNew(a *models.Alert) {
	h.broadcastToRooms(models.NewWSMessage(models.WSAlertNew, a), roomAlerts, deviceRoom(a.DeviceID), roomStaff)
}

func (h *Hub) PublishAlertResolved(a *models.Alert) {
	h.broadcastToRooms(models.NewWSMessage(models.WSAlertResolved, a), roomAlerts, deviceRoom(a.DeviceID), roomStaff)
}

func (h *Hub) PublishSystemHealth(payload any) {
	h.broadcastToRooms(models.NewWSMessage(models.WSSystemHealth, payload), roomStaff, roomAdmin)
}

func (h *Hub) PublishAnalyticsUpdate(payload any) {
	h.broadcastToRooms(models.NewWSMessage(models.WSAnalyticsUpdate, payload), roomStaff, roomAdmin)
}

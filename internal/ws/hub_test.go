package ws

import (
	"encoding/json"
	"testing"

	"github.com/Buchi-dev/puretrack/internal/models"
)

func newTestClient() *client {
	return &client{rooms: make(map[string]bool), send: make(chan []byte, 10)}
}

func TestDeviceRoomNaming(t *testing.T) {
	if got := deviceRoom("tank-01"); got != "device:tank-01" {
		t.Fatalf("expected device:tank-01, got %q", got)
	}
}

func TestHandleClientCommandSubscribeAndUnsubscribeDevices(t *testing.T) {
	h := &Hub{clients: make(map[*client]bool)}
	cl := newTestClient()

	sub, _ := json.Marshal(models.WSClientCommand{Type: models.WSCmdSubscribeDevices, IDs: []string{"tank-01", "tank-02"}})
	h.handleClientCommand(cl, sub)

	if !cl.rooms["device:tank-01"] || !cl.rooms["device:tank-02"] {
		t.Fatalf("expected both device rooms joined, got %+v", cl.rooms)
	}

	unsub, _ := json.Marshal(models.WSClientCommand{Type: models.WSCmdUnsubscribeDevices, IDs: []string{"tank-01"}})
	h.handleClientCommand(cl, unsub)

	if cl.rooms["device:tank-01"] {
		t.Fatalf("expected tank-01 room left after unsubscribe")
	}
	if !cl.rooms["device:tank-02"] {
		t.Fatalf("expected tank-02 room to remain joined")
	}
}

func TestHandleClientCommandSubscribeAndUnsubscribeAlerts(t *testing.T) {
	h := &Hub{clients: make(map[*client]bool)}
	cl := newTestClient()

	sub, _ := json.Marshal(models.WSClientCommand{Type: models.WSCmdSubscribeAlerts})
	h.handleClientCommand(cl, sub)
	if !cl.rooms[roomAlerts] {
		t.Fatalf("expected alerts:all room joined")
	}

	unsub, _ := json.Marshal(models.WSClientCommand{Type: models.WSCmdUnsubscribeAlerts})
	h.handleClientCommand(cl, unsub)
	if cl.rooms[roomAlerts] {
		t.Fatalf("expected alerts:all room left")
	}
}

func TestHandleClientCommandMalformedJSONRepliesWithError(t *testing.T) {
	h := &Hub{clients: make(map[*client]bool)}
	cl := newTestClient()

	h.handleClientCommand(cl, []byte("not json"))

	select {
	case b := <-cl.send:
		var msg models.WSMessage
		if err := json.Unmarshal(b, &msg); err != nil {
			t.Fatalf("unmarshal sent message: %v", err)
		}
		if msg.Type != models.WSError {
			t.Fatalf("expected an error message type, got %v", msg.Type)
		}
	default:
		t.Fatalf("expected an error reply to be queued for the client")
	}
}

func TestBroadcastToRoomsTargetsOnlyMembers(t *testing.T) {
	h := &Hub{clients: make(map[*client]bool)}

	member := newTestClient()
	member.rooms[roomAlerts] = true
	nonMember := newTestClient()
	nonMember.rooms["device:tank-99"] = true

	h.clients[member] = true
	h.clients[nonMember] = true

	h.broadcastToRooms(models.NewWSMessage(models.WSAlertNew, "payload"), roomAlerts)

	select {
	case <-member.send:
	default:
		t.Fatalf("expected the room member to receive the broadcast")
	}
	select {
	case <-nonMember.send:
		t.Fatalf("expected the non-member to receive nothing")
	default:
	}
}

func TestConnectedClientsCounts(t *testing.T) {
	h := &Hub{clients: make(map[*client]bool)}
	if h.ConnectedClients() != 0 {
		t.Fatalf("expected 0 on an empty hub")
	}
	h.clients[newTestClient()] = true
	h.clients[newTestClient()] = true
	if h.ConnectedClients() != 2 {
		t.Fatalf("expected 2 connected clients, got %d", h.ConnectedClients())
	}
}

func TestSendLockedDropsOversizedMessage(t *testing.T) {
	h := &Hub{clients: make(map[*client]bool), sendBuffer: 10}
	cl := newTestClient()

	h.sendLocked(cl, models.NewWSMessage(models.WSSensorData, map[string]string{"padding": "this payload is deliberately long enough to exceed the high water mark"}))

	select {
	case <-cl.send:
		t.Fatalf("expected an oversized message to be dropped, not queued")
	default:
	}
}

package mqttio

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Buchi-dev/puretrack/internal/models"
)

// ErrNotConnected is returned by Dispatcher when the broker link is down.
// The Dispatcher fails fast; it never queues.
type ErrNotConnected struct{}

func (ErrNotConnected) Error() string { return "mqtt: not connected" }

// Dispatcher is the Command Dispatcher (C9): publishes outbound commands to
// devices/<id>/commands at QoS 1 and resolves on broker acknowledgement.
type Dispatcher struct {
	client *Client
	qos    byte
}

func NewDispatcher(client *Client, qos byte) *Dispatcher {
	return &Dispatcher{client: client, qos: qos}
}

func (d *Dispatcher) PublishCommand(deviceID string, cmd models.CommandWire) error {
	if !d.client.IsConnected() {
		return ErrNotConnected{}
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	token := d.client.Raw().Publish(commandTopic(deviceID), d.qos, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish command: %w", token.Error())
	}
	return nil
}

func (d *Dispatcher) SendNow(deviceID string) error {
	return d.PublishCommand(deviceID, models.CommandWire{Command: models.CommandSendNow})
}

func (d *Dispatcher) Deregister(deviceID, reason string) error {
	return d.PublishCommand(deviceID, models.CommandWire{Command: models.CommandDeregister, Reason: reason})
}

func (d *Dispatcher) Go(deviceID string) error {
	at := time.Now().UTC().Unix()
	return d.PublishCommand(deviceID, models.CommandWire{Command: models.CommandGo, At: &at})
}

// PublishWhoIsOnline broadcasts the empty who_is_online query the Presence
// Tracker uses to drive its ping-pong cycle.
func (d *Dispatcher) PublishWhoIsOnline() error {
	if !d.client.IsConnected() {
		return ErrNotConnected{}
	}
	token := d.client.Raw().Publish(topicWhoIsOnline, d.qos, false, []byte("{}"))
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish who_is_online: %w", token.Error())
	}
	return nil
}

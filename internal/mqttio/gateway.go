package mqttio

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Buchi-dev/puretrack/internal/apperr"
	"github.com/Buchi-dev/puretrack/internal/models"
	"github.com/Buchi-dev/puretrack/internal/shard"
	"github.com/Buchi-dev/puretrack/internal/store"
)

// Ingestor is the Sensor Ingestor port the Gateway hands validated frames
// to. It lives in internal/ingest; the interface here breaks the import
// cycle the same way the Store-backed DeviceLookup port breaks the
// Alert Engine / Notification Queue cycle.
type Ingestor interface {
	Ingest(ctx context.Context, r models.SensorReading) error
}

// PresenceSink is the Presence Tracker port consuming liveness signals.
type PresenceSink interface {
	HandlePresenceSignal(deviceID string, at time.Time)
}

// StatusNotifier lets the Gateway announce that registration changed the
// active device set, without depending on the WebSocket Hub package
// directly.
type StatusNotifier interface {
	NotifyDeviceStatus(d *models.Device)
}

const (
	topicDataSuffix     = "/data"
	topicRegisterSuffix = "/register"
	topicPresenceSuffix = "/presence"
	topicPresenceResp   = "presence/response"
	topicWhoIsOnline    = "who_is_online"
)

func commandTopic(deviceID string) string {
	return fmt.Sprintf("devices/%s/commands", deviceID)
}

// Gateway is the MQTT Gateway (C2): subscribes device topics, validates and
// routes payloads. Outbound commands are published by the Dispatcher.
type Gateway struct {
	client   *Client
	store    store.Store
	ingestor Ingestor
	presence PresenceSink
	notifier StatusNotifier
	slots    *shard.Slots
	qos      byte
}

func NewGateway(client *Client, st store.Store, ingestor Ingestor, presence PresenceSink, notifier StatusNotifier, slots *shard.Slots, qos byte) *Gateway {
	return &Gateway{client: client, store: st, ingestor: ingestor, presence: presence, notifier: notifier, slots: slots, qos: qos}
}

// Subscribe wires all four inbound topic patterns named in the external
// interfaces. It returns the first subscription failure without logging it;
// at startup the caller logs that error and keeps running.
func (g *Gateway) Subscribe() error {
	subs := map[string]paho.MessageHandler{
		"devices/+/data":     g.onData,
		"devices/+/register": g.onRegister,
		"devices/+/presence": g.onPresence,
		topicPresenceResp:    g.onPresenceResponse,
	}
	for topic, handler := range subs {
		token := g.client.Raw().Subscribe(topic, g.qos, handler)
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("mqtt subscribe %s: %w", topic, token.Error())
		}
		log.Printf("mqtt: subscribed to %s", topic)
	}
	return nil
}

// deviceIDFromTopic extracts position 1 (zero-indexed) of a devices/<id>/...
// topic.
func deviceIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return "", false
	}
	return parts[1], true
}

// onData is the sensor-frame handler. Per-message panics never kill the
// subscription.
func (g *Gateway) onData(_ paho.Client, msg paho.Message) {
	defer g.recoverHandler(msg)

	deviceID, ok := deviceIDFromTopic(msg.Topic())
	if !ok {
		log.Printf("mqtt: cannot extract deviceId from topic %s", msg.Topic())
		return
	}

	var wire models.SensorFrameWire
	if err := json.Unmarshal(msg.Payload(), &wire); err != nil {
		log.Printf("mqtt: malformed data payload on %s: %v, payload=%s", msg.Topic(), err, previewPayload(msg.Payload()))
		return
	}

	reading, verr := validateFrame(deviceID, wire)
	if verr != nil {
		log.Printf("mqtt: validation rejected frame for %s: %v, payload=%s", deviceID, verr, previewPayload(msg.Payload()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := g.store.GetDeviceByID(ctx, deviceID); err != nil && apperr.IsStoreKind(err, apperr.NotFound) {
		if _, regErr := g.store.UpsertDeviceOnRegistration(ctx, deviceID, models.RegisterWire{Sensors: models.DefaultSensors}); regErr != nil {
			log.Printf("mqtt: auto-registration failed for unknown device %s: %v", deviceID, regErr)
			return
		}
		log.Printf("mqtt: auto-registered unknown device %s", deviceID)
	}

	g.slots.With(deviceID, func() {
		if err := g.ingestor.Ingest(ctx, reading); err != nil {
			log.Printf("mqtt: ingest failed for %s: %v", deviceID, err)
		}
	})
}

func (g *Gateway) onRegister(_ paho.Client, msg paho.Message) {
	defer g.recoverHandler(msg)

	deviceID, ok := deviceIDFromTopic(msg.Topic())
	if !ok {
		return
	}

	var wire models.RegisterWire
	if err := json.Unmarshal(msg.Payload(), &wire); err != nil {
		log.Printf("mqtt: malformed register payload on %s: %v, payload=%s", msg.Topic(), err, previewPayload(msg.Payload()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var d *models.Device
	g.slots.With(deviceID, func() {
		dev, err := g.store.UpsertDeviceOnRegistration(ctx, deviceID, wire)
		if err != nil {
			log.Printf("mqtt: registration failed for %s: %v", deviceID, err)
			return
		}
		d = dev
	})

	if d != nil && g.notifier != nil {
		g.notifier.NotifyDeviceStatus(d)
	}
}

func (g *Gateway) onPresence(_ paho.Client, msg paho.Message) {
	defer g.recoverHandler(msg)
	deviceID, ok := deviceIDFromTopic(msg.Topic())
	if !ok {
		return
	}
	g.presence.HandlePresenceSignal(deviceID, time.Now().UTC())
}

func (g *Gateway) onPresenceResponse(_ paho.Client, msg paho.Message) {
	defer g.recoverHandler(msg)
	var wire models.PresenceResponseWire
	if err := json.Unmarshal(msg.Payload(), &wire); err != nil || wire.DeviceID == "" {
		log.Printf("mqtt: malformed presence response: payload=%s", previewPayload(msg.Payload()))
		return
	}
	g.presence.HandlePresenceSignal(wire.DeviceID, time.Now().UTC())
}

func (g *Gateway) recoverHandler(msg paho.Message) {
	if r := recover(); r != nil {
		log.Printf("mqtt: handler panic on topic %s: %v, payload=%s", msg.Topic(), r, previewPayload(msg.Payload()))
	}
}

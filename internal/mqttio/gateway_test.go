package mqttio

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Buchi-dev/puretrack/internal/models"
	"github.com/Buchi-dev/puretrack/internal/shard"
	"github.com/Buchi-dev/puretrack/internal/store"
)

// fakeMessage implements paho.Message without a live broker.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type fakeIngestor struct {
	mu    sync.Mutex
	calls []models.SensorReading
}

func (f *fakeIngestor) Ingest(ctx context.Context, r models.SensorReading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r)
	return nil
}

func (f *fakeIngestor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePresenceSink struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakePresenceSink) HandlePresenceSignal(deviceID string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, deviceID)
}

func (f *fakePresenceSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStatusNotifier struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeStatusNotifier) NotifyDeviceStatus(d *models.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func TestDeviceIDFromTopicExtractsPosition1(t *testing.T) {
	id, ok := deviceIDFromTopic("devices/tank-01/data")
	if !ok || id != "tank-01" {
		t.Fatalf("expected tank-01, got %q ok=%v", id, ok)
	}
	if _, ok := deviceIDFromTopic("who_is_online"); ok {
		t.Fatalf("expected a single-segment topic to fail extraction")
	}
}

func TestOnDataAutoRegistersUnknownDeviceThenIngests(t *testing.T) {
	mem := store.NewMemStore()
	ingestor := &fakeIngestor{}
	g := NewGateway(nil, mem, ingestor, &fakePresenceSink{}, &fakeStatusNotifier{}, shard.New(4), 1)

	payload, _ := json.Marshal(map[string]any{
		"timestamp": time.Now().UTC().Unix(),
		"pH":        7.2, "tds": 350.0, "turbidity": 2.0,
	})
	msg := &fakeMessage{topic: "devices/tank-01/data", payload: payload}

	g.onData(nil, msg)

	if ingestor.count() != 1 {
		t.Fatalf("expected exactly one ingest call for a valid frame, got %d", ingestor.count())
	}
	if _, err := mem.GetDeviceByID(context.Background(), "tank-01"); err != nil {
		t.Fatalf("expected tank-01 to be auto-registered: %v", err)
	}
}

func TestOnDataDropsMalformedPayload(t *testing.T) {
	mem := store.NewMemStore()
	ingestor := &fakeIngestor{}
	g := NewGateway(nil, mem, ingestor, &fakePresenceSink{}, &fakeStatusNotifier{}, shard.New(4), 1)

	msg := &fakeMessage{topic: "devices/tank-01/data", payload: []byte("not json")}
	g.onData(nil, msg)

	if ingestor.count() != 0 {
		t.Fatalf("expected malformed payload to be dropped before ingest, got %d calls", ingestor.count())
	}
}

func TestOnDataRecoversFromIngestorPanic(t *testing.T) {
	mem := store.NewMemStore()
	g := NewGateway(nil, mem, panicIngestor{}, &fakePresenceSink{}, &fakeStatusNotifier{}, shard.New(4), 1)

	payload, _ := json.Marshal(map[string]any{
		"timestamp": time.Now().UTC().Unix(),
		"pH":        7.2, "tds": 350.0, "turbidity": 2.0,
	})
	msg := &fakeMessage{topic: "devices/tank-01/data", payload: payload}

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("expected the handler to recover its own panic, got: %v", r)
		}
	}()
	g.onData(nil, msg)
}

type panicIngestor struct{}

func (panicIngestor) Ingest(ctx context.Context, r models.SensorReading) error {
	panic("boom")
}

func TestOnRegisterUpsertsAndNotifies(t *testing.T) {
	mem := store.NewMemStore()
	notifier := &fakeStatusNotifier{}
	g := NewGateway(nil, mem, &fakeIngestor{}, &fakePresenceSink{}, notifier, shard.New(4), 1)

	payload, _ := json.Marshal(models.RegisterWire{Name: "Tank One"})
	msg := &fakeMessage{topic: "devices/tank-01/register", payload: payload}

	g.onRegister(nil, msg)

	if notifier.calls != 1 {
		t.Fatalf("expected one device:status notification, got %d", notifier.calls)
	}
	d, err := mem.GetDeviceByID(context.Background(), "tank-01")
	if err != nil || d.Name != "Tank One" {
		t.Fatalf("expected tank-01 registered with name Tank One, got %+v err=%v", d, err)
	}
}

func TestOnPresenceForwardsDeviceIDToTracker(t *testing.T) {
	presence := &fakePresenceSink{}
	g := NewGateway(nil, store.NewMemStore(), &fakeIngestor{}, presence, &fakeStatusNotifier{}, shard.New(4), 1)

	msg := &fakeMessage{topic: "devices/tank-01/presence", payload: []byte("{}")}
	g.onPresence(nil, msg)

	if presence.count() != 1 {
		t.Fatalf("expected exactly one presence signal, got %d", presence.count())
	}
}

func TestOnPresenceResponseUsesPayloadDeviceID(t *testing.T) {
	presence := &fakePresenceSink{}
	g := NewGateway(nil, store.NewMemStore(), &fakeIngestor{}, presence, &fakeStatusNotifier{}, shard.New(4), 1)

	payload, _ := json.Marshal(models.PresenceResponseWire{DeviceID: "tank-02"})
	msg := &fakeMessage{topic: topicPresenceResp, payload: payload}
	g.onPresenceResponse(nil, msg)

	if presence.count() != 1 || presence.calls[0] != "tank-02" {
		t.Fatalf("expected presence signal for tank-02, got %+v", presence.calls)
	}
}

func TestOnPresenceResponseIgnoresMissingDeviceID(t *testing.T) {
	presence := &fakePresenceSink{}
	g := NewGateway(nil, store.NewMemStore(), &fakeIngestor{}, presence, &fakeStatusNotifier{}, shard.New(4), 1)

	msg := &fakeMessage{topic: topicPresenceResp, payload: []byte("{}")}
	g.onPresenceResponse(nil, msg)

	if presence.count() != 0 {
		t.Fatalf("expected no presence signal without a deviceId, got %d", presence.count())
	}
}

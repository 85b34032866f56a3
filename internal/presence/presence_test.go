package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Buchi-dev/puretrack/internal/models"
	"github.com/Buchi-dev/puretrack/internal/shard"
	"github.com/Buchi-dev/puretrack/internal/store"
)

type fakePoller struct {
	mu    sync.Mutex
	calls int
}

func (p *fakePoller) PublishWhoIsOnline() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return nil
}

type fakeNotifier struct {
	mu         sync.Mutex
	events     []models.DeviceStatus
	heartbeats int
}

func (n *fakeNotifier) NotifyDeviceStatus(d *models.Device) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, d.Status)
}

func (n *fakeNotifier) NotifyDeviceHeartbeat(deviceID string, at time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.heartbeats++
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func (n *fakeNotifier) heartbeatCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.heartbeats
}

func seedDevice(t *testing.T, mem *store.MemStore, id string) {
	t.Helper()
	if _, err := mem.UpsertDeviceOnRegistration(context.Background(), id, models.RegisterWire{}); err != nil {
		t.Fatalf("seed device: %v", err)
	}
}

// S3: the first presence signal moves a device Online with exactly one
// device:status emission; a repeat signal while Online emits no more.
func TestHandlePresenceSignalTransitionsOnlineOnce(t *testing.T) {
	mem := store.NewMemStore()
	seedDevice(t, mem, "tank-01")
	notifier := &fakeNotifier{}
	tr := NewTracker(mem, &fakePoller{}, notifier, shard.New(4), time.Second, 90*time.Second)

	tr.HandlePresenceSignal("tank-01", time.Now().UTC())

	d, err := mem.GetDeviceByID(context.Background(), "tank-01")
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if d.Status != models.DeviceOnline {
		t.Fatalf("expected device Online after presence signal, got %v", d.Status)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected exactly one device:status emission, got %d", notifier.count())
	}

	// a second presence signal while already Online must not re-emit
	// device:status, but device:heartbeat fires on every signal regardless.
	tr.HandlePresenceSignal("tank-01", time.Now().UTC())
	if notifier.count() != 1 {
		t.Fatalf("expected no duplicate device:status while already Online, got %d", notifier.count())
	}
	if notifier.heartbeatCount() != 2 {
		t.Fatalf("expected a heartbeat for every presence signal, got %d", notifier.heartbeatCount())
	}
}

// S4: no presence signal for >= offline threshold demotes exactly once.
func TestSweepDemotesStaleDeviceExactlyOnce(t *testing.T) {
	mem := store.NewMemStore()
	seedDevice(t, mem, "tank-01")
	notifier := &fakeNotifier{}
	tr := NewTracker(mem, &fakePoller{}, notifier, shard.New(4), time.Second, 90*time.Second)

	tr.HandlePresenceSignal("tank-01", time.Now().UTC().Add(-100*time.Second))
	tr.sweep()

	d, _ := mem.GetDeviceByID(context.Background(), "tank-01")
	if d.Status != models.DeviceOffline {
		t.Fatalf("expected device Offline after sweep past threshold, got %v", d.Status)
	}
	if notifier.count() != 2 {
		t.Fatalf("expected two emissions total (Online then Offline), got %d", notifier.count())
	}

	// a second sweep with no state change must not re-emit
	tr.sweep()
	if notifier.count() != 2 {
		t.Fatalf("expected no duplicate emission from a second sweep, got %d", notifier.count())
	}
}

// Maintenance is sticky: a presence signal must not clobber it.
func TestMaintenanceIsStickyAgainstPresence(t *testing.T) {
	mem := store.NewMemStore()
	seedDevice(t, mem, "tank-01")
	notifier := &fakeNotifier{}
	tr := NewTracker(mem, &fakePoller{}, notifier, shard.New(4), time.Second, 90*time.Second)

	tr.HandlePresenceSignal("tank-01", time.Now().UTC())
	if err := tr.SetMaintenance("tank-01", true); err != nil {
		t.Fatalf("set maintenance: %v", err)
	}

	tr.HandlePresenceSignal("tank-01", time.Now().UTC())

	d, _ := mem.GetDeviceByID(context.Background(), "tank-01")
	if d.Status != models.DeviceMaintenance {
		t.Fatalf("expected Maintenance to survive a presence signal, got %v", d.Status)
	}
}

func TestPollPublishesWhoIsOnline(t *testing.T) {
	mem := store.NewMemStore()
	poller := &fakePoller{}
	tr := NewTracker(mem, poller, &fakeNotifier{}, shard.New(4), time.Second, 90*time.Second)

	tr.poll()

	if poller.calls != 1 {
		t.Fatalf("expected exactly one who_is_online publish, got %d", poller.calls)
	}
}

func TestStartStopIsIdempotent(t *testing.T) {
	mem := store.NewMemStore()
	tr := NewTracker(mem, &fakePoller{}, &fakeNotifier{}, shard.New(4), 10*time.Millisecond, 90*time.Second)

	tr.Start()
	tr.Start() // second Start must be a no-op, not panic or double-run
	time.Sleep(5 * time.Millisecond)
	tr.Stop()
	tr.Stop() // second Stop must be a no-op, not panic on a closed channel
}

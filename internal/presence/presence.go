// Package presence implements the per-device liveness state machine (C3):
// a server-initiated who_is_online poll, presence-signal consumption, and
// an offline sweep.
package presence

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Buchi-dev/puretrack/internal/models"
	"github.com/Buchi-dev/puretrack/internal/shard"
	"github.com/Buchi-dev/puretrack/internal/store"
)

// Poller is the outbound port used to publish the who_is_online query.
type Poller interface {
	PublishWhoIsOnline() error
}

// StatusNotifier lets the Tracker emit device:status and device:heartbeat
// without importing the WebSocket Hub package directly.
type StatusNotifier interface {
	NotifyDeviceStatus(d *models.Device)
	NotifyDeviceHeartbeat(deviceID string, at time.Time)
}

type entry struct {
	lastSeen time.Time
	status   models.DeviceStatus
}

// Tracker is the Presence Tracker (C3). Its per-device last-poll/last-seen
// index is in-memory auxiliary state, per the data-model ownership note;
// Store remains authoritative for device status.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry

	st       store.Store
	poller   Poller
	notifier StatusNotifier
	slots    *shard.Slots

	pollInterval     time.Duration
	offlineThreshold time.Duration

	lastPollAt time.Time

	started bool
	stopCh  chan struct{}
}

func NewTracker(st store.Store, poller Poller, notifier StatusNotifier, slots *shard.Slots, pollInterval, offlineThreshold time.Duration) *Tracker {
	return &Tracker{
		entries:          make(map[string]*entry),
		st:               st,
		poller:           poller,
		notifier:         notifier,
		slots:            slots,
		pollInterval:     pollInterval,
		offlineThreshold: offlineThreshold,
		stopCh:           make(chan struct{}),
	}
}

// Start launches the poll+sweep scheduler. It is idempotent on re-init: a
// second call is a no-op, per the ticker-lifetime design note.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	go t.run()
}

func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	t.mu.Unlock()
	close(t.stopCh)
}

func (t *Tracker) run() {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	t.poll()
	for {
		select {
		case <-ticker.C:
			t.poll()
			t.sweep()
		case <-t.stopCh:
			return
		}
	}
}

func (t *Tracker) poll() {
	t.mu.Lock()
	t.lastPollAt = time.Now().UTC()
	t.mu.Unlock()

	if err := t.poller.PublishWhoIsOnline(); err != nil {
		log.Printf("presence: who_is_online publish failed: %v", err)
	}
}

// HandlePresenceSignal processes any device-originated liveness message: a
// devices/<id>/presence announcement or a presence/response reply. It sets
// the device Online, updates lastSeen, and emits device:status if the
// previous state was not Online. Maintenance is sticky and is never
// clobbered here.
func (t *Tracker) HandlePresenceSignal(deviceID string, at time.Time) {
	t.slots.With(deviceID, func() {
		t.mu.Lock()
		e, ok := t.entries[deviceID]
		if !ok {
			e = &entry{status: models.DeviceOffline}
			t.entries[deviceID] = e
		}
		e.lastSeen = at
		prevStatus := e.status
		t.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := t.st.UpdateLastSeenOnly(ctx, deviceID, at); err != nil {
			log.Printf("presence: update lastSeen failed for %s: %v", deviceID, err)
		}

		if t.notifier != nil {
			t.notifier.NotifyDeviceHeartbeat(deviceID, at)
		}

		if prevStatus == models.DeviceMaintenance {
			// sticky: presence never overrides Maintenance
			return
		}
		if prevStatus == models.DeviceOnline {
			return
		}

		t.mu.Lock()
		e.status = models.DeviceOnline
		t.mu.Unlock()

		if err := t.st.UpdateDeviceStatus(ctx, deviceID, models.DeviceOnline); err != nil {
			log.Printf("presence: update status failed for %s: %v", deviceID, err)
			return
		}
		t.notifyStatus(ctx, deviceID)
	})
}

// sweep demotes devices that have not produced a presence signal within the
// offline threshold. Maintenance devices are skipped entirely.
func (t *Tracker) sweep() {
	now := time.Now().UTC()

	t.mu.Lock()
	stale := make([]string, 0)
	for deviceID, e := range t.entries {
		if e.status == models.DeviceOnline && now.Sub(e.lastSeen) >= t.offlineThreshold {
			stale = append(stale, deviceID)
		}
	}
	t.mu.Unlock()

	for _, deviceID := range stale {
		t.slots.With(deviceID, func() {
			t.mu.Lock()
			e, ok := t.entries[deviceID]
			if !ok || e.status != models.DeviceOnline || now.Sub(e.lastSeen) < t.offlineThreshold {
				t.mu.Unlock()
				return
			}
			e.status = models.DeviceOffline
			t.mu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := t.st.UpdateDeviceStatus(ctx, deviceID, models.DeviceOffline); err != nil {
				log.Printf("presence: sweep status update failed for %s: %v", deviceID, err)
				return
			}
			t.notifyStatus(ctx, deviceID)
		})
	}
}

// SetMaintenance is the only way in or out of Maintenance. It is callable
// only by the operator-action path (an external collaborator), never by the
// sweep or a presence signal.
func (t *Tracker) SetMaintenance(deviceID string, on bool) error {
	var result error
	t.slots.With(deviceID, func() {
		t.mu.Lock()
		e, ok := t.entries[deviceID]
		if !ok {
			e = &entry{}
			t.entries[deviceID] = e
		}
		if on {
			e.status = models.DeviceMaintenance
		} else {
			e.status = models.DeviceOffline
		}
		newStatus := e.status
		t.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := t.st.UpdateDeviceStatus(ctx, deviceID, newStatus); err != nil {
			result = err
			return
		}
		t.notifyStatus(ctx, deviceID)
	})
	return result
}

func (t *Tracker) notifyStatus(ctx context.Context, deviceID string) {
	if t.notifier == nil {
		return
	}
	d, err := t.st.GetDeviceByID(ctx, deviceID)
	if err != nil {
		log.Printf("presence: cannot load device %s for status notify: %v", deviceID, err)
		return
	}
	t.notifier.NotifyDeviceStatus(d)
}

package alerts

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Buchi-dev/puretrack/internal/apperr"
	"github.com/Buchi-dev/puretrack/internal/models"
	"github.com/Buchi-dev/puretrack/internal/shard"
	"github.com/Buchi-dev/puretrack/internal/store"
)

// DeviceLookup is the narrow port the Alert Engine and Notification Queue
// use to resolve device metadata, named per the design note that replaces
// the source's dynamic import with an explicit port implemented by Store.
type DeviceLookup interface {
	GetDeviceByID(ctx context.Context, deviceID string) (*models.Device, error)
}

// HubPublisher is the WebSocket Hub port for alert:new / alert:resolved.
type HubPublisher interface {
	PublishAlertNew(a *models.Alert)
	PublishAlertResolved(a *models.Alert)
}

// Notifier is the Notification Queue port the Engine enqueues emails
// through on new-alert creation only (debounced, never per occurrence).
type Notifier interface {
	EnqueueAlertEmail(ctx context.Context, a *models.Alert, d *models.Device) error
}

// Engine is the Alert Engine (C5).
type Engine struct {
	st         store.Store
	lookup     DeviceLookup
	hub        HubPublisher
	notifier   Notifier
	thresholds Thresholds
	slots      *shard.Slots
	autoResolveIdle time.Duration

	// nominalSince tracks, per (deviceId,parameter), how long a still-open
	// alert's condition has read nominal. It is engine-local bookkeeping —
	// the persisted Alert record has no such field — guarded by muNominal
	// since distinct (deviceId,parameter) slots may be evaluated
	// concurrently.
	muNominal    sync.Mutex
	nominalSince map[string]time.Time
}

func New(st store.Store, lookup DeviceLookup, hub HubPublisher, notifier Notifier, thresholds Thresholds, autoResolveIdle time.Duration) *Engine {
	return &Engine{
		st:              st,
		lookup:          lookup,
		hub:             hub,
		notifier:        notifier,
		thresholds:      thresholds,
		slots:           shard.New(64),
		autoResolveIdle: autoResolveIdle,
		nominalSince:    make(map[string]time.Time),
	}
}

func slotKey(deviceID string, param models.Parameter) string {
	return deviceID + ":" + string(param)
}

// Evaluate runs threshold evaluation for every valid parameter in the
// frame. Each (deviceId, parameter) pair is serialized through its own
// worker slot; cross-parameter evaluation for the same device may
// interleave.
func (e *Engine) Evaluate(ctx context.Context, r models.SensorReading) error {
	for _, param := range []models.Parameter{models.ParamPH, models.ParamTDS, models.ParamTurbidity} {
		value, valid := r.Value(param)
		if !valid {
			continue
		}
		e.slots.With(slotKey(r.DeviceID, param), func() {
			e.evaluateParam(ctx, r.DeviceID, param, value, r.Timestamp)
		})
	}
	return nil
}

func (e *Engine) evaluateParam(ctx context.Context, deviceID string, param models.Parameter, value float64, observedAt time.Time) {
	severity, threshold, breached := e.thresholds.Evaluate(param, value)

	existing, err := e.st.FindOpenAlert(ctx, deviceID, param)
	hasOpen := err == nil && existing != nil

	key := slotKey(deviceID, param)

	if !breached {
		if hasOpen {
			e.considerAutoResolve(ctx, existing, key, observedAt)
		}
		return
	}

	e.clearNominal(key)

	if !hasOpen {
		e.createAlert(ctx, deviceID, param, severity, value, threshold)
		return
	}

	if severity.Rank() >= existing.Severity.Rank() {
		if incErr := e.st.IncrementAlertOccurrence(ctx, existing.AlertID, value, severity); incErr != nil {
			log.Printf("alerts: increment occurrence failed for %s: %v", existing.AlertID, incErr)
		}
	}
}

func (e *Engine) clearNominal(key string) {
	e.muNominal.Lock()
	delete(e.nominalSince, key)
	e.muNominal.Unlock()
}

func (e *Engine) createAlert(ctx context.Context, deviceID string, param models.Parameter, severity models.Severity, value, threshold float64) {
	deviceName := deviceID
	var device *models.Device
	if e.lookup != nil {
		if d, err := e.lookup.GetDeviceByID(ctx, deviceID); err == nil {
			deviceName = d.Name
			device = d
		}
	}

	a := &models.Alert{
		DeviceID:     deviceID,
		DeviceName:   deviceName,
		Parameter:    param,
		Severity:     severity,
		Status:       models.AlertActive,
		CurrentValue: value,
		Threshold:    threshold,
		Message:      fmt.Sprintf("%s %s breach: value %.3f crossed threshold %.3f", deviceName, param, value, threshold),
		CreatedAt:    time.Now().UTC(),
	}

	if err := e.st.CreateAlert(ctx, a); err != nil {
		if apperr.IsStoreKind(err, apperr.Conflict) {
			// lost the race to another evaluator for this pair; fold into
			// the winner's alert instead of creating a duplicate.
			if existing, findErr := e.st.FindOpenAlert(ctx, deviceID, param); findErr == nil {
				_ = e.st.IncrementAlertOccurrence(ctx, existing.AlertID, value, severity)
			}
			return
		}
		log.Printf("alerts: create alert failed for %s/%s: %v", deviceID, param, err)
		return
	}

	if e.hub != nil {
		e.hub.PublishAlertNew(a)
	}
	if e.notifier != nil {
		if err := e.notifier.EnqueueAlertEmail(ctx, a, device); err != nil {
			log.Printf("alerts: enqueue email failed for %s: %v", a.AlertID, err)
		}
	}
}

// considerAutoResolve transitions an open alert to Resolved once the
// parameter has read nominal for at least autoResolveIdle. A zero idle
// duration disables auto-resolve entirely (operator action only).
func (e *Engine) considerAutoResolve(ctx context.Context, a *models.Alert, key string, observedAt time.Time) {
	if e.autoResolveIdle <= 0 {
		return
	}

	e.muNominal.Lock()
	since, tracked := e.nominalSince[key]
	if !tracked {
		e.nominalSince[key] = observedAt
		e.muNominal.Unlock()
		return
	}
	e.muNominal.Unlock()

	if observedAt.Sub(since) < e.autoResolveIdle {
		return
	}
	if err := e.st.TransitionAlert(ctx, a.AlertID, models.AlertResolved, "auto-resolved: nominal for idle window"); err != nil {
		log.Printf("alerts: auto-resolve failed for %s: %v", a.AlertID, err)
		return
	}
	e.clearNominal(key)

	if e.hub != nil {
		resolved := *a
		resolved.Status = models.AlertResolved
		e.hub.PublishAlertResolved(&resolved)
	}
}

// ResolveAll is the batch-resolution operation (resolveAllAlerts).
func (e *Engine) ResolveAll(ctx context.Context, filter models.AlertFilter, notes string) (int, error) {
	type resolver interface {
		ResolveAllAlerts(ctx context.Context, filter models.AlertFilter, notes string) (int, error)
	}
	r, ok := e.st.(resolver)
	if !ok {
		return 0, fmt.Errorf("store does not support batch resolution")
	}
	return r.ResolveAllAlerts(ctx, filter, notes)
}

// Package broadcast implements the two Broadcast Schedulers (C8): a health
// sampler every 10s and an analytics summary every 45s, each idempotent on
// re-init and immune to a single tick's failure killing the ticker.
package broadcast

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Buchi-dev/puretrack/internal/models"
	"github.com/Buchi-dev/puretrack/internal/store"
)

// HubPublisher is the narrow WebSocket Hub port the schedulers push to.
type HubPublisher interface {
	PublishSystemHealth(payload any)
	PublishAnalyticsUpdate(payload any)
	ConnectedClients() int
}

type componentState string

const (
	stateOK       componentState = "ok"
	stateWarning  componentState = "warning"
	stateCritical componentState = "critical"
	stateError    componentState = "error"
	stateUnknown  componentState = "unknown"
)

// HealthSampler owns the 10s system-health ticker.
type HealthSampler struct {
	mu      sync.Mutex
	started bool
	stopCh  chan struct{}

	hub      HubPublisher
	st       store.Store
	interval time.Duration
}

func NewHealthSampler(hub HubPublisher, st store.Store, interval time.Duration) *HealthSampler {
	return &HealthSampler{hub: hub, st: st, interval: interval, stopCh: make(chan struct{})}
}

func (hs *HealthSampler) Start() {
	hs.mu.Lock()
	if hs.started {
		hs.mu.Unlock()
		return
	}
	hs.started = true
	hs.mu.Unlock()
	go hs.run()
}

func (hs *HealthSampler) Stop() {
	hs.mu.Lock()
	if !hs.started {
		hs.mu.Unlock()
		return
	}
	hs.started = false
	hs.mu.Unlock()
	close(hs.stopCh)
}

func (hs *HealthSampler) run() {
	ticker := time.NewTicker(hs.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			hs.tick()
		case <-hs.stopCh:
			return
		}
	}
}

// tick catches all failures internally so a transient sampling error never
// kills the ticker.
func (hs *HealthSampler) tick() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("broadcast: health tick panic recovered: %v", r)
		}
	}()

	doc := sampleHealth(hs.st)
	doc.ConnectedWS = hs.hub.ConnectedClients()
	hs.hub.PublishSystemHealth(doc)
}

type healthDoc struct {
	Overall     componentState `json:"overall"`
	CPU         map[string]any `json:"cpu"`
	Memory      map[string]any `json:"memory"`
	Storage     map[string]any `json:"storage"`
	Database    map[string]any `json:"database"`
	ConnectedWS int            `json:"connectedWebsocketClients"`
}

func worse(a, b componentState) componentState {
	rank := map[componentState]int{stateOK: 0, stateWarning: 1, stateCritical: 2, stateError: 3, stateUnknown: 1}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// bandPercent classifies a 0-100 usage percent into the component states the
// health doc reports.
func bandPercent(pct float64) componentState {
	switch {
	case pct >= 90:
		return stateCritical
	case pct >= 75:
		return stateWarning
	default:
		return stateOK
	}
}

func sampleCPU() (componentState, map[string]any) {
	percents, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil || len(percents) == 0 {
		log.Printf("broadcast: cpu sample failed: %v", err)
		return stateError, map[string]any{"status": stateError}
	}
	cores, err := cpu.Counts(true)
	if err != nil {
		cores = 0
	}
	state := bandPercent(percents[0])
	return state, map[string]any{
		"status":  state,
		"percent": percents[0],
		"cores":   cores,
	}
}

func sampleMemory() (componentState, map[string]any) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Printf("broadcast: memory sample failed: %v", err)
		return stateError, map[string]any{"status": stateError}
	}
	state := bandPercent(vm.UsedPercent)
	return state, map[string]any{
		"status":    state,
		"usedGB":    bytesToGB(vm.Used),
		"totalGB":   bytesToGB(vm.Total),
		"percent":   vm.UsedPercent,
	}
}

func sampleStorage() (componentState, map[string]any) {
	du, err := disk.Usage("/")
	if err != nil {
		log.Printf("broadcast: storage sample failed: %v", err)
		return stateError, map[string]any{"status": stateError}
	}
	state := bandPercent(du.UsedPercent)
	return state, map[string]any{
		"status":  state,
		"usedGB":  bytesToGB(du.Used),
		"totalGB": bytesToGB(du.Total),
		"percent": du.UsedPercent,
	}
}

func bytesToGB(b uint64) float64 {
	return float64(b) / (1 << 30)
}

func sampleHealth(st store.Store) healthDoc {
	overall := stateOK

	cpuState, cpuDoc := sampleCPU()
	overall = worse(overall, cpuState)

	memState, memDoc := sampleMemory()
	overall = worse(overall, memState)

	storageState, storageDoc := sampleStorage()
	overall = worse(overall, storageState)

	dbState := stateOK
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := st.ListDevices(ctx, store.DeviceFilter{})
	responseTime := time.Since(start)
	if err != nil {
		dbState = stateError
	} else if responseTime > 2*time.Second {
		dbState = stateWarning
	}
	overall = worse(overall, dbState)

	return healthDoc{
		Overall: overall,
		CPU:     cpuDoc,
		Memory:  memDoc,
		Storage: storageDoc,
		Database: map[string]any{
			"status":       dbState,
			"responseTime": responseTime.String(),
		},
	}
}

// AnalyticsSampler owns the 45s analytics-summary ticker.
type AnalyticsSampler struct {
	mu      sync.Mutex
	started bool
	stopCh  chan struct{}

	hub      HubPublisher
	st       store.Store
	interval time.Duration
}

func NewAnalyticsSampler(hub HubPublisher, st store.Store, interval time.Duration) *AnalyticsSampler {
	return &AnalyticsSampler{hub: hub, st: st, interval: interval, stopCh: make(chan struct{})}
}

func (as *AnalyticsSampler) Start() {
	as.mu.Lock()
	if as.started {
		as.mu.Unlock()
		return
	}
	as.started = true
	as.mu.Unlock()
	go as.run()
}

func (as *AnalyticsSampler) Stop() {
	as.mu.Lock()
	if !as.started {
		as.mu.Unlock()
		return
	}
	as.started = false
	as.mu.Unlock()
	close(as.stopCh)
}

func (as *AnalyticsSampler) run() {
	ticker := time.NewTicker(as.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			as.tick()
		case <-as.stopCh:
			return
		}
	}
}

func (as *AnalyticsSampler) tick() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("broadcast: analytics tick panic recovered: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	devices, err := as.st.ListDevices(ctx, store.DeviceFilter{})
	if err != nil {
		log.Printf("broadcast: analytics device list failed: %v", err)
		return
	}
	byStatus := map[models.DeviceStatus]int{}
	for _, d := range devices {
		byStatus[d.Status]++
	}

	alerts, err := as.st.ListAlerts(ctx, models.AlertFilter{})
	if err != nil {
		log.Printf("broadcast: analytics alert list failed: %v", err)
		return
	}
	bySeverity := map[models.Severity]int{}
	byAlertStatus := map[models.AlertStatus]int{}
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	for _, a := range alerts {
		if a.CreatedAt.Before(cutoff) {
			continue
		}
		bySeverity[a.Severity]++
		byAlertStatus[a.Status]++
	}

	doc := map[string]any{
		"devicesByStatus": byStatus,
		"alertsBySeverity": bySeverity,
		"alertsByStatus":   byAlertStatus,
		"windowHours":      24,
	}
	as.hub.PublishAnalyticsUpdate(doc)
}

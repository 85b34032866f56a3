package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Buchi-dev/puretrack/internal/apperr"
	"github.com/Buchi-dev/puretrack/internal/models"
)

// MemStore is an in-memory, mutex-guarded implementation of the document
// half of Store (devices, alerts, users). The pack carries no
// document/relational driver that any sibling example wires for this shape
// (see DESIGN.md) — this keeps the exact Store contract so a real database
// can be swapped in behind the same interface later.
//
// Sensor readings are not handled here; they are appended to a separate
// TimeSeries (IoTDB-backed).
type MemStore struct {
	mu      sync.RWMutex
	devices map[string]*models.Device
	alerts  map[string]*models.Alert
	users   map[string]*models.User
}

func NewMemStore() *MemStore {
	return &MemStore{
		devices: make(map[string]*models.Device),
		alerts:  make(map[string]*models.Alert),
		users:   make(map[string]*models.User),
	}
}

// SeedUser registers a user directly, used at startup to provision the
// fixed operator account set (see DESIGN.md on the auth non-goal).
func (s *MemStore) SeedUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *MemStore) UpsertDeviceOnRegistration(_ context.Context, deviceID string, reg models.RegisterWire) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	d, exists := s.devices[deviceID]
	if !exists {
		sensors := reg.Sensors
		if len(sensors) == 0 {
			sensors = models.DefaultSensors
		}
		d = &models.Device{
			DeviceID:     deviceID,
			Name:         reg.Name,
			Type:         reg.Type,
			Sensors:      sensors,
			Status:       models.DeviceOffline,
			IsRegistered: true,
			Location:     reg.Location,
			CreatedAt:    now,
		}
		s.devices[deviceID] = d
	} else {
		if reg.Name != "" {
			d.Name = reg.Name
		}
		if reg.Type != "" {
			d.Type = reg.Type
		}
		if len(reg.Sensors) > 0 {
			d.Sensors = reg.Sensors
		}
		if reg.Location != nil {
			d.Location = reg.Location
		}
		d.IsRegistered = true
	}
	d.UpdatedAt = now
	cp := *d
	return &cp, nil
}

func (s *MemStore) UpdateDeviceStatus(_ context.Context, deviceID string, status models.DeviceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return apperr.NewStoreError(apperr.NotFound, "UpdateDeviceStatus", fmt.Errorf("device %s not found", deviceID))
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) UpdateLastSeenOnly(_ context.Context, deviceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return apperr.NewStoreError(apperr.NotFound, "UpdateLastSeenOnly", fmt.Errorf("device %s not found", deviceID))
	}
	d.LastSeen = at
	return nil
}

func (s *MemStore) GetDeviceByID(_ context.Context, deviceID string) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return nil, apperr.NewStoreError(apperr.NotFound, "GetDeviceByID", fmt.Errorf("device %s not found", deviceID))
	}
	cp := *d
	return &cp, nil
}

func (s *MemStore) ListDevices(_ context.Context, filter DeviceFilter) ([]*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Device, 0, len(s.devices))
	for _, d := range s.devices {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) FindOpenAlert(_ context.Context, deviceID string, param models.Parameter) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts {
		if a.DeviceID == deviceID && a.Parameter == param && a.Status != models.AlertResolved {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperr.NewStoreError(apperr.NotFound, "FindOpenAlert", nil)
}

// CreateAlert enforces the unique-open-alert-per-(deviceId,parameter)
// invariant. A racing caller that loses gets Conflict and should fall back
// to IncrementAlertOccurrence, per the Store's documented resolution.
func (s *MemStore) CreateAlert(_ context.Context, a *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.alerts {
		if existing.DeviceID == a.DeviceID && existing.Parameter == a.Parameter && existing.Status != models.AlertResolved {
			return apperr.NewStoreError(apperr.Conflict, "CreateAlert", fmt.Errorf("open alert already exists for %s/%s", a.DeviceID, a.Parameter))
		}
	}
	if a.AlertID == "" {
		a.AlertID = uuid.NewString()
	}
	cp := *a
	s.alerts[cp.AlertID] = &cp
	return nil
}

func (s *MemStore) IncrementAlertOccurrence(_ context.Context, alertID string, currentValue float64, severity models.Severity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok {
		return apperr.NewStoreError(apperr.NotFound, "IncrementAlertOccurrence", fmt.Errorf("alert %s not found", alertID))
	}
	a.OccurrenceCount++
	a.CurrentValue = currentValue
	if severity.Rank() > a.Severity.Rank() {
		a.Severity = severity
	}
	return nil
}

func (s *MemStore) TransitionAlert(_ context.Context, alertID string, toStatus models.AlertStatus, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok {
		return apperr.NewStoreError(apperr.NotFound, "TransitionAlert", fmt.Errorf("alert %s not found", alertID))
	}
	now := time.Now().UTC()
	switch toStatus {
	case models.AlertAcknowledged:
		a.AcknowledgedAt = &now
	case models.AlertResolved:
		a.ResolvedAt = &now
		a.ResolutionNotes = notes
	}
	a.Status = toStatus
	return nil
}

func (s *MemStore) ListAlerts(_ context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Alert, 0)
	for _, a := range s.alerts {
		if filter.Matches(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ResolveAllAlerts is the batch-resolution operation named in the spec
// (resolveAllAlerts), returning the count of alerts it actually resolved.
// It is idempotent: resolved alerts are skipped, not re-counted.
func (s *MemStore) ResolveAllAlerts(_ context.Context, filter models.AlertFilter, notes string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	count := 0
	for _, a := range s.alerts {
		if a.Status == models.AlertResolved {
			continue
		}
		if !filter.Matches(a) {
			continue
		}
		a.Status = models.AlertResolved
		a.ResolvedAt = &now
		a.ResolutionNotes = notes
		count++
	}
	return count, nil
}

func (s *MemStore) ListActiveStaffWithEmailNotifications(_ context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.User, 0)
	for _, u := range s.users {
		if (u.Role == models.RoleStaff || u.Role == models.RoleAdmin) && u.WantsEmailAlerts() {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

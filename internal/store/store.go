// Package store is the persistence port: devices, sensor readings, alerts,
// and users. Append-only for readings; upsert for devices; state
// transitions for alerts. Failures surface as *apperr.StoreError.
package store

import (
	"context"
	"time"

	"github.com/Buchi-dev/puretrack/internal/models"
)

// DeviceFilter narrows listDevices.
type DeviceFilter struct {
	Status models.DeviceStatus
}

// Store is the narrow contract every component depends on. It is
// implemented by *Composite (in-memory document store + IoTDB time series) but
// components take this interface, not the concrete type, so a future
// document-database backing can replace the in-memory half without
// touching a single caller.
type Store interface {
	UpsertDeviceOnRegistration(ctx context.Context, deviceID string, reg models.RegisterWire) (*models.Device, error)
	UpdateDeviceStatus(ctx context.Context, deviceID string, status models.DeviceStatus) error
	UpdateLastSeenOnly(ctx context.Context, deviceID string, at time.Time) error
	GetDeviceByID(ctx context.Context, deviceID string) (*models.Device, error)
	ListDevices(ctx context.Context, filter DeviceFilter) ([]*models.Device, error)

	AppendSensorReading(ctx context.Context, r models.SensorReading) error
	GetLatestReading(ctx context.Context, deviceID string) (*models.SensorReading, error)

	FindOpenAlert(ctx context.Context, deviceID string, param models.Parameter) (*models.Alert, error)
	CreateAlert(ctx context.Context, a *models.Alert) error
	IncrementAlertOccurrence(ctx context.Context, alertID string, currentValue float64, severity models.Severity) error
	TransitionAlert(ctx context.Context, alertID string, toStatus models.AlertStatus, notes string) error
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error)

	ListActiveStaffWithEmailNotifications(ctx context.Context) ([]*models.User, error)
}

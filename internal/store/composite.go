package store

import (
	"context"

	"github.com/Buchi-dev/puretrack/internal/models"
)

// Composite satisfies the Store port by delegating documents (devices,
// alerts, users) to MemStore and append-only readings to TimeSeries. It is
// the concrete type constructed at startup and wired into every component
// through the Store interface.
type Composite struct {
	*MemStore
	TS *TimeSeries
}

func NewComposite(mem *MemStore, ts *TimeSeries) *Composite {
	return &Composite{MemStore: mem, TS: ts}
}

func (c *Composite) AppendSensorReading(ctx context.Context, r models.SensorReading) error {
	return c.TS.Append(ctx, r)
}

func (c *Composite) GetLatestReading(ctx context.Context, deviceID string) (*models.SensorReading, error) {
	return c.TS.Latest(ctx, deviceID)
}

var _ Store = (*Composite)(nil)

// Close releases the time-series session. The document half is pure memory
// and needs no close step.
func (c *Composite) Close() {
	if c.TS != nil {
		c.TS.Close()
	}
}

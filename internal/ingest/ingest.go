// Package ingest implements the Sensor Ingestor (C4): persist, update
// lastSeen, then fan out to the WebSocket Hub and (validity permitting) the
// Alert Engine.
package ingest

import (
	"context"
	"log"
	"time"

	"github.com/Buchi-dev/puretrack/internal/apperr"
	"github.com/Buchi-dev/puretrack/internal/models"
	"github.com/Buchi-dev/puretrack/internal/store"
)

// AlertEvaluator is the Alert Engine port. Ingest calls it synchronously
// from its own perspective; internally the Alert Engine is non-blocking.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, r models.SensorReading) error
}

// HubPublisher is the narrow WebSocket Hub port the Ingestor fans
// sensor:data out through.
type HubPublisher interface {
	PublishSensorData(r models.SensorReading)
}

var retryDelays = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 2 * time.Second}

type Ingestor struct {
	st    store.Store
	alert AlertEvaluator
	hub   HubPublisher
}

func New(st store.Store, alert AlertEvaluator, hub HubPublisher) *Ingestor {
	return &Ingestor{st: st, alert: alert, hub: hub}
}

// Ingest writes the reading, retrying on Transient Store failures with
// bounded backoff (up to three retries after the first attempt), then updates lastSeen, fans out to the Hub
// fire-and-forget, and hands off to the Alert Engine unless any sensor in
// this frame was flagged invalid.
func (in *Ingestor) Ingest(ctx context.Context, r models.SensorReading) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = in.st.AppendSensorReading(ctx, r)
		if err == nil {
			break
		}
		if !apperr.IsStoreKind(err, apperr.StoreTransient) || attempt >= len(retryDelays) {
			break
		}
		time.Sleep(retryDelays[attempt])
	}
	if err != nil {
		if apperr.IsStoreKind(err, apperr.StoreTransient) {
			log.Printf("ingest: dropping reading for %s after retries exhausted: %v", r.DeviceID, err)
		} else {
			log.Printf("ingest: permanent store failure for %s: %v", r.DeviceID, err)
		}
		return err
	}

	if err := in.st.UpdateLastSeenOnly(ctx, r.DeviceID, r.Timestamp); err != nil {
		log.Printf("ingest: update lastSeen failed for %s: %v", r.DeviceID, err)
	}

	if in.hub != nil {
		go in.hub.PublishSensorData(r)
	}

	if r.AnyInvalid() {
		return nil
	}

	if in.alert != nil {
		if err := in.alert.Evaluate(ctx, r); err != nil {
			log.Printf("ingest: alert evaluation failed for %s: %v", r.DeviceID, err)
		}
	}
	return nil
}

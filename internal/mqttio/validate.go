package mqttio

import (
	"fmt"
	"math"
	"time"

	"github.com/Buchi-dev/puretrack/internal/models"
)

var (
	minTimestamp = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
)

// validateFrame checks the timestamp window first, then for each parameter
// present that its value is finite and within range, then reads the
// validity flags. It runs before any side effect.
func validateFrame(deviceID string, w models.SensorFrameWire) (models.SensorReading, error) {
	ts := time.Now().UTC()
	if w.Timestamp != nil && w.Timestamp.IsSet() {
		candidate := time.Unix(w.Timestamp.Seconds, 0).UTC()
		if candidate.Before(minTimestamp) || candidate.After(ts.Add(1*time.Hour)) {
			return models.SensorReading{}, fmt.Errorf("timestamp %s outside valid window", candidate)
		}
		ts = candidate
	}

	r := models.SensorReading{
		DeviceID:  deviceID,
		Timestamp: ts,
	}

	phValid, tdsValid, turbValid := true, true, true

	if w.PH != nil {
		if !isFinite(*w.PH) {
			return models.SensorReading{}, fmt.Errorf("pH is not finite")
		}
		if *w.PH < 0 || *w.PH > 14 {
			return models.SensorReading{}, fmt.Errorf("pH %.3f out of range [0,14]", *w.PH)
		}
		v := *w.PH
		r.PH = &v
		phValid = w.phValid()
	} else {
		phValid = false
	}

	if w.TDS != nil {
		if !isFinite(*w.TDS) {
			return models.SensorReading{}, fmt.Errorf("tds is not finite")
		}
		if *w.TDS < 0 || *w.TDS > 2000 {
			return models.SensorReading{}, fmt.Errorf("tds %.3f out of range [0,2000]", *w.TDS)
		}
		v := *w.TDS
		r.TDS = &v
		tdsValid = w.tdsValid()
	} else {
		tdsValid = false
	}

	if w.Turbidity != nil {
		if !isFinite(*w.Turbidity) {
			return models.SensorReading{}, fmt.Errorf("turbidity is not finite")
		}
		if *w.Turbidity < 0 || *w.Turbidity > 1000 {
			return models.SensorReading{}, fmt.Errorf("turbidity %.3f out of range [0,1000]", *w.Turbidity)
		}
		v := *w.Turbidity
		r.Turbidity = &v
		turbValid = w.turbidityValid()
	} else {
		turbValid = false
	}

	if !phValid {
		r.PH = nil
	}
	if !tdsValid {
		r.TDS = nil
	}
	if !turbValid {
		r.Turbidity = nil
	}

	r.PHValid = phValid
	r.TDSValid = tdsValid
	r.TurbidityValid = turbValid

	return r, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

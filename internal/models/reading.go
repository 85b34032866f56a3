package models

import "time"

// Parameter identifies one of the three monitored water-quality measures.
type Parameter string

const (
	ParamPH        Parameter = "pH"
	ParamTDS       Parameter = "TDS"
	ParamTurbidity Parameter = "Turbidity"
)

// SensorReading is an append-only frame keyed by (DeviceID, Timestamp). Any
// parameter whose *Valid flag is false is stored with a nil value and is not
// handed to the alert engine.
type SensorReading struct {
	DeviceID       string    `json:"deviceId"`
	Timestamp      time.Time `json:"timestamp"`
	PH             *float64  `json:"pH"`
	TDS            *float64  `json:"tds"`
	Turbidity      *float64  `json:"turbidity"`
	PHValid        bool      `json:"phValid"`
	TDSValid       bool      `json:"tdsValid"`
	TurbidityValid bool      `json:"turbidityValid"`
}

// AnyInvalid reports whether at least one declared parameter failed
// validation on this frame — the sensor ingestor withholds the whole frame
// from the alert engine when this is true.
func (r SensorReading) AnyInvalid() bool {
	return !r.PHValid || !r.TDSValid || !r.TurbidityValid
}

// Value returns the reading's value for a parameter and whether it is valid.
func (r SensorReading) Value(p Parameter) (float64, bool) {
	switch p {
	case ParamPH:
		if r.PHValid && r.PH != nil {
			return *r.PH, true
		}
	case ParamTDS:
		if r.TDSValid && r.TDS != nil {
			return *r.TDS, true
		}
	case ParamTurbidity:
		if r.TurbidityValid && r.Turbidity != nil {
			return *r.Turbidity, true
		}
	}
	return 0, false
}

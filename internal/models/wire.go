package models

import (
	"encoding/json"
	"fmt"
)

// SensorFrameWire is the JSON body of devices/<id>/data, before validation.
// Validity flags default to true when absent, per the design note on
// inbound decoding.
type SensorFrameWire struct {
	PH             *float64 `json:"pH"`
	TDS            *float64 `json:"tds"`
	Turbidity      *float64 `json:"turbidity"`
	PHValid        *bool    `json:"pH_valid"`
	TurbidityValid *bool    `json:"turbidity_valid"`
	TDSValid       *bool    `json:"tds_valid"`
	Timestamp      *Epoch   `json:"timestamp"`
	DeviceName     string   `json:"deviceName"`
}

func (w SensorFrameWire) phValid() bool {
	return w.PHValid == nil || *w.PHValid
}
func (w SensorFrameWire) tdsValid() bool {
	return w.TDSValid == nil || *w.TDSValid
}
func (w SensorFrameWire) turbidityValid() bool {
	return w.TurbidityValid == nil || *w.TurbidityValid
}

// Epoch decodes a JSON number of epoch seconds into a time-free scalar; the
// gateway converts it with time.Unix at validation time. A dedicated type
// keeps the zero value ("absent") distinguishable from zero seconds.
type Epoch struct {
	Seconds int64
	set     bool
}

func (e Epoch) IsSet() bool { return e.set }

func (e *Epoch) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("epoch: %w", err)
	}
	e.Seconds = int64(f)
	e.set = true
	return nil
}

func (e Epoch) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Seconds)
}

// RegisterWire is the JSON body of devices/<id>/register.
type RegisterWire struct {
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Sensors  []string  `json:"sensors"`
	Location *Location `json:"location"`
}

// PresenceResponseWire is the JSON body of presence/response.
type PresenceResponseWire struct {
	DeviceID string `json:"deviceId"`
}

// CommandName enumerates the outbound MQTT command vocabulary.
type CommandName string

const (
	CommandSendNow    CommandName = "send_now"
	CommandDeregister CommandName = "deregister"
	CommandGo         CommandName = "go"
)

// CommandWire is the JSON body published to devices/<id>/commands.
type CommandWire struct {
	Command CommandName `json:"command"`
	Reason  string      `json:"reason,omitempty"`
	At      *int64      `json:"at,omitempty"`
}

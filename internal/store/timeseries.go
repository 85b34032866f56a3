package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/apache/iotdb-client-go/client"

	"github.com/Buchi-dev/puretrack/internal/apperr"
	"github.com/Buchi-dev/puretrack/internal/config"
	"github.com/Buchi-dev/puretrack/internal/models"
)

// TimeSeries is the append-only SensorReading half of Store, backed by
// Apache IoTDB. Each device gets its own storage-group branch
// (root.puretrack.<deviceId>) so schema churn on one device never touches
// another's series.
type TimeSeries struct {
	session *client.Session
	cfg     config.IoTDBConfig
	enabled bool

	schemaInit map[string]bool
}

func NewTimeSeries(cfg config.IoTDBConfig) *TimeSeries {
	return &TimeSeries{cfg: cfg, schemaInit: make(map[string]bool)}
}

func (t *TimeSeries) Connect() error {
	sessCfg := &client.Config{
		Host:     t.cfg.Host,
		Port:     t.cfg.Port,
		UserName: t.cfg.Username,
		Password: t.cfg.Password,
	}
	session := client.NewSession(sessCfg)
	if err := session.Open(false, 0); err != nil {
		return fmt.Errorf("iotdb connect: %w", err)
	}
	t.session = &session
	t.enabled = true
	return nil
}

func (t *TimeSeries) Close() {
	if t.enabled && t.session != nil {
		(*t.session).Close()
	}
}

func (t *TimeSeries) IsEnabled() bool { return t.enabled }

func sanitizeDeviceID(deviceID string) string {
	out := make([]rune, 0, len(deviceID))
	for _, r := range deviceID {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

func (t *TimeSeries) storagePath(deviceID string) string {
	return fmt.Sprintf("root.puretrack.%s", sanitizeDeviceID(deviceID))
}

// ensureSchema lazily creates the storage group and the three timeseries
// for a device on first write, mirroring the one-shot init the teacher ran
// eagerly at startup, but spread across devices as each first reports.
func (t *TimeSeries) ensureSchema(path string) {
	if t.schemaInit[path] {
		return
	}
	if _, err := (*t.session).ExecuteStatement(fmt.Sprintf("CREATE STORAGE GROUP %s", path)); err != nil {
		log.Printf("iotdb: create storage group %s: %v (likely already exists)", path, err)
	}
	for _, measurement := range []string{"ph", "tds", "turbidity"} {
		stmt := fmt.Sprintf("CREATE TIMESERIES %s.%s WITH DATATYPE=DOUBLE, ENCODING=GORILLA, COMPRESSOR=SNAPPY", path, measurement)
		if _, err := (*t.session).ExecuteStatement(stmt); err != nil {
			log.Printf("iotdb: create timeseries %s.%s: %v (likely already exists)", path, measurement, err)
		}
	}
	t.schemaInit[path] = true
}

// Append writes one SensorReading. A parameter whose *_valid flag is false
// is simply omitted from the write — IoTDB has no native NULL for a single
// point, so "stored as null" is modeled as "not written this timestamp".
func (t *TimeSeries) Append(_ context.Context, r models.SensorReading) error {
	if !t.enabled {
		return apperr.NewStoreError(apperr.StoreTransient, "AppendSensorReading", fmt.Errorf("iotdb not connected"))
	}
	path := t.storagePath(r.DeviceID)
	t.ensureSchema(path)

	var measurements []string
	var values []interface{}
	var dataTypes []client.TSDataType

	if r.PHValid && r.PH != nil {
		measurements = append(measurements, "ph")
		values = append(values, *r.PH)
		dataTypes = append(dataTypes, client.DOUBLE)
	}
	if r.TDSValid && r.TDS != nil {
		measurements = append(measurements, "tds")
		values = append(values, *r.TDS)
		dataTypes = append(dataTypes, client.DOUBLE)
	}
	if r.TurbidityValid && r.Turbidity != nil {
		measurements = append(measurements, "turbidity")
		values = append(values, *r.Turbidity)
		dataTypes = append(dataTypes, client.DOUBLE)
	}
	if len(measurements) == 0 {
		return nil
	}

	status, err := (*t.session).InsertRecord(path, measurements, dataTypes, values, r.Timestamp.UnixMilli())
	if err != nil {
		return apperr.NewStoreError(apperr.StoreTransient, "AppendSensorReading", err)
	}
	if status != nil && status.GetCode() != 200 {
		log.Printf("iotdb: insert for %s returned non-OK status: %v", r.DeviceID, status)
	}
	return nil
}

// Latest returns the most recent reading for a device, or nil if none.
func (t *TimeSeries) Latest(_ context.Context, deviceID string) (*models.SensorReading, error) {
	if !t.enabled {
		return nil, nil
	}
	path := t.storagePath(deviceID)
	query := fmt.Sprintf("SELECT ph, tds, turbidity FROM %s ORDER BY time DESC LIMIT 1", path)
	ds, err := (*t.session).ExecuteQueryStatement(query, nil)
	if err != nil {
		return nil, apperr.NewStoreError(apperr.StoreTransient, "GetLatestReading", err)
	}
	defer ds.Close()

	hasNext, err := ds.Next()
	if err != nil {
		return nil, apperr.NewStoreError(apperr.StoreTransient, "GetLatestReading", err)
	}
	if !hasNext {
		return nil, nil
	}

	ts := ds.GetTimestamp()
	reading := models.SensorReading{
		DeviceID:  deviceID,
		Timestamp: time.UnixMilli(ts),
	}
	if !ds.IsNull("ph") {
		ph := ds.GetDouble("ph")
		reading.PH = &ph
		reading.PHValid = true
	}
	if !ds.IsNull("tds") {
		tds := ds.GetDouble("tds")
		reading.TDS = &tds
		reading.TDSValid = true
	}
	if !ds.IsNull("turbidity") {
		turb := ds.GetDouble("turbidity")
		reading.Turbidity = &turb
		reading.TurbidityValid = true
	}
	return &reading, nil
}

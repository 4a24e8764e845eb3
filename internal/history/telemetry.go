package history

import (
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// TelemetrySink is the subset of influxdb.Client the Telemetry observer
// writes to. Writes are non-blocking.
type TelemetrySink interface {
	WriteSensorReading(deviceID string, fields map[string]any, ts time.Time)
	WriteLockActivity(deviceID, eventType, method string, ts time.Time)
	WriteSmokeLevel(deviceID string, level float64, alarmActive bool, ts time.Time)
}

// Telemetry mirrors sensor readings, smoke levels and lock events into
// a time-series sink. It implements device.Observer.
type Telemetry struct {
	sink TelemetrySink
}

// NewTelemetry creates a Telemetry observer.
func NewTelemetry(sink TelemetrySink) *Telemetry {
	return &Telemetry{sink: sink}
}

// StateChanged writes sensor and smoke alarm readings.
func (t *Telemetry) StateChanged(_, next device.State) {
	switch next.Kind {
	case device.KindSensor:
		t.sink.WriteSensorReading(next.DeviceID, next.Attributes, next.UpdatedAt)
	case device.KindAlarm:
		level, _ := next.Number(device.AttrSmokeLevel)
		active, _ := next.Bool(device.AttrAlarmActive)
		t.sink.WriteSmokeLevel(next.DeviceID, level, active, next.UpdatedAt)
	}
}

// EventAppended writes lock events.
func (t *Telemetry) EventAppended(ev device.Event) {
	if ev.Kind != device.KindLock {
		return
	}
	t.sink.WriteLockActivity(ev.DeviceID, ev.Type, ev.Method, ev.Timestamp)
}

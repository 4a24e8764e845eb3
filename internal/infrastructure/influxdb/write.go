package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the hub.
const (
	MeasurementSensor    = "sensor_readings"
	MeasurementLock      = "lock_activity"
	MeasurementSmokeLoad = "smoke_levels"
)

// WriteSensorReading records numeric telemetry from a sensor.
//
// Only numeric fields are written; strings and booleans are dropped so a
// firmware quirk cannot change a field's type in the bucket.
//
// Example:
//
//	client.WriteSensorReading("KITCHEN", map[string]any{"temperature": 21.5, "humidity": 40}, ts)
func (c *Client) WriteSensorReading(deviceID string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if p := SensorPoint(deviceID, fields, ts); p != nil {
		c.writeAPI.WritePoint(p)
	}
}

// WriteLockActivity records one lock event.
func (c *Client) WriteLockActivity(deviceID, eventType, method string, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(LockActivityPoint(deviceID, eventType, method, ts))
}

// WriteSmokeLevel records a smoke alarm reading.
func (c *Client) WriteSmokeLevel(deviceID string, level float64, alarmActive bool, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementSmokeLoad,
		map[string]string{"device_id": deviceID},
		map[string]any{"smoke_level": level, "alarm_active": alarmActive},
		ts,
	))
}

// SensorPoint builds the point for a sensor reading, or nil when no
// field is numeric.
func SensorPoint(deviceID string, fields map[string]any, ts time.Time) *write.Point {
	numeric := make(map[string]any, len(fields))
	for k, v := range fields {
		switch n := v.(type) {
		case float64:
			numeric[k] = n
		case float32:
			numeric[k] = float64(n)
		case int:
			numeric[k] = float64(n)
		case int64:
			numeric[k] = float64(n)
		}
	}
	if len(numeric) == 0 {
		return nil
	}
	return write.NewPoint(MeasurementSensor, map[string]string{"device_id": deviceID}, numeric, ts)
}

// LockActivityPoint builds the point for a lock event.
func LockActivityPoint(deviceID, eventType, method string, ts time.Time) *write.Point {
	tags := map[string]string{
		"device_id": deviceID,
		"type":      eventType,
	}
	if method != "" {
		tags["method"] = method
	}
	return write.NewPoint(MeasurementLock, tags, map[string]any{"count": 1}, ts)
}

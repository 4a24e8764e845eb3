package mqtt

import "fmt"

// Topic roots on the home bus.
const (
	// TopicPrefixHome is the root of every device topic.
	TopicPrefixHome = "home"

	// TopicPrefixHub is the hub's own namespace.
	TopicPrefixHub = "home/hub"
)

// Device domains that appear as the second topic level.
const (
	DomainLock       = "lock"
	DomainLighting   = "lighting"
	DomainSmokeAlarm = "smoke_alarm"
)

// Channels that appear as the final topic level of a domain topic.
const (
	ChannelState = "state"
	ChannelEvent = "event"
	ChannelCmd   = "cmd"
)

// Legacy sensor leaf topics: home/<device_id>/<leaf>.
const (
	SensorLeafTelemetry = "telemetry"
	SensorLeafTempHum   = "temperature_humidity"
)

// Topics provides builders for home bus topics.
//
//	topics := mqtt.Topics{}
//	cmd := topics.LockCommand("FRONT_DOOR")
//	// Returns: "home/lock/FRONT_DOOR/cmd"
type Topics struct{}

// DomainTopic returns home/<domain>/<id>/<channel>.
func (Topics) DomainTopic(domain, deviceID, channel string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefixHome, domain, deviceID, channel)
}

// LockCommand returns the command topic for a lock.
//
// Example: home/lock/FRONT_DOOR/cmd
func (t Topics) LockCommand(deviceID string) string {
	return t.DomainTopic(DomainLock, deviceID, ChannelCmd)
}

// LockState returns the state topic for a lock.
func (t Topics) LockState(deviceID string) string {
	return t.DomainTopic(DomainLock, deviceID, ChannelState)
}

// LockEvent returns the event topic for a lock.
func (t Topics) LockEvent(deviceID string) string {
	return t.DomainTopic(DomainLock, deviceID, ChannelEvent)
}

// LightingCommand returns the command topic for a light.
//
// Example: home/lighting/LIVING_ROOM/cmd
func (t Topics) LightingCommand(deviceID string) string {
	return t.DomainTopic(DomainLighting, deviceID, ChannelCmd)
}

// SmokeAlarmCommand returns the command topic for a smoke alarm.
func (t Topics) SmokeAlarmCommand(deviceID string) string {
	return t.DomainTopic(DomainSmokeAlarm, deviceID, ChannelCmd)
}

// SensorReading returns the legacy sensor topic for a device.
//
// Example: home/KITCHEN/temperature_humidity
func (Topics) SensorReading(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixHome, deviceID, SensorLeafTempHum)
}

// HubStatus returns the retained hub online/offline topic.
//
// Example: home/hub/status
func (Topics) HubStatus() string {
	return TopicPrefixHub + "/status"
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllSensorReadings matches legacy temperature/humidity sensors.
//
// Pattern: home/+/temperature_humidity
func (Topics) AllSensorReadings() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixHome, SensorLeafTempHum)
}

// AllSensorTelemetry matches generic sensor telemetry.
//
// Pattern: home/+/telemetry
func (Topics) AllSensorTelemetry() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixHome, SensorLeafTelemetry)
}

// AllDomain matches every device and channel in a domain.
//
// Pattern: home/<domain>/+/+
func (Topics) AllDomain(domain string) string {
	return fmt.Sprintf("%s/%s/+/+", TopicPrefixHome, domain)
}

// AllLockStates matches every lock state report.
//
// Pattern: home/lock/+/state
func (Topics) AllLockStates() string {
	return fmt.Sprintf("%s/%s/+/%s", TopicPrefixHome, DomainLock, ChannelState)
}

// IngestFilters returns the subscriptions the hub needs to mirror every
// supported device kind.
func (t Topics) IngestFilters() []string {
	return []string{
		t.AllSensorReadings(),
		t.AllSensorTelemetry(),
		t.AllDomain(DomainLock),
		t.AllDomain(DomainLighting),
		t.AllDomain(DomainSmokeAlarm),
	}
}

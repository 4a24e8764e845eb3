package fanout

import (
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// Event names delivered to subscribers.
const (
	EventSensorDataUpdate      = "sensor_data_update"
	EventLockStateUpdate       = "lock_state_update"
	EventLockEvent             = "lock_event"
	EventLightingStateUpdate   = "lighting_state_update"
	EventLightingEvent         = "lighting_event"
	EventSmokeAlarmStateUpdate = "smoke_alarm_state_update"
	EventSmokeAlarmEvent       = "smoke_alarm_event"
)

// AllEvents lists every event name the Notifier emits.
var AllEvents = []string{
	EventSensorDataUpdate,
	EventLockStateUpdate,
	EventLockEvent,
	EventLightingStateUpdate,
	EventLightingEvent,
	EventSmokeAlarmStateUpdate,
	EventSmokeAlarmEvent,
}

// Broadcaster is the subset of Hub used by Notifier.
type Broadcaster interface {
	Broadcast(event string, payload any)
	BroadcastPriority(event string, payload any)
}

// Notifier turns store notifications into named fanout events.
// It implements device.Observer.
type Notifier struct {
	out Broadcaster
}

// NewNotifier creates a Notifier publishing to out.
func NewNotifier(out Broadcaster) *Notifier {
	return &Notifier{out: out}
}

// StateChanged publishes the new state. An alarm going active is sent on
// the priority lane.
func (n *Notifier) StateChanged(prev, next device.State) {
	name, ok := stateEventName(next.Kind)
	if !ok {
		return
	}

	if next.Kind == device.KindAlarm && alarmRaised(prev, next) {
		n.out.BroadcastPriority(name, next)
		return
	}

	if next.Kind == device.KindLock {
		if view, err := device.LockView(next); err == nil {
			n.out.Broadcast(name, view)
			return
		}
	}
	n.out.Broadcast(name, next)
}

// EventAppended publishes the event for kinds that have an event stream.
func (n *Notifier) EventAppended(ev device.Event) {
	if name, ok := eventName(ev.Kind); ok {
		n.out.Broadcast(name, ev)
	}
}

func alarmRaised(prev, next device.State) bool {
	now, _ := next.Bool(device.AttrAlarmActive)
	if !now {
		return false
	}
	before, _ := prev.Bool(device.AttrAlarmActive)
	return !before
}

func stateEventName(k device.Kind) (string, bool) {
	switch k {
	case device.KindSensor:
		return EventSensorDataUpdate, true
	case device.KindLock:
		return EventLockStateUpdate, true
	case device.KindLight:
		return EventLightingStateUpdate, true
	case device.KindAlarm:
		return EventSmokeAlarmStateUpdate, true
	}
	return "", false
}

func eventName(k device.Kind) (string, bool) {
	switch k {
	case device.KindLock:
		return EventLockEvent, true
	case device.KindLight:
		return EventLightingEvent, true
	case device.KindAlarm:
		return EventSmokeAlarmEvent, true
	}
	return "", false
}

var _ device.Observer = (*Notifier)(nil)

package history

import (
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/device"
)

type sinkCall struct {
	kind     string
	deviceID string
	fields   map[string]any
	event    string
	method   string
	level    float64
	active   bool
}

type fakeSink struct {
	calls []sinkCall
}

func (f *fakeSink) WriteSensorReading(deviceID string, fields map[string]any, _ time.Time) {
	f.calls = append(f.calls, sinkCall{kind: "sensor", deviceID: deviceID, fields: fields})
}

func (f *fakeSink) WriteLockActivity(deviceID, eventType, method string, _ time.Time) {
	f.calls = append(f.calls, sinkCall{kind: "lock", deviceID: deviceID, event: eventType, method: method})
}

func (f *fakeSink) WriteSmokeLevel(deviceID string, level float64, alarmActive bool, _ time.Time) {
	f.calls = append(f.calls, sinkCall{kind: "smoke", deviceID: deviceID, level: level, active: alarmActive})
}

func TestTelemetry_StateChanged(t *testing.T) {
	tests := []struct {
		name  string
		state device.State
		want  []sinkCall
	}{
		{
			name: "sensor",
			state: device.State{DeviceID: "bedroom", Kind: device.KindSensor,
				Attributes: map[string]any{"temperature": 21.5, "humidity": 40.0}},
			want: []sinkCall{{kind: "sensor", deviceID: "bedroom"}},
		},
		{
			name: "alarm",
			state: device.State{DeviceID: "KITCHEN", Kind: device.KindAlarm,
				Attributes: map[string]any{device.AttrSmokeLevel: 73.0, device.AttrAlarmActive: true}},
			want: []sinkCall{{kind: "smoke", deviceID: "KITCHEN", level: 73, active: true}},
		},
		{
			name:  "light ignored",
			state: device.State{DeviceID: "LIVING_ROOM", Kind: device.KindLight, Attributes: map[string]any{}},
		},
		{
			name:  "lock state ignored",
			state: device.State{DeviceID: "FRONT_DOOR", Kind: device.KindLock, Attributes: map[string]any{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeSink{}
			NewTelemetry(sink).StateChanged(device.State{}, tt.state)

			if len(sink.calls) != len(tt.want) {
				t.Fatalf("calls = %+v, want %+v", sink.calls, tt.want)
			}
			for i, want := range tt.want {
				got := sink.calls[i]
				if got.kind != want.kind || got.deviceID != want.deviceID || got.level != want.level || got.active != want.active {
					t.Errorf("call[%d] = %+v, want %+v", i, got, want)
				}
			}
		})
	}
}

func TestTelemetry_EventAppended(t *testing.T) {
	sink := &fakeSink{}
	tel := NewTelemetry(sink)

	tel.EventAppended(device.Event{DeviceID: "FRONT_DOOR", Kind: device.KindLock, Type: "cmd_unlock", Method: "FACE"})
	tel.EventAppended(device.Event{DeviceID: "LIVING_ROOM", Kind: device.KindLight, Type: "cmd_light"})

	if len(sink.calls) != 1 {
		t.Fatalf("calls = %+v, want one lock call", sink.calls)
	}
	if c := sink.calls[0]; c.event != "cmd_unlock" || c.method != "FACE" {
		t.Errorf("call = %+v", c)
	}
}

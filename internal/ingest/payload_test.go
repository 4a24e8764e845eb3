package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/device"
)

func TestDecodeState_LockFields(t *testing.T) {
	payload := []byte(`{"locked": false, "method": "PINCODE", "actor": "alice", "battery": 87, "ts": "2026-03-01T12:00:05.250000"}`)

	partial, ts, err := DecodeState(device.KindLock, payload)
	if err != nil {
		t.Fatalf("DecodeState() error = %v", err)
	}

	want := map[string]any{
		device.AttrLocked:     false,
		device.AttrLastMethod: "PINCODE",
		device.AttrLastActor:  "alice",
		device.AttrBattery:    87.0,
	}
	if len(partial) != len(want) {
		t.Fatalf("partial = %v, want %v", partial, want)
	}
	for k, v := range want {
		if partial[k] != v {
			t.Errorf("partial[%q] = %v, want %v", k, partial[k], v)
		}
	}

	wantTS := time.Date(2026, 3, 1, 12, 0, 5, 250_000_000, time.UTC)
	if !ts.Equal(wantTS) {
		t.Errorf("ts = %v, want %v", ts, wantTS)
	}
}

func TestDecodeState_NullIsAbsent(t *testing.T) {
	partial, _, err := DecodeState(device.KindLight, []byte(`{"power": true, "brightness": null}`))
	if err != nil {
		t.Fatalf("DecodeState() error = %v", err)
	}
	if _, ok := partial[device.AttrBrightness]; ok {
		t.Errorf("brightness present in %v, want absent", partial)
	}
	if partial[device.AttrPower] != true {
		t.Errorf("power = %v, want true", partial[device.AttrPower])
	}
}

func TestDecodeState_PassesUnknownScalars(t *testing.T) {
	partial, _, err := DecodeState(device.KindAlarm, []byte(`{"smoke_level": 12.5, "location": "kitchen", "extra": {"nested": 1}}`))
	if err != nil {
		t.Fatalf("DecodeState() error = %v", err)
	}
	if partial["location"] != "kitchen" {
		t.Errorf("location = %v, want kitchen", partial["location"])
	}
	if partial[device.AttrSmokeLevel] != 12.5 {
		t.Errorf("smoke_level = %v, want 12.5", partial[device.AttrSmokeLevel])
	}
	if _, ok := partial["extra"]; ok {
		t.Error("nested object should be dropped")
	}
}

func TestDecodeState_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		kind    device.Kind
		payload string
	}{
		{"not json", device.KindSensor, `temperature=21`},
		{"array", device.KindSensor, `[1,2]`},
		{"null", device.KindSensor, `null`},
		{"trailing", device.KindSensor, `{"temperature": 21} {}`},
		{"wrong type", device.KindLock, `{"locked": "yes"}`},
		{"number as string", device.KindSensor, `{"temperature": "21.5"}`},
		{"only ts", device.KindSensor, `{"ts": 1767268800}`},
		{"empty object", device.KindLight, `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeState(tt.kind, []byte(tt.payload))
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("DecodeState(%s) error = %v, want ErrMalformedPayload", tt.payload, err)
			}
		})
	}
}

func TestDecodeEvent(t *testing.T) {
	route := Route{Domain: "lock", Kind: device.KindLock, DeviceID: "FRONT_DOOR", Channel: ChannelEvent}

	tests := []struct {
		name       string
		payload    string
		wantType   string
		wantDetail string
		wantMethod string
		wantErr    bool
	}{
		{
			name:       "string detail",
			payload:    `{"type": "unlock", "method": "FACE", "actor": "bob", "detail": "door opened"}`,
			wantType:   "unlock",
			wantDetail: "door opened",
			wantMethod: "FACE",
		},
		{
			name:       "object detail",
			payload:    `{"type": "tamper", "detail": {"zone": 2}}`,
			wantType:   "tamper",
			wantDetail: `{"zone":2}`,
		},
		{name: "missing type", payload: `{"detail": "x"}`, wantErr: true},
		{name: "blank type", payload: `{"type": "  "}`, wantErr: true},
		{name: "bad json", payload: `{"type":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent(route, []byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Fatalf("DecodeEvent() error = %v, want ErrMalformedPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeEvent() error = %v", err)
			}
			if ev.Type != tt.wantType || ev.Detail != tt.wantDetail || ev.Method != tt.wantMethod {
				t.Errorf("DecodeEvent() = %+v", ev)
			}
			if ev.DeviceID != "FRONT_DOOR" || ev.Kind != device.KindLock {
				t.Errorf("event route fields = %s/%s", ev.DeviceID, ev.Kind)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  any
		want time.Time
	}{
		{"rfc3339", "2026-03-01T12:00:00Z", want},
		{"rfc3339 offset", "2026-03-01T13:00:00+01:00", want},
		{"naive iso", "2026-03-01T12:00:00", want},
		{"naive iso space", "2026-03-01 12:00:00", want},
		{"epoch seconds string", "1772366400", want},
		{"garbage", "yesterday", time.Time{}},
		{"missing", nil, time.Time{}},
		{"bool", true, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTimestamp(tt.raw)
			if !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp_EpochNumbers(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, payload := range []string{
		`{"temperature": 1, "ts": 1772366400}`,
		`{"temperature": 1, "ts": 1772366400000}`,
	} {
		_, ts, err := DecodeState(device.KindSensor, []byte(payload))
		if err != nil {
			t.Fatalf("DecodeState(%s) error = %v", payload, err)
		}
		if !ts.Equal(want) {
			t.Errorf("DecodeState(%s) ts = %v, want %v", payload, ts, want)
		}
	}
}

package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/device"
)

type fieldType int

const (
	typeNumber fieldType = iota
	typeBool
	typeString
)

// field maps a payload key onto a state attribute.
type field struct {
	attr string
	typ  fieldType
}

// Known state fields per kind. Unknown scalar fields pass through with
// their JSON type.
var schemas = map[device.Kind]map[string]field{
	device.KindSensor: {
		"temperature": {"temperature", typeNumber},
		"humidity":    {"humidity", typeNumber},
	},
	device.KindLock: {
		"locked":  {device.AttrLocked, typeBool},
		"battery": {device.AttrBattery, typeNumber},
		"method":  {device.AttrLastMethod, typeString},
		"actor":   {device.AttrLastActor, typeString},
	},
	device.KindLight: {
		"power":           {device.AttrPower, typeBool},
		"brightness":      {device.AttrBrightness, typeNumber},
		"auto_mode":       {device.AttrAutoMode, typeBool},
		"room_brightness": {"room_brightness", typeNumber},
		"color_temp":      {device.AttrColorTemp, typeNumber},
	},
	device.KindAlarm: {
		"smoke_level":  {device.AttrSmokeLevel, typeNumber},
		"alarm_active": {device.AttrAlarmActive, typeBool},
		"battery":      {device.AttrBattery, typeNumber},
		"test_mode":    {device.AttrTestMode, typeBool},
		"sensitivity":  {device.AttrSensitivity, typeString},
	},
}

const tsKey = "ts"

// decodeObject parses payload as a JSON object, keeping numbers exact
// until they are converted.
func decodeObject(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedPayload)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformedPayload)
	}
	return obj, nil
}

// DecodeState converts a state payload into a partial attribute map and
// the device timestamp (zero when absent or unreadable).
//
// JSON null counts as absent. A known field with the wrong type makes
// the whole payload malformed.
func DecodeState(kind device.Kind, payload []byte) (map[string]any, time.Time, error) {
	obj, err := decodeObject(payload)
	if err != nil {
		return nil, time.Time{}, err
	}

	ts := parseTimestamp(obj[tsKey])
	schema := schemas[kind]
	partial := make(map[string]any, len(obj))

	for key, raw := range obj {
		if key == tsKey || raw == nil {
			continue
		}
		f, known := schema[key]
		if !known {
			if v, ok := passthrough(raw); ok {
				partial[key] = v
			}
			continue
		}
		v, err := convert(raw, f.typ)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: field %q: %w", ErrMalformedPayload, key, err)
		}
		partial[f.attr] = v
	}

	if len(partial) == 0 {
		return nil, time.Time{}, fmt.Errorf("%w: no fields", ErrMalformedPayload)
	}
	return partial, ts, nil
}

// DecodeEvent converts an event payload. type is required; a detail
// that is not a string is kept as compact JSON.
func DecodeEvent(route Route, payload []byte) (device.Event, error) {
	obj, err := decodeObject(payload)
	if err != nil {
		return device.Event{}, err
	}

	typ, ok := obj["type"].(string)
	if !ok || strings.TrimSpace(typ) == "" {
		return device.Event{}, fmt.Errorf("%w: event type is required", ErrMalformedPayload)
	}

	ev := device.Event{
		DeviceID:  route.DeviceID,
		Kind:      route.Kind,
		Type:      typ,
		Timestamp: parseTimestamp(obj[tsKey]),
	}
	ev.Method, _ = obj["method"].(string)
	ev.Actor, _ = obj["actor"].(string)

	switch d := obj["detail"].(type) {
	case nil:
	case string:
		ev.Detail = d
	default:
		b, err := json.Marshal(d)
		if err == nil {
			ev.Detail = string(b)
		}
	}
	return ev, nil
}

func convert(raw any, typ fieldType) (any, error) {
	switch typ {
	case typeNumber:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("want number, got %T", raw)
		}
		f, err := n.Float64()
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, fmt.Errorf("number out of range: %s", n)
		}
		return f, nil
	case typeBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", raw)
		}
		return b, nil
	case typeString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", raw)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown field type %d", typ)
}

// passthrough keeps unknown scalars. Objects and arrays are dropped.
func passthrough(raw any) (any, bool) {
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	case bool, string:
		return v, true
	}
	return nil, false
}

// Timestamp layouts seen from devices. Layouts without a zone are UTC.
var tsLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e12

// parseTimestamp reads ts as an ISO-8601 string or epoch seconds or
// milliseconds. Anything else yields the zero time, which the store
// replaces with its own clock.
func parseTimestamp(raw any) time.Time {
	switch v := raw.(type) {
	case string:
		for _, layout := range tsLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return epochTime(f)
		}
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return epochTime(f)
		}
	}
	return time.Time{}
}

func epochTime(f float64) time.Time {
	if f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return time.Time{}
	}
	if f >= epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

package device

import (
	"fmt"
	"time"
)

// Kind classifies a device.
type Kind string

// Supported device kinds.
const (
	KindSensor Kind = "sensor"
	KindLock   Kind = "lock"
	KindLight  Kind = "light"
	KindAlarm  Kind = "alarm"
)

// AllKinds lists every supported kind in display order.
var AllKinds = []Kind{KindSensor, KindLock, KindLight, KindAlarm}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSensor, KindLock, KindLight, KindAlarm:
		return true
	}
	return false
}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// Attribute keys with meaning to the hub itself.
const (
	AttrLocked      = "locked"
	AttrLastMethod  = "last_method"
	AttrLastActor   = "last_actor"
	AttrBattery     = "battery"
	AttrPower       = "power"
	AttrBrightness  = "brightness"
	AttrAutoMode    = "auto_mode"
	AttrColorTemp   = "color_temp"
	AttrAlarmActive = "alarm_active"
	AttrSmokeLevel  = "smoke_level"
	AttrTestMode    = "test_mode"
	AttrSensitivity = "sensitivity"
)

// State is the reconciled state of one device.
type State struct {
	DeviceID   string         `json:"device_id"`
	Kind       Kind           `json:"kind"`
	Attributes map[string]any `json:"attributes"`

	// UpdatedAt never moves backwards for a given device.
	UpdatedAt time.Time `json:"updated_at"`

	// Version increments on every committed change, starting at 1.
	Version uint64 `json:"version"`

	// RelockDeadline is only ever set on an unlocked lock.
	RelockDeadline *time.Time `json:"relock_deadline,omitempty"`
}

// Clone returns an independent copy of s.
func (s State) Clone() State {
	cpy := s
	cpy.Attributes = deepCopyMap(s.Attributes)
	if s.RelockDeadline != nil {
		d := *s.RelockDeadline
		cpy.RelockDeadline = &d
	}
	return cpy
}

// Bool returns a boolean attribute.
func (s State) Bool(key string) (value, ok bool) {
	value, ok = s.Attributes[key].(bool)
	return value, ok
}

// Number returns a numeric attribute as float64.
func (s State) Number(key string) (float64, bool) {
	switch n := s.Attributes[key].(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// String returns a string attribute.
func (s State) String(key string) (string, bool) {
	v, ok := s.Attributes[key].(string)
	return v, ok
}

// IsUnlockedLock reports whether s is a lock whose locked attribute is false.
func (s State) IsUnlockedLock() bool {
	if s.Kind != KindLock {
		return false
	}
	locked, ok := s.Bool(AttrLocked)
	return ok && !locked
}

// Event is an immutable record of something a device or the hub did.
type Event struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Kind      Kind      `json:"kind"`
	Type      string    `json:"type"`
	Method    string    `json:"method,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LockRuntimeState is the typed view of a lock's State.
type LockRuntimeState struct {
	DeviceID       string     `json:"device_id"`
	Locked         bool       `json:"locked"`
	LastMethod     string     `json:"last_method,omitempty"`
	LastActor      string     `json:"last_actor,omitempty"`
	Battery        int        `json:"battery"`
	RelockDeadline *time.Time `json:"relock_deadline,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// LockView projects a lock State onto LockRuntimeState.
// Battery is clamped to 0..100.
func LockView(s State) (LockRuntimeState, error) {
	if s.Kind != KindLock {
		return LockRuntimeState{}, fmt.Errorf("%w: %s is %s", ErrNotALock, s.DeviceID, s.Kind)
	}

	v := LockRuntimeState{
		DeviceID:  s.DeviceID,
		UpdatedAt: s.UpdatedAt,
	}
	v.Locked, _ = s.Bool(AttrLocked)
	v.LastMethod, _ = s.String(AttrLastMethod)
	v.LastActor, _ = s.String(AttrLastActor)
	if b, ok := s.Number(AttrBattery); ok {
		v.Battery = clampPercent(b)
	}
	if s.RelockDeadline != nil {
		d := *s.RelockDeadline
		v.RelockDeadline = &d
	}
	return v, nil
}

func clampPercent(f float64) int {
	switch {
	case f < 0:
		return 0
	case f > 100:
		return 100
	}
	return int(f)
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

package device

// Defaults returns the initial attributes for a never-seen device of the
// given kind. The returned map is freshly allocated.
func Defaults(k Kind) map[string]any {
	switch k {
	case KindLock:
		return map[string]any{
			AttrLocked:  true,
			AttrBattery: 100.0,
		}
	case KindLight:
		return map[string]any{
			AttrPower:      false,
			AttrBrightness: 50.0,
			AttrAutoMode:   false,
			AttrColorTemp:  4000.0,
		}
	case KindAlarm:
		return map[string]any{
			AttrAlarmActive: false,
			AttrSmokeLevel:  0.0,
			AttrBattery:     100.0,
			AttrTestMode:    false,
			AttrSensitivity: "medium",
		}
	default:
		return map[string]any{}
	}
}

package command

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-hub/internal/audit"
	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// Smoke alarm controls act on the hub's view of the alarm. Nothing is
// published to the bus; the written state is what panels see until the
// alarm next reports.

// SetAlarmTest starts or stops test mode on a smoke alarm.
//
// Returns:
//   - Result: StatusApplied with the TEST_STARTED or TEST_STOPPED event id
//   - error: ErrInvalidRequest, device.ErrDeviceNotFound, device.ErrKindMismatch
func (d *Dispatcher) SetAlarmTest(ctx context.Context, alarmID, actor string, on bool) (Result, error) {
	if _, err := d.checkAlarm(alarmID); err != nil {
		return Result{}, err
	}

	evType, detail := EventTestStopped, "Test mode deactivated"
	if on {
		evType, detail = EventTestStarted, "Test mode activated"
	}
	res, err := d.applyAlarm(alarmID, actor, "test", map[string]any{device.AttrTestMode: on}, evType, detail)
	if err != nil {
		return Result{}, err
	}
	d.auditAlarm(ctx, audit.ActionAlarmTest, alarmID, actor, map[string]any{"test_mode": on})
	return res, nil
}

// SetAlarmSensitivity changes a smoke alarm's detection sensitivity. An
// empty level is medium.
//
// Returns:
//   - Result: StatusApplied with the SENSITIVITY_CHANGED event id
//   - error: ErrInvalidRequest for an unknown level, device.ErrDeviceNotFound,
//     device.ErrKindMismatch
func (d *Dispatcher) SetAlarmSensitivity(ctx context.Context, alarmID, actor, level string) (Result, error) {
	level, err := ParseSensitivity(level)
	if err != nil {
		return Result{}, err
	}
	st, err := d.checkAlarm(alarmID)
	if err != nil {
		return Result{}, err
	}

	old, _ := st.String(device.AttrSensitivity)
	detail := fmt.Sprintf("Sensitivity changed from %s to %s", old, level)
	res, err := d.applyAlarm(alarmID, actor, "sensitivity", map[string]any{device.AttrSensitivity: level}, EventSensitivityChanged, detail)
	if err != nil {
		return Result{}, err
	}
	d.auditAlarm(ctx, audit.ActionAlarmSensitivity, alarmID, actor, map[string]any{"from": old, "to": level})
	return res, nil
}

// AcknowledgeAlarm clears an active alarm. The smoke level at the time
// is kept in the event detail.
//
// Returns:
//   - Result: StatusApplied with the ALARM_ACKNOWLEDGED event id
//   - error: ErrInvalidRequest, device.ErrDeviceNotFound, device.ErrKindMismatch
func (d *Dispatcher) AcknowledgeAlarm(ctx context.Context, alarmID, actor string) (Result, error) {
	st, err := d.checkAlarm(alarmID)
	if err != nil {
		return Result{}, err
	}

	detail := "Alarm acknowledged by user"
	if level, ok := st.Number(device.AttrSmokeLevel); ok {
		detail = fmt.Sprintf("%s (smoke_level=%g)", detail, level)
	}
	res, err := d.applyAlarm(alarmID, actor, "acknowledge", map[string]any{device.AttrAlarmActive: false}, EventAlarmAcknowledged, detail)
	if err != nil {
		return Result{}, err
	}
	d.auditAlarm(ctx, audit.ActionAlarmAcknowledged, alarmID, actor, nil)
	return res, nil
}

// checkAlarm requires alarmID to be a known smoke alarm.
func (d *Dispatcher) checkAlarm(alarmID string) (device.State, error) {
	if alarmID == "" {
		return device.State{}, fmt.Errorf("%w: device id is required", ErrInvalidRequest)
	}
	st, err := d.store.Read(alarmID)
	if err != nil {
		return device.State{}, err
	}
	if st.Kind != device.KindAlarm {
		return device.State{}, fmt.Errorf("%w: %s is %s", device.ErrKindMismatch, alarmID, st.Kind)
	}
	return st, nil
}

func (d *Dispatcher) applyAlarm(alarmID, actor, action string, partial map[string]any, evType, detail string) (Result, error) {
	issued := d.clock.Now()
	if _, err := d.store.Upsert(alarmID, device.KindAlarm, partial, issued); err != nil {
		return Result{}, fmt.Errorf("updating alarm %s: %w", alarmID, err)
	}

	ev := d.appendEvent(device.Event{
		DeviceID:  alarmID,
		Kind:      device.KindAlarm,
		Type:      evType,
		Actor:     actor,
		Detail:    detail,
		Timestamp: issued,
	})
	d.logger.Info("alarm control applied", "device_id", alarmID, "action", action, "actor", actor)
	return Result{
		Status:   StatusApplied,
		Detail:   detail,
		DeviceID: alarmID,
		Action:   action,
		EventID:  ev.ID,
		IssuedAt: issued,
	}, nil
}

func (d *Dispatcher) auditAlarm(ctx context.Context, action, alarmID, actor string, details map[string]any) {
	if d.audit == nil {
		return
	}
	if actor == "" {
		actor = SystemActor
	}
	entry := &audit.AuditLog{
		Action:     action,
		EntityType: audit.EntityAlarm,
		EntityID:   alarmID,
		UserID:     actor,
		Source:     audit.SourceAPI,
		Details:    details,
		CreatedAt:  d.clock.Now(),
	}
	if err := d.audit.Create(ctx, entry); err != nil {
		d.logger.Warn("alarm audit failed", "device_id", alarmID, "error", err)
	}
}

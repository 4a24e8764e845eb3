package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/auth"
)

// Action is a lock action.
type Action string

const (
	ActionLock   Action = "lock"
	ActionUnlock Action = "unlock"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionLock, ActionUnlock:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Status is the outcome reported to the caller.
type Status string

const (
	StatusSent    Status = "sent"
	StatusDenied  Status = "denied"
	StatusApplied Status = "applied"
)

// Event types written to the device event log.
const (
	EventCmdPrefix      = "cmd_"
	EventAuthFailPrefix = "auth_fail_"
	EventCmdLight       = "cmd_light"

	EventTestStarted        = "TEST_STARTED"
	EventTestStopped        = "TEST_STOPPED"
	EventSensitivityChanged = "SENSITIVITY_CHANGED"
	EventAlarmAcknowledged  = "ALARM_ACKNOWLEDGED"
)

// Smoke alarm sensitivity levels.
const (
	SensitivityLow    = "low"
	SensitivityMedium = "medium"
	SensitivityHigh   = "high"
)

// ParseSensitivity validates a sensitivity level. An empty level is
// medium.
func ParseSensitivity(s string) (string, error) {
	switch level := strings.ToLower(strings.TrimSpace(s)); level {
	case "":
		return SensitivityMedium, nil
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return level, nil
	}
	return "", fmt.Errorf("%w: sensitivity must be low, medium or high, got %q", ErrInvalidRequest, s)
}

// SystemActor is the actor recorded for scheduler-issued commands.
const SystemActor = "system"

// Request is one lock command awaiting dispatch. It exists only for the
// duration of Dispatch.
type Request struct {
	DeviceID string
	Action   Action
	Method   auth.Method
	Actor    string

	// Credentials, by method.
	PIN      string
	Username string
	Secret   string
	Probe    []float64
}

func (r Request) attempt() auth.Attempt {
	return auth.Attempt{
		Method:   r.Method,
		PIN:      r.PIN,
		Username: r.Username,
		Secret:   r.Secret,
		Probe:    r.Probe,
	}
}

// Result is returned for both sent and denied commands.
type Result struct {
	Status    Status          `json:"status"`
	Detail    string          `json:"detail"`
	DeviceID  string          `json:"device_id"`
	Action    string          `json:"action"`
	Method    auth.Method     `json:"method,omitempty"`
	Principal string          `json:"principal,omitempty"`
	Reason    auth.DenyReason `json:"reason,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
	RelockAt  *time.Time      `json:"relock_at,omitempty"`
	IssuedAt  time.Time       `json:"issued_at"`
}

// Sent reports whether the command was published.
func (r Result) Sent() bool { return r.Status == StatusSent }

// lockPayload is the wire shape of home/lock/<id>/cmd.
type lockPayload struct {
	Action string `json:"action"`
	Method string `json:"method"`
	Actor  string `json:"actor,omitempty"`
	PIN    string `json:"pin,omitempty"`
}

// LightCommand is a partial lighting command. Nil fields are omitted.
type LightCommand struct {
	Power      *bool    `json:"power,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
	AutoMode   *bool    `json:"auto_mode,omitempty"`
	ColorTemp  *float64 `json:"color_temp,omitempty"`
}

// IsEmpty reports whether no field is set.
func (c LightCommand) IsEmpty() bool {
	return c.Power == nil && c.Brightness == nil && c.AutoMode == nil && c.ColorTemp == nil
}

// normalise applies the lighting control rules against the light's
// current power: disabling auto mode turns the light off, and enabling
// auto mode on a light that is off keeps it off until the sensor loop
// decides otherwise.
func (c LightCommand) normalise(currentlyOn bool) LightCommand {
	off := false
	switch {
	case c.AutoMode != nil && !*c.AutoMode:
		c.Power = &off
	case c.AutoMode != nil && *c.AutoMode && c.Power == nil && !currentlyOn:
		c.Power = &off
	}
	return c
}

func (c LightCommand) validate() error {
	if c.IsEmpty() {
		return fmt.Errorf("%w: empty lighting command", ErrInvalidRequest)
	}
	if c.Brightness != nil && (*c.Brightness < 0 || *c.Brightness > 100) {
		return fmt.Errorf("%w: brightness must be 0-100", ErrInvalidRequest)
	}
	if c.ColorTemp != nil && *c.ColorTemp <= 0 {
		return fmt.Errorf("%w: color_temp must be positive", ErrInvalidRequest)
	}
	return nil
}

// detail renders the command for the event log.
func (c LightCommand) detail() string {
	var parts []string
	if c.Power != nil {
		parts = append(parts, fmt.Sprintf("power=%t", *c.Power))
	}
	if c.Brightness != nil {
		parts = append(parts, fmt.Sprintf("brightness=%g", *c.Brightness))
	}
	if c.AutoMode != nil {
		parts = append(parts, fmt.Sprintf("auto_mode=%t", *c.AutoMode))
	}
	if c.ColorTemp != nil {
		parts = append(parts, fmt.Sprintf("color_temp=%g", *c.ColorTemp))
	}
	return strings.Join(parts, " ")
}

package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nerrad567/gray-logic-hub/internal/audit"
	"github.com/nerrad567/gray-logic-hub/internal/auth"
	"github.com/nerrad567/gray-logic-hub/internal/clock"
	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
)

// Publisher sends a command payload to the bus.
type Publisher interface {
	PublishCommand(topic string, payload []byte) error
}

// Verifier evaluates credentials.
type Verifier interface {
	Verify(ctx context.Context, a auth.Attempt) auth.Decision
}

// Relocker is the part of the relock scheduler the dispatcher drives.
type Relocker interface {
	Arm(lockID string, delay time.Duration) time.Time
	Cancel(lockID string)
}

// PINRotator replaces the shared PIN.
type PINRotator interface {
	Rotate(pin string) (uint64, error)
}

// StateStore is the subset of device.Store the dispatcher needs.
type StateStore interface {
	Read(id string) (device.State, error)
	Upsert(id string, kind device.Kind, partial map[string]any, ts time.Time) (device.State, error)
	AppendEvent(ev device.Event) (device.Event, error)
}

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RetryPolicy controls publish retries.
type RetryPolicy struct {
	// Retries is the number of attempts after the first.
	Retries        int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns 3 retries from 200ms, capped at 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 3, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second}
}

// Options configures a Dispatcher. Publisher, Store and Verifier are
// required.
type Options struct {
	Publisher Publisher
	Store     StateStore
	Verifier  Verifier
	Relock    Relocker
	PIN       PINRotator
	Audit     audit.Repository
	Clock     clock.Clock
	Retry     RetryPolicy

	// RelockDelay is passed to Relocker.Arm on unlock. Zero leaves the
	// choice to the scheduler.
	RelockDelay time.Duration
}

// Dispatcher verifies and publishes device commands.
//
// Safe for concurrent use; each Dispatch is independent.
type Dispatcher struct {
	pub      Publisher
	store    StateStore
	verifier Verifier
	relock   Relocker
	pin      PINRotator
	audit    audit.Repository
	clock    clock.Clock
	retry    RetryPolicy
	delay    time.Duration
	topics   mqtt.Topics
	logger   Logger
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	return &Dispatcher{
		pub:      opts.Publisher,
		store:    opts.Store,
		verifier: opts.Verifier,
		relock:   opts.Relock,
		pin:      opts.PIN,
		audit:    opts.Audit,
		clock:    opts.Clock,
		retry:    opts.Retry,
		delay:    opts.RelockDelay,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Dispatch verifies req and, if authorised, publishes the lock command.
//
// Returns:
//   - Result: StatusSent or StatusDenied; a denial is not an error
//   - error: ErrInvalidRequest, ErrInvalidAction, device.ErrKindMismatch,
//     or ErrTransport when publishing failed after retries
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	if err := d.checkLock(req.DeviceID); err != nil {
		return Result{}, err
	}
	if _, err := ParseAction(string(req.Action)); err != nil {
		return Result{}, err
	}

	issued := d.clock.Now()
	decision := d.verifier.Verify(ctx, req.attempt())

	actor := req.Actor
	if actor == "" {
		actor = decision.Principal
	}

	if !decision.Authorized {
		ev := d.appendEvent(device.Event{
			DeviceID:  req.DeviceID,
			Kind:      device.KindLock,
			Type:      EventAuthFailPrefix + string(req.Action),
			Method:    string(req.Method),
			Actor:     actor,
			Detail:    string(decision.Reason),
			Timestamp: issued,
		})
		d.logger.Info("lock command denied",
			"device_id", req.DeviceID, "action", req.Action,
			"method", req.Method, "reason", decision.Reason)
		return Result{
			Status:   StatusDenied,
			Detail:   string(decision.Reason),
			DeviceID: req.DeviceID,
			Action:   string(req.Action),
			Method:   req.Method,
			Reason:   decision.Reason,
			EventID:  ev.ID,
			IssuedAt: issued,
		}, nil
	}

	payload := lockPayload{Action: string(req.Action), Method: string(req.Method), Actor: actor}
	if req.Method == auth.MethodPIN {
		payload.PIN = req.PIN
	}
	return d.send(ctx, req.DeviceID, req.Action, decision, actor, payload, issued)
}

// AutoLock publishes a lock command for the relock scheduler. It skips
// verification and records method AUTO with actor system.
func (d *Dispatcher) AutoLock(ctx context.Context, lockID string) (Result, error) {
	if err := d.checkLock(lockID); err != nil {
		return Result{}, err
	}
	decision := auth.Authorized(auth.MethodAuto, "")
	payload := lockPayload{Action: string(ActionLock), Method: string(auth.MethodAuto), Actor: SystemActor}
	return d.send(ctx, lockID, ActionLock, decision, SystemActor, payload, d.clock.Now())
}

func (d *Dispatcher) send(ctx context.Context, id string, action Action, decision auth.Decision, actor string, payload lockPayload, issued time.Time) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("encoding lock command: %w", err)
	}
	if err := d.publish(ctx, d.topics.LockCommand(id), body); err != nil {
		d.logger.Error("lock command publish failed", "device_id", id, "action", action, "error", err)
		return Result{}, err
	}

	ev := d.appendEvent(device.Event{
		DeviceID:  id,
		Kind:      device.KindLock,
		Type:      EventCmdPrefix + string(action),
		Method:    string(decision.Method),
		Actor:     actor,
		Detail:    "command_sent",
		Timestamp: issued,
	})

	res := Result{
		Status:    StatusSent,
		Detail:    "command_sent",
		DeviceID:  id,
		Action:    string(action),
		Method:    decision.Method,
		Principal: decision.Principal,
		EventID:   ev.ID,
		IssuedAt:  issued,
	}

	if d.relock != nil {
		switch action {
		case ActionUnlock:
			at := d.relock.Arm(id, d.delay)
			if !at.IsZero() {
				res.RelockAt = &at
			}
		case ActionLock:
			d.relock.Cancel(id)
		}
	}

	d.logger.Info("lock command sent", "device_id", id, "action", action, "method", decision.Method)
	return res, nil
}

// DispatchLight publishes a lighting command. Lighting is not
// credential-protected.
func (d *Dispatcher) DispatchLight(ctx context.Context, lightID string, cmd LightCommand) (Result, error) {
	if lightID == "" {
		return Result{}, fmt.Errorf("%w: device id is required", ErrInvalidRequest)
	}
	if err := cmd.validate(); err != nil {
		return Result{}, err
	}

	currentlyOn := false
	if st, err := d.store.Read(lightID); err == nil {
		if st.Kind != device.KindLight {
			return Result{}, fmt.Errorf("%w: %s is %s", device.ErrKindMismatch, lightID, st.Kind)
		}
		currentlyOn, _ = st.Bool(device.AttrPower)
	}
	cmd = cmd.normalise(currentlyOn)

	body, err := json.Marshal(cmd)
	if err != nil {
		return Result{}, fmt.Errorf("encoding lighting command: %w", err)
	}

	issued := d.clock.Now()
	if err := d.publish(ctx, d.topics.LightingCommand(lightID), body); err != nil {
		d.logger.Error("lighting command publish failed", "device_id", lightID, "error", err)
		return Result{}, err
	}

	ev := d.appendEvent(device.Event{
		DeviceID:  lightID,
		Kind:      device.KindLight,
		Type:      EventCmdLight,
		Detail:    cmd.detail(),
		Timestamp: issued,
	})
	return Result{
		Status:   StatusSent,
		Detail:   "command_sent",
		DeviceID: lightID,
		Action:   "light",
		EventID:  ev.ID,
		IssuedAt: issued,
	}, nil
}

// RotatePIN replaces the shared PIN and records an audit entry. The PIN
// value never reaches the audit log.
func (d *Dispatcher) RotatePIN(ctx context.Context, actor, pin string) (uint64, error) {
	if d.pin == nil {
		return 0, fmt.Errorf("%w: pin rotation not configured", ErrInvalidRequest)
	}
	version, err := d.pin.Rotate(pin)
	if err != nil {
		return 0, err
	}

	d.logger.Info("lock pin rotated", "actor", actor, "version", version)
	if d.audit != nil {
		entry := &audit.AuditLog{
			Action:     audit.ActionPINRotated,
			EntityType: audit.EntityPIN,
			EntityID:   "lock-pin",
			UserID:     actor,
			Source:     audit.SourceAPI,
			Details:    map[string]any{"version": version},
			CreatedAt:  d.clock.Now(),
		}
		if err := d.audit.Create(ctx, entry); err != nil {
			d.logger.Warn("pin rotation audit failed", "error", err)
		}
	}
	return version, nil
}

// publish sends payload with exponential backoff. Input errors are not
// retried.
func (d *Dispatcher) publish(ctx context.Context, topic string, payload []byte) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.retry.InitialBackoff
	eb.MaxInterval = d.retry.MaxBackoff
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = eb
	if d.retry.Retries >= 0 {
		b = backoff.WithMaxRetries(b, uint64(d.retry.Retries)) //nolint:gosec // G115: checked non-negative
	}
	b = backoff.WithContext(b, ctx)

	attempt := 0
	op := func() error {
		attempt++
		err := d.pub.PublishCommand(topic, payload)
		if err == nil {
			return nil
		}
		if errors.Is(err, mqtt.ErrInvalidTopic) || errors.Is(err, mqtt.ErrPayloadTooLarge) || errors.Is(err, mqtt.ErrInvalidQoS) {
			return backoff.Permanent(err)
		}
		d.logger.Debug("publish attempt failed", "topic", topic, "attempt", attempt, "error", err)
		return err
	}

	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("%w: %s after %d attempts: %w", ErrTransport, topic, attempt, err)
	}
	return nil
}

// checkLock rejects an empty id or an id known to be another kind.
// Unknown ids pass: the lock may not have reported yet.
func (d *Dispatcher) checkLock(id string) error {
	if id == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidRequest)
	}
	st, err := d.store.Read(id)
	if err == nil && st.Kind != device.KindLock {
		return fmt.Errorf("%w: %s is %s", device.ErrKindMismatch, id, st.Kind)
	}
	return nil
}

func (d *Dispatcher) appendEvent(ev device.Event) device.Event {
	out, err := d.store.AppendEvent(ev)
	if err != nil {
		d.logger.Warn("event append failed", "device_id", ev.DeviceID, "type", ev.Type, "error", err)
		return ev
	}
	return out
}

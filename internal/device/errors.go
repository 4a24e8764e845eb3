package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device id has no state.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDeviceID is returned for an empty device id.
	ErrInvalidDeviceID = errors.New("device: invalid id")

	// ErrInvalidKind is returned when a kind value is not recognised.
	ErrInvalidKind = errors.New("device: invalid kind")

	// ErrKindMismatch is returned when an update names a different kind
	// than the one the device was first seen as.
	ErrKindMismatch = errors.New("device: kind mismatch")

	// ErrStaleUpdate is returned when stale rejection is enabled and an
	// update carries a timestamp older than the stored state.
	ErrStaleUpdate = errors.New("device: stale update")

	// ErrNotALock is returned when lock-only operations target another kind.
	ErrNotALock = errors.New("device: not a lock")
)

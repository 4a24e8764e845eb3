package command

import "errors"

var (
	// ErrTransport is returned when the command could not be published.
	ErrTransport = errors.New("command: transport failure")

	// ErrInvalidAction is returned for an action other than lock or unlock.
	ErrInvalidAction = errors.New("command: invalid action")

	// ErrInvalidRequest is returned for requests missing required fields.
	ErrInvalidRequest = errors.New("command: invalid request")
)

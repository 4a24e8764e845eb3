package auth

import "errors"

// Sentinel errors for auth operations.
var (
	ErrUnknownMethod     = errors.New("unknown credential method")
	ErrReservedMethod    = errors.New("credential method is reserved for the system")
	ErrInvalidPIN        = errors.New("pin must be 4-12 digits")
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrPrincipalExists   = errors.New("principal already exists")
	ErrInvalidPrincipal  = errors.New("invalid principal")
	ErrTokenInvalid      = errors.New("invalid token")
)

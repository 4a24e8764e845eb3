package ingest

import "errors"

var (
	// ErrMalformedTopic is returned for topics outside the home/ scheme.
	ErrMalformedTopic = errors.New("ingest: malformed topic")

	// ErrMalformedPayload is returned when a payload does not decode to
	// the schema of its channel.
	ErrMalformedPayload = errors.New("ingest: malformed payload")

	// ErrUnknownDomain is returned for well-formed topics naming a device
	// domain the hub does not handle.
	ErrUnknownDomain = errors.New("ingest: unknown domain")

	// ErrAlreadyRunning is returned by Run while another Run is active.
	ErrAlreadyRunning = errors.New("ingest: adapter already running")
)

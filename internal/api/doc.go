// Package api implements the HTTP command surface and WebSocket event
// stream for the Gray Logic hub.
//
// This package provides:
//   - Device state and event reads backed by the in-memory store
//   - Lock commands verified by PIN, fingerprint proxy or face match
//   - Lighting commands
//   - Admin endpoints (PIN rotation, principal enrolment, audit) behind
//     a JWT bearer token with the admin role
//   - A WebSocket stream of fanout messages, one fanout subscription per
//     connection
//
// # Command results
//
// Lock commands answer with the dispatch result: 200 when sent, 403 with
// status "denied" and the reason when verification fails. Malformed
// requests answer 400 and bus failures 502.
//
// # Graceful Degradation
//
// The server runs without history or audit storage; the endpoints that
// need them answer 503.
package api

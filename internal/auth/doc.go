// Package auth verifies lock commands and admin requests.
//
// Three credential methods are accepted from clients:
//   - PIN: one shared code held in a PINCell, compared in constant time
//   - FINGERPRINT_PROXY: a per-principal secret stored as an Argon2id hash
//   - FACE: a probe scored against every enrolled template, decided by
//     a best-match policy that refuses ambiguous results
//
// A fourth method, AUTO, is reserved for the relock scheduler and is
// rejected when parsed from a request.
//
// Verification never returns an error for a bad credential. The outcome
// is a Decision value carrying either the matched principal or a
// DenyReason, so callers branch on data instead of on failures.
//
// Admin endpoints use HS256 JWT bearer tokens (see claims.go).
package auth

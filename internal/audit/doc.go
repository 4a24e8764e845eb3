// Package audit records administrative actions on the hub: PIN
// rotations, principal enrolment and removal. Entries live in the
// audit_logs table and are never updated.
package audit

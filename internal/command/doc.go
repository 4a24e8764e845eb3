// Package command turns verified requests into bus commands.
//
// Lock requests go through the credential verifier first. A denial is
// recorded as an auth_fail_<action> event and returned as a normal
// Result; nothing is published and the relock timer is left alone. An
// authorised request is published to home/lock/<id>/cmd (retried with
// exponential backoff), recorded as a cmd_<action> event, and then arms
// or cancels the relock timer.
//
// Publish failures after the last retry surface as ErrTransport, which
// callers must keep distinct from a denial.
package command

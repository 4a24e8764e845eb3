// Package fanout delivers device state and event changes to live
// subscribers such as WebSocket sessions.
//
// Broadcast never blocks. Each Subscription owns a bounded queue; when a
// subscriber falls behind, the oldest undelivered message is dropped and
// the subscription's drop counter is incremented. Messages sent on the
// priority lane bypass the bounded queue, are never dropped, and are
// delivered before any queued normal message.
//
// Notifier adapts device.Observer callbacks to the named events UI
// clients consume (sensor_data_update, lock_state_update, ...).
package fanout

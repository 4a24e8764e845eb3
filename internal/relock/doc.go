// Package relock runs one cancellable auto-relock timer per lock.
//
// A successful unlock arms a timer. When it fires the scheduler reads
// the lock's current state from the device store and, only if the lock
// is still unlocked, asks the dispatcher to lock it with method AUTO.
// Arming again replaces the pending timer; any transition to locked,
// from a manual command or from the device itself, cancels it.
//
// Each timer carries a generation number. A callback whose generation
// no longer matches the armed one exits without touching the store, so
// a timer that fires concurrently with Cancel or a re-Arm is harmless.
package relock

// Package clock provides an injectable time source for components that
// schedule deferred work (the auto-relock scheduler) or stamp state
// (the device store).
//
// Production code uses Real(). Tests use Fake(), whose time only moves
// when Advance is called, so timer races can be reproduced exactly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	sched := relock.New(relock.Options{Clock: c, ...})
//	sched.Arm("FRONT_DOOR", 5*time.Second)
//	c.Advance(5 * time.Second) // fires the relock synchronously
package clock

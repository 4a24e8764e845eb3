// Package device holds the authoritative in-memory state of every device
// the hub mirrors from the bus.
//
// The Store is the single source of truth for sensors, locks, lights, and
// smoke alarms. Every write merges a partial attribute set into the prior
// state: a field absent from an update keeps its previous value. Writes to
// one device id are serialized; writes to different ids proceed in
// parallel. Reads return independent copies and never observe a
// half-applied merge.
//
// Components react to changes by registering an Observer. Observers run
// on the writer's goroutine after the write has committed and may call
// back into the Store.
//
// # Usage
//
//	store := device.NewStore(device.Config{EventBuffer: 200})
//	store.AddObserver(notifier)
//
//	st, err := store.Upsert("FRONT_DOOR", device.KindLock,
//	    map[string]any{"locked": false, "last_method": "PIN"}, time.Now())
package device

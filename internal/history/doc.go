// Package history keeps a durable trail of device activity.
//
// Recorder is a device.Observer that queues every committed state change
// and event and writes them to SQLite on its own goroutine, so a slow disk
// never stalls the store. Telemetry mirrors sensor readings, smoke levels
// and lock activity into InfluxDB.
//
// Both are best-effort: the in-memory store stays authoritative and a
// failed write is logged and counted, never retried.
package history

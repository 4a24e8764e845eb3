// Package ingest mirrors device traffic from the home bus into the
// device store.
//
// Topics are parsed into a Route:
//
//	home/<sensor>/telemetry             sensor state
//	home/<sensor>/temperature_humidity  sensor state (legacy leaf)
//	home/lock/<id>/{state,event,cmd}
//	home/lighting/<id>/{state,event,cmd}
//	home/smoke_alarm/<id>/{state,event,cmd}
//
// The bus callback (OnMessage) only parses the topic and queues the
// message. A fixed set of workers drains the queues; a device id always
// hashes to the same worker so its messages apply in arrival order.
// Decoding happens on the worker, and malformed payloads are counted
// and logged, never returned to the bus client. Unknown domains and the
// hub's own cmd echoes are counted as ignored.
package ingest

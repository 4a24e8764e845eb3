// Package mqtt provides MQTT client connectivity for Gray Logic Hub.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) on home/hub/status
//
// # Topic Layout
//
//	home/<device_id>/temperature_humidity     legacy sensor readings
//	home/<device_id>/telemetry                generic sensor readings
//	home/<domain>/<device_id>/state           device state reports
//	home/<domain>/<device_id>/event           device event reports
//	home/<domain>/<device_id>/cmd             hub-issued commands
//
// where domain is one of lock, lighting, smoke_alarm.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Lock commands carry the PIN for device-side auditing; restrict the
//     home/lock/+/cmd ACL to the hub and lock firmware
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.SubscribeAll(mqtt.Topics{}.IngestFilters(), 1, pipeline.OnMessage)
package mqtt

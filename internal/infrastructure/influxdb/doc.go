// Package influxdb provides InfluxDB connectivity for Gray Logic Hub.
//
// It wraps influxdb-client-go v2 to record sensor telemetry, smoke
// levels, and lock activity as time series. The sink is optional: with
// influxdb.enabled=false, Connect returns ErrDisabled and the hub runs
// without it.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil && !errors.Is(err, influxdb.ErrDisabled) {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteSensorReading("KITCHEN", map[string]any{"temperature": 21.5}, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking; batch errors arrive via SetOnError.
package influxdb

// Package influxdb mirrors the agent's telemetry into InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every telemetry
// report the agent publishes to ThingPlug can also be written here, along
// with connection state changes, so a local dashboard can chart the device
// without going through the platform.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTelemetry("dev01", time.Now(), map[string]string{"temp1": "23.50"})
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval); failures
// are delivered to the SetOnError callback. Connect and HealthCheck return
// errors directly.
package influxdb

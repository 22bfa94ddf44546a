// Package influxdb provides InfluxDB connectivity for the MELCloud bridge.
//
// It wraps the official influxdb-client-go v2 library with Gray Logic
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Room, tank, and flow temperature telemetry
//   - Energy consumption reported by the cloud
//   - Setpoint tracking for efficiency analysis
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteDeviceMetric(67890, "room_temperature_c", 21.5)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a
// callback. Connection and health check errors are returned directly.
package influxdb

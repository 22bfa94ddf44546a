package influxdb

import "errors"

// Sentinel errors for the telemetry client. Write failures never surface
// here: device metric writes are batched and asynchronous, so they report
// through the SetOnError callback instead.
var (
	// ErrNotConnected indicates the client lost its InfluxDB connection.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the startup ping was rejected.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled indicates telemetry is switched off in configuration.
	// The bridge runs without a telemetry sink in that case.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)

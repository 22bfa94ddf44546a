// Package bridge connects MELCloud climate devices to the Gray Logic
// MQTT bus.
//
// The bridge is the glue between the cloud client and Core: commands
// arriving on graylogic/command/melcloud/{device_id} are translated
// into device property writes, acknowledged on the ack topic, and the
// resulting state is published retained on the state topic. Devices
// are polled on an interval (staggered, MELCloud rate-limits hard) and
// state is only re-published when it actually changed.
//
// History recording and telemetry are optional: pass nil to run the
// bridge without SQLite or InfluxDB.
package bridge

package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceMetric writes a single device measurement to InfluxDB.
//
// This is the primary method for recording HVAC telemetry pulled from
// the cloud. The write is non-blocking; data is batched and sent
// asynchronously.
//
// Parameters:
//   - deviceID: MELCloud device identifier
//   - measurement: The metric name (e.g., "room_temperature_c", "target_temperature_c")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteDeviceMetric(67890, "room_temperature_c", 21.5)
//	client.WriteDeviceMetric(67890, "tank_temperature_c", 48.0)
func (c *Client) WriteDeviceMetric(deviceID int, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_metrics",
		map[string]string{
			"device_id":   strconv.Itoa(deviceID),
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteEnergyMetric writes an energy consumption measurement.
//
// MELCloud reports cumulative consumption per device; this records the
// reading for efficiency tracking.
//
// Parameters:
//   - deviceID: MELCloud device identifier
//   - energyKWh: Cumulative energy consumption in kWh
func (c *Client) WriteEnergyMetric(deviceID int, energyKWh float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"energy",
		map[string]string{
			"device_id": strconv.Itoa(deviceID),
		},
		map[string]interface{}{
			"energy_kwh": energyKWh,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., backfilled cloud data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

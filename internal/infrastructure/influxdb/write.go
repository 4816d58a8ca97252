package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// TelemetryMeasurement is the measurement plant readings are written under.
const TelemetryMeasurement = "plant_telemetry"

// WriteTelemetry writes one plant reading.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Pot identifier, stored as the device_id tag
//   - tags: Extra low-cardinality tags (e.g. emotion)
//   - fields: Reading values (moisture, temperature, light)
//   - timestamp: Sample time
//
// Example:
//
//	client.WriteTelemetry("pot-kitchen",
//	    map[string]string{"emotion": "Thirsty"},
//	    map[string]any{"moisture": 22.0, "temperature": 24.0, "light": 610.0},
//	    time.Now())
func (c *Client) WriteTelemetry(deviceID string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	allTags := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		allTags[k] = v
	}
	allTags["device_id"] = deviceID

	c.WritePoint(TelemetryMeasurement, allTags, fields, timestamp)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

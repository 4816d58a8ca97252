// Package influxdb provides InfluxDB connectivity for plant telemetry.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched writes and health monitoring. The readings recorder
// writes every recorded reading here when InfluxDB is enabled.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "plantpot",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTelemetry("pot-kitchen", map[string]string{"emotion": "Happy"},
//	    map[string]any{"moisture": 54.0}, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb

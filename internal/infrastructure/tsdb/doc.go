// Package tsdb provides time-series storage for plant telemetry.
//
// It writes to VictoriaMetrics using InfluxDB line protocol over HTTP and
// queries using PromQL. It uses only net/http.
//
// # Purpose
//
// Every recorded reading is written as one plant_telemetry point tagged with
// device_id and emotion. VictoriaMetrics exposes the fields as
// plant_telemetry_moisture, plant_telemetry_temperature and
// plant_telemetry_light, which the API's series endpoint queries.
//
// # Usage
//
//	cfg := config.TSDBConfig{
//	    Enabled:       true,
//	    URL:           "http://localhost:8428",
//	    BatchSize:     1000,
//	    FlushInterval: 1,
//	}
//
//	client, err := tsdb.Connect(ctx, cfg)
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
// Writes are batched internally and flushed on size threshold or timer.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are reported via a callback.
// Connection and health check errors are returned directly.
package tsdb

// Package readings stores classified plant telemetry.
//
// A Record is one reading of moisture, temperature and light together with
// the emotion derived from it. Records arrive two ways: through the HTTP
// API (Source "api") and from the live connection via a Recorder (Source
// "device"). The Recorder also forwards every reading to the configured
// time-series sinks.
package readings

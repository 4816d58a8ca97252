package telemetry

import (
	"fmt"
	"maps"
	"time"
)

// Values shown before the first sample arrives.
const (
	DefaultMoisture    = 60
	DefaultTemperature = 28
	DefaultLight       = 500
)

// Reading is the rolling "current" view of a device, built by merging
// samples shallowly: fields present in a sample overwrite, absent ones keep
// their previous value.
type Reading struct {
	DeviceID    string         `json:"deviceId,omitempty"`
	Timestamp   time.Time      `json:"ts"`
	Moisture    float64        `json:"moisture"`
	Temperature float64        `json:"temperature"`
	Light       float64        `json:"light"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// DefaultReading returns the reading a dashboard shows before any data.
func DefaultReading(deviceID string) Reading {
	return Reading{
		DeviceID:    deviceID,
		Moisture:    DefaultMoisture,
		Temperature: DefaultTemperature,
		Light:       DefaultLight,
	}
}

// Merge returns a new Reading with the fields of s applied. r is not modified.
func (r Reading) Merge(s Sample) Reading {
	out := r
	if s.DeviceID != "" {
		out.DeviceID = s.DeviceID
	}
	if !s.Timestamp.IsZero() {
		out.Timestamp = s.Timestamp
	}
	if s.Moisture != nil {
		out.Moisture = *s.Moisture
	}
	if s.Temperature != nil {
		out.Temperature = *s.Temperature
	}
	if s.Light != nil {
		out.Light = *s.Light
	}
	if len(s.Extra) > 0 {
		out.Extra = make(map[string]any, len(r.Extra)+len(s.Extra))
		maps.Copy(out.Extra, r.Extra)
		maps.Copy(out.Extra, s.Extra)
	}
	return out
}

// Emotion classifies the reading.
func (r Reading) Emotion() Emotion {
	return Classify(r.Moisture, r.Temperature, r.Light)
}

// Validate checks the core metrics are inside their physical ranges.
func (r Reading) Validate() error {
	switch {
	case r.Moisture < MinMoisture || r.Moisture > MaxMoisture:
		return fmt.Errorf("moisture %.1f out of range [%d, %d]", r.Moisture, MinMoisture, MaxMoisture)
	case r.Temperature < MinTemperature || r.Temperature > MaxTemperature:
		return fmt.Errorf("temperature %.1f out of range [%d, %d]", r.Temperature, MinTemperature, MaxTemperature)
	case r.Light < MinLight || r.Light > MaxLight:
		return fmt.Errorf("light %.1f out of range [%d, %d]", r.Light, MinLight, MaxLight)
	}
	return nil
}

package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Wire field names shared by every transport.
const (
	fieldDeviceID    = "deviceId"
	fieldTimestamp   = "ts"
	fieldMoisture    = "moisture"
	fieldTemperature = "temperature"
	fieldLight       = "light"
)

// Sample is one telemetry message as received from a device.
//
// Moisture, Temperature and Light are nil when the device did not send
// them. Extra holds any other fields verbatim. A Sample is never modified
// after it has been emitted.
type Sample struct {
	DeviceID    string
	Timestamp   time.Time
	Moisture    *float64
	Temperature *float64
	Light       *float64
	Extra       map[string]any
}

// Float returns a pointer to v, for building samples by hand.
func Float(v float64) *float64 {
	return &v
}

// IsComplete reports whether all three core metrics are present.
func (s Sample) IsComplete() bool {
	return s.Moisture != nil && s.Temperature != nil && s.Light != nil
}

// DecodeSample parses a JSON telemetry payload.
//
// deviceID is used when the payload has no deviceId; receivedAt is used when
// it has no ts. ts may be RFC 3339 text or epoch milliseconds. Null metrics
// are treated as absent.
func DecodeSample(payload []byte, deviceID string, receivedAt time.Time) (Sample, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Sample{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if raw == nil {
		return Sample{}, fmt.Errorf("%w: expected a JSON object", ErrMalformedPayload)
	}
	if dec.More() {
		return Sample{}, fmt.Errorf("%w: trailing data after object", ErrMalformedPayload)
	}

	s := Sample{
		DeviceID:  deviceID,
		Timestamp: receivedAt,
	}

	for key, value := range raw {
		var err error
		switch key {
		case fieldDeviceID:
			id, ok := value.(string)
			if !ok {
				err = fmt.Errorf("%s must be a string", key)
			} else if id != "" {
				s.DeviceID = id
			}
		case fieldTimestamp:
			s.Timestamp, err = decodeTimestamp(value, receivedAt)
		case fieldMoisture:
			s.Moisture, err = decodeMetric(key, value)
		case fieldTemperature:
			s.Temperature, err = decodeMetric(key, value)
		case fieldLight:
			s.Light, err = decodeMetric(key, value)
		default:
			if s.Extra == nil {
				s.Extra = make(map[string]any)
			}
			s.Extra[key] = plain(value)
		}
		if err != nil {
			return Sample{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
	}

	return s, nil
}

func decodeMetric(key string, value any) (*float64, error) {
	if value == nil {
		return nil, nil
	}
	n, ok := value.(json.Number)
	if !ok {
		return nil, fmt.Errorf("%s must be a number", key)
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &f, nil
}

func decodeTimestamp(value any, fallback time.Time) (time.Time, error) {
	switch v := value.(type) {
	case nil:
		return fallback, nil
	case json.Number:
		ms, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return time.Time{}, fmt.Errorf("ts: %w", err)
			}
			ms = int64(f)
		}
		return time.UnixMilli(ms).UTC(), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("ts: %w", err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("ts must be a string or epoch milliseconds")
	}
}

// plain converts json.Number values (at any depth) back to float64 so Extra
// looks like a normal encoding/json result.
func plain(value any) any {
	switch v := value.(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			out[k] = plain(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = plain(inner)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON writes the sample in the same flat shape devices send,
// with ts as RFC 3339.
func (s Sample) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+5)
	maps.Copy(out, s.Extra)
	out[fieldDeviceID] = s.DeviceID
	out[fieldTimestamp] = s.Timestamp.Format(time.RFC3339Nano)
	if s.Moisture != nil {
		out[fieldMoisture] = *s.Moisture
	}
	if s.Temperature != nil {
		out[fieldTemperature] = *s.Temperature
	}
	if s.Light != nil {
		out[fieldLight] = *s.Light
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON. Missing ts becomes the zero time.
func (s *Sample) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeSample(data, "", time.Time{})
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

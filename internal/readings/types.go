package readings

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/plantpot-core/internal/telemetry"
)

// Source identifies how a record was created.
type Source string

const (
	SourceAPI    Source = "api"
	SourceDevice Source = "device"
)

// Record is one stored, classified reading.
type Record struct {
	ID          string            `json:"id"`
	DeviceID    string            `json:"deviceId"`
	Moisture    float64           `json:"moisture"`
	Temperature float64           `json:"temperature"`
	Light       float64           `json:"light"`
	Emotion     telemetry.Emotion `json:"emotion"`
	Source      Source            `json:"source"`

	// RecordedAt is when the device took the reading.
	RecordedAt time.Time `json:"recordedAt"`

	// CreatedAt is when the record was stored.
	CreatedAt time.Time `json:"createdAt"`
}

// NewRecord classifies r and wraps it in a Record with a fresh ID.
// A zero r.Timestamp is replaced by now.
func NewRecord(r telemetry.Reading, source Source, now time.Time) *Record {
	recordedAt := r.Timestamp
	if recordedAt.IsZero() {
		recordedAt = now
	}
	return &Record{
		ID:          uuid.NewString(),
		DeviceID:    r.DeviceID,
		Moisture:    r.Moisture,
		Temperature: r.Temperature,
		Light:       r.Light,
		Emotion:     r.Emotion(),
		Source:      source,
		RecordedAt:  recordedAt.UTC(),
		CreatedAt:   now.UTC(),
	}
}

// Reading returns the record's metrics as a telemetry.Reading.
func (r *Record) Reading() telemetry.Reading {
	return telemetry.Reading{
		DeviceID:    r.DeviceID,
		Timestamp:   r.RecordedAt,
		Moisture:    r.Moisture,
		Temperature: r.Temperature,
		Light:       r.Light,
	}
}

// CreateRequest is the body of a create-reading request.
type CreateRequest struct {
	DeviceID    string     `json:"deviceId,omitempty"`
	Moisture    *float64   `json:"moisture"`
	Temperature *float64   `json:"temperature"`
	Light       *float64   `json:"light"`
	Timestamp   *time.Time `json:"ts,omitempty"`
}

// Reading validates req and converts it. defaultDeviceID is used when the
// request names no device.
func (req CreateRequest) Reading(defaultDeviceID string) (telemetry.Reading, error) {
	var missing []string
	if req.Moisture == nil {
		missing = append(missing, "moisture")
	}
	if req.Temperature == nil {
		missing = append(missing, "temperature")
	}
	if req.Light == nil {
		missing = append(missing, "light")
	}
	if len(missing) > 0 {
		return telemetry.Reading{}, fmt.Errorf("%w: %w: missing %s",
			ErrInvalidReading, telemetry.ErrIncompleteReading, strings.Join(missing, ", "))
	}

	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		deviceID = defaultDeviceID
	}

	r := telemetry.Reading{
		DeviceID:    deviceID,
		Moisture:    *req.Moisture,
		Temperature: *req.Temperature,
		Light:       *req.Light,
	}
	if req.Timestamp != nil {
		r.Timestamp = *req.Timestamp
	}
	if err := r.Validate(); err != nil {
		return telemetry.Reading{}, fmt.Errorf("%w: %w", ErrInvalidReading, err)
	}
	return r, nil
}

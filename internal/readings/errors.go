package readings

import "errors"

var (
	// ErrNotFound is returned when no reading matches the query.
	ErrNotFound = errors.New("reading not found")

	// ErrInvalidReading is returned when a reading is missing a metric or a
	// metric is outside its physical range.
	ErrInvalidReading = errors.New("invalid reading")

	// ErrRecorderStopped is returned by Start after Stop.
	ErrRecorderStopped = errors.New("recorder stopped")
)

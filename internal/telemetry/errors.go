package telemetry

import "errors"

var (
	// ErrMalformedPayload indicates a payload could not be decoded as a sample.
	ErrMalformedPayload = errors.New("telemetry: malformed payload")

	// ErrIncompleteReading indicates a reading is missing one of the core metrics.
	ErrIncompleteReading = errors.New("telemetry: incomplete reading")
)

package connectivity

import (
	"errors"
	"fmt"
)

// Error taxonomy roots. Use errors.Is to classify.
var (
	// ErrConfiguration indicates the selected transport is missing a
	// required setting. Raised before any network attempt.
	ErrConfiguration = errors.New("connectivity: configuration error")

	// ErrConnect indicates a transport failed to establish its link.
	ErrConnect = errors.New("connectivity: connect failed")

	// ErrStream indicates a malformed payload or a failed fetch on a live link.
	ErrStream = errors.New("connectivity: stream error")
)

// Configuration errors.
var (
	ErrMissingRESTURL      = fmt.Errorf("%w: missing REST base URL", ErrConfiguration)
	ErrMissingWebSocketURL = fmt.Errorf("%w: missing WebSocket URL", ErrConfiguration)
	ErrMissingBrokerURL    = fmt.Errorf("%w: missing MQTT broker URL", ErrConfiguration)
	ErrUnknownTransport    = fmt.Errorf("%w: unknown transport", ErrConfiguration)
)

var (
	// ErrConnectInProgress is returned by Connect while another Connect on
	// the same Service has not finished.
	ErrConnectInProgress = errors.New("connectivity: connect already in progress")

	// ErrClosed is returned by a Controller after Close.
	ErrClosed = errors.New("connectivity: controller closed")
)

// ConnectError reports a failure to establish a link.
//
// Detail is the human-readable status detail shown while the Service is in
// StateError.
type ConnectError struct {
	Detail string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return e.Detail
	}
	return e.Detail + ": " + e.Err.Error()
}

func (e *ConnectError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConnect}
	}
	return []error{ErrConnect, e.Err}
}

// StreamError reports a non-fatal problem on a live link.
type StreamError struct {
	Detail string
	Err    error
}

func (e *StreamError) Error() string {
	if e.Err == nil {
		return e.Detail
	}
	return e.Detail + ": " + e.Err.Error()
}

func (e *StreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStream}
	}
	return []error{ErrStream, e.Err}
}

// statusDetail returns the detail shown when err fails a connect.
func statusDetail(err error) string {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Detail
	}
	return err.Error()
}

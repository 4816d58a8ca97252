package broker

import "errors"

var (
	// ErrStartFailed indicates the broker could not bind its listener or load hooks.
	ErrStartFailed = errors.New("broker: start failed")

	// ErrClosed is returned when publishing through a closed broker.
	ErrClosed = errors.New("broker: closed")
)

// Package connectivity acquires live telemetry from a plant pot over one of
// four transports and manages the connection lifecycle.
//
// The package is layered:
//
//	Driver (mock | rest | ws | mqtt)  ->  Service  ->  Controller  ->  consumers
//
// A Driver knows how to open one kind of link and report samples. A Service
// owns exactly one Driver, presents Connect/Disconnect, and re-emits driver
// events as status, data and error events in a shared vocabulary. A
// Controller owns one Service, tracks whether the user asked to be
// connected, reconnects with exponential backoff (1s doubling to 10s), and
// replaces the Service when the configuration changes.
//
// # Events
//
// Events are delivered synchronously on the goroutine where the driver
// reports them. Once Disconnect returns, no event from the torn-down link is
// delivered. Callbacks must not call Connect or Disconnect synchronously;
// start a goroutine or arm a timer instead.
//
// # Errors
//
// Configuration problems wrap ErrConfiguration and fail before any network
// attempt. Failures to establish a link are *ConnectError (ErrConnect).
// Malformed payloads and failed polls on a live link are *StreamError
// (ErrStream); they are reported on the error channel and never disconnect.
// Losing a live link is a status (StateDisconnected), not an error.
//
// # Usage
//
//	ctrl := connectivity.NewController(cfg, connectivity.ControllerOptions{Logger: log})
//	defer ctrl.Close()
//
//	unsub := ctrl.OnData(func(r telemetry.Reading) { ... })
//	defer unsub()
//
//	if err := ctrl.Connect(ctx); err != nil {
//	    // a retry is already scheduled
//	}
package connectivity

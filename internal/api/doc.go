// Package api implements the HTTP REST API and WebSocket server for plantpot-core.
//
// This package provides:
//   - REST endpoints for creating and querying stored readings
//   - Connection endpoints that drive the device connection controller
//   - WebSocket hub relaying live telemetry and connection status
//   - Prometheus exposition and a JSON runtime metrics summary
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server sits between dashboards and the connectivity controller.
// Devices that cannot hold a telemetry link open POST readings directly;
// the legacy /api/plants prefix is kept for firmware built against it.
//
// The server lifecycle follows the other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Graceful Degradation
//
// The series route needs a time-series database. Without one it returns
// 503 and every other route keeps working.
package api

// Package dashboard serves the browser dashboard for a single plant pot.
//
// The page is a small static bundle embedded with go:embed. It reads the
// connection snapshot and reading history from /api/v1 and follows live
// telemetry over the /api/v1/ws hub, so it needs no build step.
//
// Handler also accepts a directory override for working on the assets
// without recompiling. Unknown paths fall back to index.html.
package dashboard

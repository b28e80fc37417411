// Package handler implements the HTTP API for footprint.
//
// # Handlers
//
// ScanHandler starts, stops, lists and deletes scans and exposes what a scan
// found: its stored events, its entity graph in any export format, the raw
// event tree and the options it ran with. It also lists the registered
// modules.
//
// # API Design
//
// Routes are mounted on a chi router by Routes. Scan resources live under
// /api/scans/{id}. Errors are returned as JSON with an {error, details}
// body and a status code derived from the service error.
//
// # Server-Sent Events
//
// /api/events/stream streams scan lifecycle and scan events through the SSE
// hub. Forward feeds the hub from the service EventBus. A "scan" query
// parameter limits the stream to one scan.
package handler

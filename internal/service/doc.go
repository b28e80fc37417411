// Package service implements the scan controller for footprint.
//
// ScanService sits between the HTTP handlers and CLI on one side and the
// dispatcher, module registry and event store on the other. It turns a scan
// request into a running scan and answers questions about finished ones.
//
// # Scan lifecycle
//
// Start parses the target (an unclassifiable target fails before anything is
// stored), selects modules by use case, drops modules the target can never
// reach, configures fresh module instances and runs a dispatcher in the
// background. Every published event is persisted and forwarded to the
// EventBus. Stop cancels the scan's context; events already produced are kept
// and the scan ends ABORTED.
//
// # Event System
//
// The EventBus fans scan lifecycle events and published scan events out to
// subscribers, typically the SSE hub.
package service

// Package module defines the contract between scan modules and the core.
//
// A module declares the event types it watches and produces in a Descriptor,
// is configured once per scan, and receives events through HandleEvent.
// New events are emitted through the Notify callback, which links them to the
// event being handled.
//
// # Per-scan state
//
// Each module gets a fresh State per scan holding its dedup filter and error
// state. The dispatcher owns it; modules never share it.
//
// # Failures
//
// Modules report external failures as errors wrapping ErrUpstreamFetch (see
// UpstreamError and Retry) or ErrAuthentication. A failing module is disabled
// for the rest of the scan; other modules keep running.
//
// # Registry
//
// Registry is the module table built at startup. The scan controller selects
// modules from it and hands their descriptors to the dependency resolver.
package module

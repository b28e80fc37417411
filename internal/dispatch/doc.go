// Package dispatch delivers scan events to the modules that watch them.
//
// A Dispatcher is built per scan. Publishing an event records it with every
// Sink and queues it for each subscribed module except its producer. Each
// module drains its queue on its own goroutine, so events from one producer
// reach a given consumer in the order they were emitted.
//
// Before a delivery the dispatcher checks, in order, the scan's stop flag
// (context cancellation), the module's error state, and the module's dedup
// filter. Run returns once nothing is queued or being handled.
package dispatch

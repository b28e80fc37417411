// Package repository defines the event store used by scans.
//
// A scan row records the target and lifecycle; every event a scan publishes
// is stored with its source id and source data so provenance can be rebuilt
// later without the in-memory event tree. The sqlite subpackage is the only
// implementation.
//
// # Schema Migration
//
// The sqlite store applies embedded goose migrations on open, so an existing
// database is upgraded in place.
package repository

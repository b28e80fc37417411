// Package domain defines the core types of the footprint scan orchestrator.
//
// This package has no database or network dependencies. Everything else in
// the repository builds on these types.
//
// # Target
//
// Target is the scan's root identity (a hostname, IP, netblock, e-mail, ...)
// together with the aliases modules discover for it during the scan. Matches
// answers whether a value belongs to the target, optionally accepting parent
// or child domains. DetectTargetType and ParseTarget classify raw seed input.
//
// # Events
//
// Event is an immutable record of one discovered fact. Every event except the
// root carries a pointer to the event that caused it, so the events of a scan
// form a tree rooted at the target. Each event type has a classification:
//
//   - ENTITY events name real-world objects and become provenance graph nodes
//   - DATA events are supporting evidence
//   - INTERNAL events are scan bookkeeping
//
// # Provenance graph
//
// ProvenanceGraph holds child to nearest-entity-ancestor edges derived from
// persisted events, plus the root values that exporters highlight.
package domain

package module

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// State is the per-scan, per-module arena: the dedup filter and error state.
// A fresh State is created for every scan and is only mutated by the
// dispatch worker that owns the module.
type State struct {
	mu       sync.Mutex
	module   string
	dedup    DedupMode
	seen     map[string]struct{}
	errored  bool
	reason   string
	failures int
	handled  int
}

// StateSnapshot is a read-only copy of a module's state
type StateSnapshot struct {
	Module   string `json:"module"`
	Seen     int    `json:"seen"`
	Handled  int    `json:"handled"`
	Failures int    `json:"failures"`
	Errored  bool   `json:"errored"`
	Reason   string `json:"reason,omitempty"`
}

// NewState creates an empty state for the described module
func NewState(d Descriptor) *State {
	mode := d.Dedup
	if mode == "" {
		mode = DedupData
	}
	return &State{
		module: d.Name,
		dedup:  mode,
		seen:   make(map[string]struct{}),
	}
}

// FirstSight records data in the dedup filter and reports whether this is
// the first time the module has seen it
func (s *State) FirstSight(data string) bool {
	key := data
	if s.dedup == DedupDigest {
		sum := sha256.Sum256([]byte(data))
		key = hex.EncodeToString(sum[:])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Errored reports whether the module has been disabled for the scan
func (s *State) Errored() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errored
}

// SetErrored disables the module for the rest of the scan. The first reason wins.
func (s *State) SetErrored(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.errored {
		s.errored = true
		s.reason = reason
	}
}

// RecordFailure counts an upstream failure and returns the running total
func (s *State) RecordFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	return s.failures
}

// RecordHandled counts a completed delivery
func (s *State) RecordHandled() {
	s.mu.Lock()
	s.handled++
	s.mu.Unlock()
}

// Snapshot returns a copy of the state
func (s *State) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StateSnapshot{
		Module:   s.module,
		Seen:     len(s.seen),
		Handled:  s.handled,
		Failures: s.failures,
		Errored:  s.errored,
		Reason:   s.reason,
	}
}

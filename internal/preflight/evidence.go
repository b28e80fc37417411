// Package preflight inspects the host footprint runs on and recommends
// module settings and a scan posture that fit it.
//
// Every probe records Evidence with a confidence score; the recommendation
// is synthesized from the best evidence per property, so a weak guess never
// outweighs a direct observation.
package preflight

import (
	"fmt"
	"strings"
)

// Category groups related evidence
type Category string

const (
	CategoryEnvironment Category = "environment"
	CategoryPermissions Category = "permissions"
	CategoryNetwork     Category = "network"
	CategoryCapability  Category = "capability"
)

// Evidence is one observation about the host
type Evidence struct {
	Category   Category `json:"category" yaml:"category"`
	Property   string   `json:"property" yaml:"property"`
	Value      any      `json:"value" yaml:"value"`
	Confidence float64  `json:"confidence" yaml:"confidence"` // 0.0-1.0
	Source     string   `json:"source" yaml:"source"`         // e.g. "procfs", "probe"
	Method     string   `json:"method" yaml:"method"`         // e.g. "/.dockerenv exists"
}

func observe(cat Category, prop string, value any, conf float64, source, method string) Evidence {
	return Evidence{
		Category:   cat,
		Property:   prop,
		Value:      value,
		Confidence: conf,
		Source:     source,
		Method:     method,
	}
}

// String renders the value for tables
func (e Evidence) String() string {
	if s, ok := e.Value.([]string); ok {
		return strings.Join(s, ", ")
	}
	return fmt.Sprintf("%v", e.Value)
}

// Set collects evidence from every probe
type Set struct {
	items []Evidence
}

// Add appends evidence
func (s *Set) Add(items ...Evidence) {
	s.items = append(s.items, items...)
}

// All returns the evidence in the order it was gathered
func (s *Set) All() []Evidence {
	return s.items
}

// Best returns the highest-confidence evidence for a property
func (s *Set) Best(cat Category, prop string) (Evidence, bool) {
	var (
		best  Evidence
		found bool
	)
	for _, e := range s.items {
		if e.Category != cat || e.Property != prop {
			continue
		}
		if !found || e.Confidence > best.Confidence {
			best = e
			found = true
		}
	}
	return best, found
}

// Bool reports the best boolean value for a property; missing or
// non-boolean evidence counts as false
func (s *Set) Bool(cat Category, prop string) bool {
	e, ok := s.Best(cat, prop)
	if !ok {
		return false
	}
	b, _ := e.Value.(bool)
	return b
}

// String returns the best string value for a property
func (s *Set) String(cat Category, prop string) (string, bool) {
	e, ok := s.Best(cat, prop)
	if !ok {
		return "", false
	}
	v, ok := e.Value.(string)
	return v, ok
}

package domain

import "strings"

// ProvenanceEdge links an entity to its nearest entity ancestor
type ProvenanceEdge struct {
	Child  string `json:"child" yaml:"child"`
	Parent string `json:"parent" yaml:"parent"`
}

// ProvenanceGraph is the derived view handed to the graph exporters
type ProvenanceGraph struct {
	// Roots are the scan's root target values; exporters highlight them
	Roots []string         `json:"roots" yaml:"roots"`
	Edges []ProvenanceEdge `json:"edges" yaml:"edges"`
}

// NewProvenanceGraph creates a graph over the given edges
func NewProvenanceGraph(roots []string, edges []ProvenanceEdge) *ProvenanceGraph {
	if edges == nil {
		edges = make([]ProvenanceEdge, 0)
	}
	return &ProvenanceGraph{Roots: roots, Edges: edges}
}

// IsRoot reports whether label is one of the root target values
func (g *ProvenanceGraph) IsRoot(label string) bool {
	for _, r := range g.Roots {
		if strings.EqualFold(r, label) {
			return true
		}
	}
	return false
}

// Nodes returns every label that appears in an edge, in order of first
// appearance (child before parent within an edge).
func (g *ProvenanceGraph) Nodes() []string {
	seen := make(map[string]bool, len(g.Edges)*2)
	var nodes []string
	for _, e := range g.Edges {
		for _, label := range [2]string{e.Child, e.Parent} {
			if !seen[label] {
				seen[label] = true
				nodes = append(nodes, label)
			}
		}
	}
	return nodes
}

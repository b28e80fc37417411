package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"sync"

	"footprint/internal/domain"
)

const (
	rootColor  = "#f00"
	nodeColor  = "#000"
	layoutSpan = 1000
)

// JSONCodec renders a node/edge list with random layout coordinates, the
// shape sigma.js loads directly
type JSONCodec struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// JSONOption configures a JSONCodec
type JSONOption func(*JSONCodec)

// WithRand fixes the layout source, for reproducible output
func WithRand(r *rand.Rand) JSONOption {
	return func(c *JSONCodec) { c.rnd = r }
}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec(opts ...JSONOption) *JSONCodec {
	c := &JSONCodec{}
	for _, opt := range opts {
		opt(c)
	}
	if c.rnd == nil {
		c.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return c
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

type jsonGraph struct {
	Nodes []jsonNode `json:"nodes"`
	Edges []jsonEdge `json:"edges"`
}

type jsonNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Size  string `json:"size"`
	Color string `json:"color"`
}

type jsonEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Export writes the graph. Edges point from the ancestor (source) to the
// child (target).
func (c *JSONCodec) Export(g *domain.ProvenanceGraph, w io.Writer) error {
	n := number(g)
	out := jsonGraph{
		Nodes: make([]jsonNode, 0, len(n.labels)),
		Edges: make([]jsonEdge, 0, len(g.Edges)),
	}

	c.mu.Lock()
	for i, label := range n.labels {
		color := nodeColor
		if g.IsRoot(label) {
			color = rootColor
		}
		out.Nodes = append(out.Nodes, jsonNode{
			ID:    strconv.Itoa(i + 1),
			Label: label,
			X:     c.rnd.IntN(layoutSpan) + 1,
			Y:     c.rnd.IntN(layoutSpan) + 1,
			Size:  "1",
			Color: color,
		})
	}
	c.mu.Unlock()

	for i, e := range g.Edges {
		out.Edges = append(out.Edges, jsonEdge{
			ID:     strconv.Itoa(i + 1),
			Source: strconv.Itoa(n.ids[e.Parent]),
			Target: strconv.Itoa(n.ids[e.Child]),
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

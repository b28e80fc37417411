package codec

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"footprint/internal/domain"
)

// YAMLCodec reads and writes the plain edge list, for saving a graph and
// re-rendering it later in another format
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

type yamlGraph struct {
	Roots []string   `yaml:"roots,omitempty"`
	Edges []yamlEdge `yaml:"edges"`
}

type yamlEdge struct {
	Child  string `yaml:"child"`
	Parent string `yaml:"parent"`
}

// Parse imports a graph from YAML
func (c *YAMLCodec) Parse(r io.Reader) (*domain.ProvenanceGraph, error) {
	var yg yamlGraph
	if err := yaml.NewDecoder(r).Decode(&yg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	edges := make([]domain.ProvenanceEdge, 0, len(yg.Edges))
	for i, ye := range yg.Edges {
		if ye.Child == "" || ye.Parent == "" {
			return nil, fmt.Errorf("edge %d: child and parent are required", i)
		}
		edges = append(edges, domain.ProvenanceEdge{Child: ye.Child, Parent: ye.Parent})
	}
	return domain.NewProvenanceGraph(yg.Roots, edges), nil
}

// Export exports the graph to YAML
func (c *YAMLCodec) Export(g *domain.ProvenanceGraph, w io.Writer) error {
	yg := yamlGraph{
		Roots: g.Roots,
		Edges: make([]yamlEdge, 0, len(g.Edges)),
	}
	for _, e := range g.Edges {
		yg.Edges = append(yg.Edges, yamlEdge{Child: e.Child, Parent: e.Parent})
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&yg); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return nil
}

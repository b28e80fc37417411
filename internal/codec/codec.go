package codec

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"footprint/internal/domain"
)

// Importer reads a provenance graph from a serialized form
type Importer interface {
	Parse(r io.Reader) (*domain.ProvenanceGraph, error)
	Format() string
}

// Exporter renders a provenance graph for viewers and external tools
type Exporter interface {
	Export(g *domain.ProvenanceGraph, w io.Writer) error
	Format() string
}

// ErrUnknownFormat is returned by Lookup for unsupported formats
var ErrUnknownFormat = errors.New("unknown graph format")

// Lookup returns the exporter for format
func Lookup(format string) (Exporter, error) {
	switch format {
	case "json", "":
		return NewJSONCodec(), nil
	case "gexf":
		return NewGEXFCodec(), nil
	case "yaml":
		return NewYAMLCodec(), nil
	}
	return nil, fmt.Errorf("%w: %q (supported: %v)", ErrUnknownFormat, format, Formats())
}

// Formats lists the supported export formats
func Formats() []string {
	f := []string{"json", "gexf", "yaml"}
	sort.Strings(f)
	return f
}

// ContentType returns the HTTP media type for an export format
func ContentType(format string) string {
	switch format {
	case "gexf":
		return "application/gexf+xml"
	case "yaml":
		return "application/yaml"
	}
	return "application/json"
}

// numbering assigns 1-based node ids in order of first appearance
type numbering struct {
	labels []string
	ids    map[string]int
}

func number(g *domain.ProvenanceGraph) *numbering {
	n := &numbering{ids: make(map[string]int)}
	for _, label := range g.Nodes() {
		n.labels = append(n.labels, label)
		n.ids[label] = len(n.labels)
	}
	return n
}

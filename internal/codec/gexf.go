package codec

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"footprint/internal/domain"
)

// GEXFCodec renders a GEXF 1.2 document for Gephi and similar tools
type GEXFCodec struct {
	// Title goes into the document meta description
	Title string
}

// NewGEXFCodec creates a new GEXF codec
func NewGEXFCodec() *GEXFCodec {
	return &GEXFCodec{Title: "footprint provenance graph"}
}

// Format returns the codec format identifier
func (c *GEXFCodec) Format() string {
	return "gexf"
}

type gexfDoc struct {
	XMLName xml.Name  `xml:"gexf"`
	XMLNS   string    `xml:"xmlns,attr"`
	VizNS   string    `xml:"xmlns:viz,attr"`
	Version string    `xml:"version,attr"`
	Meta    gexfMeta  `xml:"meta"`
	Graph   gexfGraph `xml:"graph"`
}

type gexfMeta struct {
	Creator     string `xml:"creator"`
	Description string `xml:"description"`
}

type gexfGraph struct {
	Mode        string     `xml:"mode,attr"`
	DefaultEdge string     `xml:"defaultedgetype,attr"`
	Nodes       []gexfNode `xml:"nodes>node"`
	Edges       []gexfEdge `xml:"edges>edge"`
}

type gexfNode struct {
	ID    string    `xml:"id,attr"`
	Label string    `xml:"label,attr"`
	Color gexfColor `xml:"viz:color"`
}

type gexfColor struct {
	R int `xml:"r,attr"`
	G int `xml:"g,attr"`
	B int `xml:"b,attr"`
}

type gexfEdge struct {
	ID     string `xml:"id,attr"`
	Source string `xml:"source,attr"`
	Target string `xml:"target,attr"`
}

// Export writes the graph as GEXF with root values colored red
func (c *GEXFCodec) Export(g *domain.ProvenanceGraph, w io.Writer) error {
	n := number(g)
	doc := gexfDoc{
		XMLNS:   "http://gexf.net/1.2",
		VizNS:   "http://gexf.net/1.2/viz",
		Version: "1.2",
		Meta:    gexfMeta{Creator: "footprint", Description: c.Title},
		Graph: gexfGraph{
			Mode:        "static",
			DefaultEdge: "undirected",
			Nodes:       make([]gexfNode, 0, len(n.labels)),
			Edges:       make([]gexfEdge, 0, len(g.Edges)),
		},
	}

	for i, label := range n.labels {
		node := gexfNode{ID: strconv.Itoa(i + 1), Label: label}
		if g.IsRoot(label) {
			node.Color.R = 255
		}
		doc.Graph.Nodes = append(doc.Graph.Nodes, node)
	}
	for i, e := range g.Edges {
		doc.Graph.Edges = append(doc.Graph.Edges, gexfEdge{
			ID:     strconv.Itoa(i + 1),
			Source: strconv.Itoa(n.ids[e.Parent]),
			Target: strconv.Itoa(n.ids[e.Child]),
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode GEXF: %w", err)
	}
	return encoder.Flush()
}

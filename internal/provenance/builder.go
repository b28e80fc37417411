// Package provenance folds a scan's event history into a graph of entities.
//
// Every entity is linked to its nearest entity ancestors: data events in
// between are climbed through and left out of the graph. Rows come from the
// event store in the Row shape below, so the builder never depends on a
// storage layout.
package provenance

import (
	"sort"

	"footprint/internal/domain"
)

// Row is one persisted event as seen by the builder
type Row struct {
	// Label is the event data, the node name in the graph
	Label string
	// ParentLabel is the data of the source event, domain.RootLabel for the root
	ParentLabel string
	// OriginID identifies the source event occurrence
	OriginID       string
	Classification domain.Classification
	EventType      string
}

func (r Row) valid() bool {
	return r.Label != "" && r.ParentLabel != "" && r.OriginID != "" && r.Classification.Valid()
}

// Edge links a child entity to an ancestor entity
type Edge = domain.ProvenanceEdge

// Result is the outcome of BuildEdges
type Result struct {
	Edges []Edge
	// Skipped counts malformed rows
	Skipped int
	// Cycles counts climbs cut short by a revisited origin
	Cycles int
}

// Graph wraps the edges for the exporters
func (r *Result) Graph(roots []string) *domain.ProvenanceGraph {
	return domain.NewProvenanceGraph(roots, r.Edges)
}

type parentRef struct {
	label  string
	origin string
}

type index struct {
	entities map[string]bool
	order    []string
	parents  map[string][]parentRef
}

// BuildEdges links every entity to its nearest entity ancestors.
//
// ENTITY rows are kept only when their type is in filter (if filter is
// non-empty); INTERNAL rows always anchor the graph. Edges touching
// domain.RootLabel and self-edges are dropped. The result is sorted.
func BuildEdges(rows []Row, filter []string) *Result {
	res := &Result{}
	idx := buildIndex(rows, filter, res)

	seen := make(map[Edge]bool)
	add := func(child, parent string) {
		if child == parent || child == domain.RootLabel || parent == domain.RootLabel {
			return
		}
		e := Edge{Child: child, Parent: parent}
		if !seen[e] {
			seen[e] = true
			res.Edges = append(res.Edges, e)
		}
	}

	for _, entity := range idx.order {
		for _, p := range idx.parents[entity] {
			if idx.entities[p.label] {
				add(entity, p.label)
				continue
			}
			found, cycles := idx.climb(p.label)
			res.Cycles += cycles
			for _, ancestor := range found {
				add(entity, ancestor)
			}
		}
	}

	sort.Slice(res.Edges, func(i, j int) bool {
		if res.Edges[i].Child != res.Edges[j].Child {
			return res.Edges[i].Child < res.Edges[j].Child
		}
		return res.Edges[i].Parent < res.Edges[j].Parent
	})
	return res
}

func buildIndex(rows []Row, filter []string, res *Result) *index {
	allow := make(map[string]bool, len(filter))
	for _, f := range filter {
		allow[f] = true
	}

	idx := &index{
		entities: make(map[string]bool),
		parents:  make(map[string][]parentRef),
	}
	for _, row := range rows {
		if !row.valid() {
			res.Skipped++
			continue
		}

		isEntity := false
		switch row.Classification {
		case domain.ClassInternal:
			isEntity = true
		case domain.ClassEntity:
			isEntity = len(allow) == 0 || allow[row.EventType]
		}
		if isEntity && !idx.entities[row.Label] {
			idx.entities[row.Label] = true
			idx.order = append(idx.order, row.Label)
		}

		idx.parents[row.Label] = append(idx.parents[row.Label], parentRef{label: row.ParentLabel, origin: row.OriginID})
	}
	return idx
}

// climb walks up from start through non-entity labels and returns the first
// entities found on each path. Each origin is crossed at most once per climb.
func (idx *index) climb(start string) (found []string, cycles int) {
	visited := make(map[string]bool)
	stack := []string{start}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, p := range idx.parents[item] {
			if visited[p.origin] {
				cycles++
				continue
			}
			if idx.entities[p.label] {
				found = append(found, p.label)
				continue
			}
			visited[p.origin] = true
			stack = append(stack, p.label)
		}
	}
	return found, cycles
}

package models

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Split names a partition of a dataset.
type Split string

// Split constants, in processing order.
const (
	SplitTrain Split = "train"
	SplitVal   Split = "val"
	SplitTest  Split = "test"
)

// Splits lists every split in processing order.
var Splits = []Split{SplitTrain, SplitVal, SplitTest}

// Edge is an undirected pair of vertex ids.
type Edge [2]int

// Normalized returns the edge with the smaller endpoint first.
func (e Edge) Normalized() Edge {
	if e[0] > e[1] {
		return Edge{e[1], e[0]}
	}
	return e
}

// Graph is the read-only input to ring finding and complex assembly.
// Vertices are the ids 0..NumNodes-1.
type Graph struct {
	NumNodes     int      `json:"num_nodes" yaml:"num_nodes"`
	Edges        []Edge   `json:"edges" yaml:"edges"`
	NodeFeatures []int    `json:"node_features,omitempty" yaml:"node_features,omitempty"`
	EdgeFeatures []int    `json:"edge_features,omitempty" yaml:"edge_features,omitempty"`
	Target       *float64 `json:"target,omitempty" yaml:"target,omitempty"`
}

// Validate reports ErrInvalidGraph for out-of-range endpoints, self-loops,
// or feature slices that do not line up with vertices or edges.
func (g Graph) Validate() error {
	if g.NumNodes < 0 {
		return fmt.Errorf("%w: negative vertex count %d", ErrInvalidGraph, g.NumNodes)
	}
	for i, e := range g.Edges {
		for _, v := range e {
			if v < 0 || v >= g.NumNodes {
				return fmt.Errorf("%w: edge %d (%d,%d) references vertex %d outside [0,%d)",
					ErrInvalidGraph, i, e[0], e[1], v, g.NumNodes)
			}
		}
		if e[0] == e[1] {
			return fmt.Errorf("%w: edge %d is a self-loop on vertex %d", ErrInvalidGraph, i, e[0])
		}
	}
	if len(g.NodeFeatures) != 0 && len(g.NodeFeatures) != g.NumNodes {
		return fmt.Errorf("%w: %d node features for %d vertices", ErrInvalidGraph, len(g.NodeFeatures), g.NumNodes)
	}
	if len(g.EdgeFeatures) != 0 && len(g.EdgeFeatures) != len(g.Edges) {
		return fmt.Errorf("%w: %d edge features for %d edges", ErrInvalidGraph, len(g.EdgeFeatures), len(g.Edges))
	}
	return nil
}

// UniqueEdges returns the undirected edges of g in first-discovery order,
// normalized, with reversed and parallel duplicates dropped. origin[i] is the
// index in g.Edges where edges[i] was first seen.
func (g Graph) UniqueEdges() (edges []Edge, origin []int) {
	seen := make(map[Edge]struct{}, len(g.Edges))
	for i, e := range g.Edges {
		n := e.Normalized()
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		edges = append(edges, n)
		origin = append(origin, i)
	}
	return edges, origin
}

// Adjacency returns sorted neighbor lists built from the unique edges.
func (g Graph) Adjacency() [][]int {
	adj := make([][]int, g.NumNodes)
	edges, _ := g.UniqueEdges()
	for _, e := range edges {
		adj[e[0]] = append(adj[e[0]], e[1])
		adj[e[1]] = append(adj[e[1]], e[0])
	}
	for _, nbrs := range adj {
		slices.Sort(nbrs)
	}
	return adj
}

// Ring is a simple cycle given as its vertex sequence; the closing edge from
// the last vertex back to the first is implicit.
type Ring []int

// Key joins the vertex ids with commas. Two rings have the same key only if
// they are listed identically, so callers canonicalize first.
func (r Ring) Key() string {
	parts := make([]string, len(r))
	for i, v := range r {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// Cell dimensions.
const (
	DimVertex = 0
	DimEdge   = 1
	DimRing   = 2
)

// Cell is a vertex, edge, or ring of a complex.
type Cell struct {
	Dim        int   `json:"dim"`
	ID         int   `json:"id"`
	Vertices   []int `json:"vertices"`
	Boundary   []int `json:"boundary,omitempty"`
	Coboundary []int `json:"coboundary,omitempty"`
	Features   []int `json:"features,omitempty"`
}

// Complex is a 2-dimensional cell complex. Cells[d][i].ID == i.
type Complex struct {
	Dimension int       `json:"dimension"`
	Cells     [3][]Cell `json:"cells"`
	// LowerAdj[d][i] lists the dimension-d cells sharing a face with cell i.
	// Only populated when lower adjacency was requested.
	LowerAdj [3][][]int `json:"lower_adj,omitempty"`
	Target   *float64   `json:"target,omitempty"`
}

// NumCells returns the number of cells at dimension dim.
func (c *Complex) NumCells(dim int) int {
	if dim < 0 || dim > DimRing {
		return 0
	}
	return len(c.Cells[dim])
}

// Cell returns the cell with the given dimension and id.
func (c *Complex) Cell(dim, id int) (*Cell, bool) {
	if dim < 0 || dim > DimRing || id < 0 || id >= len(c.Cells[dim]) {
		return nil, false
	}
	return &c.Cells[dim][id], true
}

// SplitIndex holds, per split, the positions of its complexes in Dataset.Complexes.
type SplitIndex struct {
	Train []int `json:"train"`
	Val   []int `json:"val"`
	Test  []int `json:"test,omitempty"`
}

// Of returns the index list for split s.
func (s SplitIndex) Of(split Split) []int {
	switch split {
	case SplitTrain:
		return s.Train
	case SplitVal:
		return s.Val
	case SplitTest:
		return s.Test
	default:
		return nil
	}
}

// Dataset is a fully converted dataset, the unit of caching. IncludeDownAdj
// records whether Complex.LowerAdj was computed.
type Dataset struct {
	Key             string     `json:"key"`
	Name            string     `json:"name"`
	MaxRingSize     int        `json:"max_ring_size"`
	UseEdgeFeatures bool       `json:"use_edge_features"`
	IncludeDownAdj  bool       `json:"include_down_adj"`
	Complexes       []Complex  `json:"complexes"`
	Splits          SplitIndex `json:"splits"`
}

// SplitOf returns the split the complex at position idx belongs to.
func (d *Dataset) SplitOf(idx int) Split {
	for _, s := range Splits {
		for _, i := range d.Splits.Of(s) {
			if i == idx {
				return s
			}
		}
	}
	return ""
}

// SplitLabels returns the split of every complex, indexed by position.
func (d *Dataset) SplitLabels() []Split {
	labels := make([]Split, len(d.Complexes))
	for _, s := range Splits {
		for _, i := range d.Splits.Of(s) {
			if i >= 0 && i < len(labels) {
				labels[i] = s
			}
		}
	}
	return labels
}

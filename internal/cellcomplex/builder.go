// Package cellcomplex assembles 2-dimensional cell complexes from a graph and
// its rings: vertices become 0-cells, edges 1-cells and rings 2-cells, linked
// by boundary (down) and coboundary (up) relations.
//
// Tests here use testify, like the other algorithm packages.
package cellcomplex

import (
	"fmt"
	"slices"

	"github.com/YuGuangWang/cwn/internal/rings"
	"github.com/YuGuangWang/cwn/pkg/models"
)

// Option configures Build.
type Option func(*options)

type options struct {
	edgeFeatures bool
	lowerAdj     bool
}

// WithEdgeFeatures copies the graph's edge features onto the 1-cells.
func WithEdgeFeatures(enabled bool) Option {
	return func(o *options) {
		o.edgeFeatures = enabled
	}
}

// WithLowerAdjacency precomputes, per dimension, the cells sharing a face.
func WithLowerAdjacency(enabled bool) Option {
	return func(o *options) {
		o.lowerAdj = enabled
	}
}

// Build assembles the complex of g and rs. Cell ids are assigned
// deterministically: vertices by id, edges in discovery order, rings by
// canonical key. Neither g nor rs is modified.
func Build(g models.Graph, rs []models.Ring, opts ...Option) (*models.Complex, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}

	c := &models.Complex{Dimension: -1}
	if g.Target != nil {
		target := *g.Target
		c.Target = &target
	}

	// 0-cells
	c.Cells[models.DimVertex] = make([]models.Cell, g.NumNodes)
	for v := range g.NumNodes {
		cell := models.Cell{Dim: models.DimVertex, ID: v, Vertices: []int{v}}
		if len(g.NodeFeatures) > 0 {
			cell.Features = []int{g.NodeFeatures[v]}
		}
		c.Cells[models.DimVertex][v] = cell
	}

	// 1-cells
	edges, origin := g.UniqueEdges()
	edgeID := make(map[models.Edge]int, len(edges))
	c.Cells[models.DimEdge] = make([]models.Cell, len(edges))
	for i, e := range edges {
		edgeID[e] = i
		cell := models.Cell{
			Dim:      models.DimEdge,
			ID:       i,
			Vertices: []int{e[0], e[1]},
			Boundary: []int{e[0], e[1]},
		}
		if o.edgeFeatures && len(g.EdgeFeatures) > 0 {
			cell.Features = []int{g.EdgeFeatures[origin[i]]}
		}
		c.Cells[models.DimEdge][i] = cell
	}

	// 2-cells
	canon, err := canonicalRings(rs, g.NumNodes)
	if err != nil {
		return nil, err
	}
	c.Cells[models.DimRing] = make([]models.Cell, len(canon))
	for i, r := range canon {
		boundary := make([]int, len(r))
		for j, v := range r {
			e := models.Edge{v, r[(j+1)%len(r)]}.Normalized()
			id, ok := edgeID[e]
			if !ok {
				return nil, fmt.Errorf("%w: ring %v needs edge (%d,%d)", models.ErrMissingEdge, []int(r), e[0], e[1])
			}
			boundary[j] = id
		}
		slices.Sort(boundary)
		c.Cells[models.DimRing][i] = models.Cell{
			Dim:      models.DimRing,
			ID:       i,
			Vertices: []int(r),
			Boundary: boundary,
		}
	}

	// Coboundaries. Cells are visited in id order, so every list comes out sorted.
	for d := models.DimEdge; d <= models.DimRing; d++ {
		for _, cell := range c.Cells[d] {
			for _, b := range cell.Boundary {
				face := &c.Cells[d-1][b]
				face.Coboundary = append(face.Coboundary, cell.ID)
			}
		}
	}

	for d := models.DimRing; d >= models.DimVertex; d-- {
		if len(c.Cells[d]) > 0 {
			c.Dimension = d
			break
		}
	}

	if o.lowerAdj {
		for d := models.DimEdge; d <= models.DimRing; d++ {
			adj := make([][]int, len(c.Cells[d]))
			for id := range c.Cells[d] {
				adj[id] = LowerNeighbors(c, d, id)
			}
			c.LowerAdj[d] = adj
		}
	}

	return c, nil
}

// canonicalRings validates rs against an n-vertex graph and returns the
// distinct rings in canonical form, sorted.
func canonicalRings(rs []models.Ring, n int) ([]models.Ring, error) {
	seen := make(map[string]struct{}, len(rs))
	out := make([]models.Ring, 0, len(rs))
	for _, r := range rs {
		if len(r) < rings.MinRingSize {
			return nil, fmt.Errorf("%w: ring %v has fewer than %d vertices", models.ErrInvalidGraph, []int(r), rings.MinRingSize)
		}
		onRing := make(map[int]struct{}, len(r))
		for _, v := range r {
			if v < 0 || v >= n {
				return nil, fmt.Errorf("%w: ring %v references vertex %d outside [0,%d)", models.ErrInvalidGraph, []int(r), v, n)
			}
			if _, dup := onRing[v]; dup {
				return nil, fmt.Errorf("%w: ring %v repeats vertex %d", models.ErrInvalidGraph, []int(r), v)
			}
			onRing[v] = struct{}{}
		}

		canon := rings.Canonical(r)
		key := canon.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, canon)
	}
	rings.Sort(out)
	return out, nil
}

package cellcomplex

import (
	"errors"
	"fmt"
	"slices"

	"github.com/YuGuangWang/cwn/internal/rings"
	"github.com/YuGuangWang/cwn/pkg/models"
)

// ErrInconsistent is returned by Verify and RingCycle when a complex's
// relations do not agree with each other.
var ErrInconsistent = errors.New("inconsistent complex")

// Boundary returns the ids of the (dim-1)-cells bounding cell (dim, id).
func Boundary(c *models.Complex, dim, id int) []int {
	cell, ok := c.Cell(dim, id)
	if !ok {
		return nil
	}
	return slices.Clone(cell.Boundary)
}

// Coboundary returns the ids of the (dim+1)-cells that contain cell (dim, id)
// in their boundary.
func Coboundary(c *models.Complex, dim, id int) []int {
	cell, ok := c.Cell(dim, id)
	if !ok {
		return nil
	}
	return slices.Clone(cell.Coboundary)
}

// UpperNeighbors returns the dim-cells sharing at least one coface with (dim, id).
// Two edges of one ring are upper neighbours.
func UpperNeighbors(c *models.Complex, dim, id int) []int {
	cell, ok := c.Cell(dim, id)
	if !ok {
		return nil
	}
	var out []int
	for _, cof := range cell.Coboundary {
		for _, b := range c.Cells[dim+1][cof].Boundary {
			if b != id {
				out = append(out, b)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// LowerNeighbors returns the dim-cells sharing at least one face with (dim, id).
// Two edges meeting at a vertex are lower neighbours.
func LowerNeighbors(c *models.Complex, dim, id int) []int {
	cell, ok := c.Cell(dim, id)
	if !ok || dim == models.DimVertex {
		return nil
	}
	var out []int
	for _, face := range cell.Boundary {
		for _, cof := range c.Cells[dim-1][face].Coboundary {
			if cof != id {
				out = append(out, cof)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// RingCycle rebuilds the cyclic vertex sequence of 2-cell id from its boundary
// edges alone, in canonical form.
func RingCycle(c *models.Complex, id int) (models.Ring, error) {
	cell, ok := c.Cell(models.DimRing, id)
	if !ok {
		return nil, fmt.Errorf("ring cell %d not found", id)
	}

	nbrs := make(map[int][]int)
	for _, eid := range cell.Boundary {
		edge, ok := c.Cell(models.DimEdge, eid)
		if !ok || len(edge.Boundary) != 2 {
			return nil, fmt.Errorf("%w: ring %d references bad edge %d", ErrInconsistent, id, eid)
		}
		u, v := edge.Boundary[0], edge.Boundary[1]
		nbrs[u] = append(nbrs[u], v)
		nbrs[v] = append(nbrs[v], u)
	}
	if len(nbrs) < rings.MinRingSize {
		return nil, fmt.Errorf("%w: ring %d spans %d vertices", ErrInconsistent, id, len(nbrs))
	}

	start := -1
	for v, adj := range nbrs {
		if len(adj) != 2 {
			return nil, fmt.Errorf("%w: vertex %d has degree %d in ring %d", ErrInconsistent, v, len(adj), id)
		}
		if start < 0 || v < start {
			start = v
		}
	}

	cycle := models.Ring{start}
	prev, cur := start, nbrs[start][0]
	for cur != start {
		cycle = append(cycle, cur)
		next := nbrs[cur][0]
		if next == prev {
			next = nbrs[cur][1]
		}
		prev, cur = cur, next
	}
	if len(cycle) != len(nbrs) {
		return nil, fmt.Errorf("%w: boundary of ring %d is not a single cycle", ErrInconsistent, id)
	}
	return rings.Canonical(cycle), nil
}

// Verify checks that every boundary reference resolves and that coboundaries
// are the exact inverse of boundaries for both dimension pairs.
func Verify(c *models.Complex) error {
	for d := models.DimVertex; d <= models.DimRing; d++ {
		for i, cell := range c.Cells[d] {
			if cell.ID != i || cell.Dim != d {
				return fmt.Errorf("%w: cell at (%d,%d) labelled (%d,%d)", ErrInconsistent, d, i, cell.Dim, cell.ID)
			}
		}
	}

	for d := models.DimEdge; d <= models.DimRing; d++ {
		down := make(map[[2]int]struct{})
		for _, cell := range c.Cells[d] {
			for _, b := range cell.Boundary {
				if b < 0 || b >= len(c.Cells[d-1]) {
					return fmt.Errorf("%w: cell (%d,%d) bounded by missing cell %d", ErrInconsistent, d, cell.ID, b)
				}
				down[[2]int{cell.ID, b}] = struct{}{}
			}
		}

		up := 0
		for _, face := range c.Cells[d-1] {
			for _, cof := range face.Coboundary {
				if _, ok := down[[2]int{cof, face.ID}]; !ok {
					return fmt.Errorf("%w: cell (%d,%d) lists coface %d that does not bound it", ErrInconsistent, d-1, face.ID, cof)
				}
				up++
			}
		}
		if up != len(down) {
			return fmt.Errorf("%w: %d boundary pairs but %d coboundary pairs between dimensions %d and %d",
				ErrInconsistent, len(down), up, d-1, d)
		}
	}
	return nil
}

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a dataset, complex, or cell does not exist.
var ErrNotFound = errors.New("not found")

// CellRef addresses one cell of one stored complex.
type CellRef struct {
	Dataset string
	Complex int
	Dim     int
	ID      int
}

// CellEngine answers adjacency queries over stored complexes.
type CellEngine interface {
	// Cofaces returns the ids of the (dim+1)-cells whose boundary contains the cell.
	Cofaces(ctx context.Context, ref CellRef) ([]int, error)

	// UpperNeighbors returns same-dimension cells sharing a coface.
	UpperNeighbors(ctx context.Context, ref CellRef) ([]int, error)

	// LowerNeighbors returns same-dimension cells sharing a face.
	LowerNeighbors(ctx context.Context, ref CellRef) ([]int, error)

	// Close releases resources held by the engine.
	Close() error
}

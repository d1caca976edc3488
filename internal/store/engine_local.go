package store

import (
	"context"
	"fmt"

	"github.com/YuGuangWang/cwn/internal/cellcomplex"
	"github.com/YuGuangWang/cwn/pkg/models"
)

// LocalEngine implements CellEngine by loading complexes from the store.
type LocalEngine struct {
	store Store
}

// NewLocalEngine creates a CellEngine that reads complexes from store.
func NewLocalEngine(store Store) *LocalEngine {
	return &LocalEngine{store: store}
}

func (e *LocalEngine) cell(ctx context.Context, ref CellRef) (*models.Complex, error) {
	c, _, err := e.store.GetComplex(ctx, ref.Dataset, ref.Complex)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("complex %s/%d: %w", ref.Dataset, ref.Complex, ErrNotFound)
	}
	if _, ok := c.Cell(ref.Dim, ref.ID); !ok {
		return nil, fmt.Errorf("cell %d of dimension %d: %w", ref.ID, ref.Dim, ErrNotFound)
	}
	return c, nil
}

// Cofaces returns the coboundary of the referenced cell.
func (e *LocalEngine) Cofaces(ctx context.Context, ref CellRef) ([]int, error) {
	c, err := e.cell(ctx, ref)
	if err != nil {
		return nil, err
	}
	return nonNil(cellcomplex.Coboundary(c, ref.Dim, ref.ID)), nil
}

// UpperNeighbors returns cells sharing a coface with the referenced cell.
func (e *LocalEngine) UpperNeighbors(ctx context.Context, ref CellRef) ([]int, error) {
	c, err := e.cell(ctx, ref)
	if err != nil {
		return nil, err
	}
	return nonNil(cellcomplex.UpperNeighbors(c, ref.Dim, ref.ID)), nil
}

// LowerNeighbors returns cells sharing a face with the referenced cell.
func (e *LocalEngine) LowerNeighbors(ctx context.Context, ref CellRef) ([]int, error) {
	c, err := e.cell(ctx, ref)
	if err != nil {
		return nil, err
	}
	return nonNil(cellcomplex.LowerNeighbors(c, ref.Dim, ref.ID)), nil
}

// Close is a no-op; the store is owned by the caller.
func (e *LocalEngine) Close() error {
	return nil
}

func nonNil(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}

// Package dataset turns raw graph splits into cached cell-complex datasets.
//
// Tests here use testify, like the algorithm packages.
package dataset

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/YuGuangWang/cwn/internal/rings"
	"github.com/YuGuangWang/cwn/pkg/models"
)

// Config selects a dataset and the settings its complexes are built with.
// Configs sharing a Key differ at most in IncludeDownAdj, which the cache
// checks against the stored dataset.
type Config struct {
	Root            string
	Name            string
	MaxRingSize     int
	UseEdgeFeatures bool
	IncludeDownAdj  bool
}

// Validate checks that the config can be processed.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: dataset name is empty", models.ErrInvalidConfig)
	}
	if strings.ContainsAny(c.Name, `/\`) {
		return fmt.Errorf("%w: dataset name %q contains a path separator", models.ErrInvalidConfig, c.Name)
	}
	if c.MaxRingSize < rings.MinRingSize {
		return fmt.Errorf("%w: max ring size %d is below %d", models.ErrInvalidConfig, c.MaxRingSize, rings.MinRingSize)
	}
	return nil
}

func (c Config) suffix() string {
	s := fmt.Sprintf("_%drings", c.MaxRingSize)
	if c.UseEdgeFeatures {
		s += "-E"
	}
	return s
}

// Key identifies the processed dataset in the cache, e.g. ZINC_12rings-E.
func (c Config) Key() string {
	return c.Name + c.suffix()
}

// ProcessedDir is where artifacts for this config live on disk, e.g.
// <root>/ZINC/processed_12rings.
func (c Config) ProcessedDir() string {
	return filepath.Join(c.Root, c.Name, "processed"+c.suffix())
}

// RawDir holds the raw split files.
func (c Config) RawDir() string {
	return filepath.Join(c.Root, c.Name, "raw")
}

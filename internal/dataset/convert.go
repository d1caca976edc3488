package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/YuGuangWang/cwn/internal/cellcomplex"
	"github.com/YuGuangWang/cwn/internal/rings"
	"github.com/YuGuangWang/cwn/pkg/models"
	"golang.org/x/sync/errgroup"
)

// ConvertOptions tunes split conversion.
type ConvertOptions struct {
	// Workers bounds the number of graphs converted concurrently.
	// Zero means GOMAXPROCS.
	Workers int
	// MaxRings fails a graph that holds more rings than this. Zero disables the cap.
	MaxRings int
	// SkipInvalid drops graphs that fail conversion instead of aborting.
	SkipInvalid bool
	Logger      *slog.Logger
}

func (o ConvertOptions) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// ConvertSplit finds the rings of every graph and builds its complex.
// Complexes come back in input order. Skipped graphs are reported by index.
func ConvertSplit(ctx context.Context, graphs []models.Graph, cfg Config, opts ConvertOptions) ([]models.Complex, []int, error) {
	finder, err := rings.New(cfg.MaxRingSize, rings.WithMaxRings(opts.MaxRings))
	if err != nil {
		return nil, nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	buildOpts := []cellcomplex.Option{
		cellcomplex.WithEdgeFeatures(cfg.UseEdgeFeatures),
		cellcomplex.WithLowerAdjacency(cfg.IncludeDownAdj),
	}

	results := make([]*models.Complex, len(graphs))
	failed := make([]error, len(graphs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for i := range graphs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := convertGraph(finder, graphs[i], buildOpts)
			if err != nil {
				if opts.SkipInvalid {
					failed[i] = err
					return nil
				}
				return fmt.Errorf("graph %d: %w", i, err)
			}
			results[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	complexes := make([]models.Complex, 0, len(graphs))
	var skipped []int
	for i, c := range results {
		if c == nil {
			logger.Warn("skipping graph", "index", i, "error", failed[i])
			skipped = append(skipped, i)
			continue
		}
		complexes = append(complexes, *c)
	}
	return complexes, skipped, nil
}

func convertGraph(finder *rings.Finder, g models.Graph, opts []cellcomplex.Option) (*models.Complex, error) {
	rs, err := finder.Find(g)
	if err != nil {
		return nil, err
	}
	return cellcomplex.Build(g, rs, opts...)
}

package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/YuGuangWang/cwn/pkg/models"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const syncBatchSize = 500

// SyncResult reports what a Memgraph sync wrote.
type SyncResult struct {
	Cells      int
	Boundaries int
}

// SyncToMemgraph replaces the Memgraph copy of one dataset with the cells
// stored in SQLite. Each cell becomes a :Cell node and each boundary
// relation a (cell)-[:BOUNDARY]->(face) relationship.
func SyncToMemgraph(ctx context.Context, store Store, key string, driver neo4j.DriverWithContext, logger *slog.Logger) (*SyncResult, error) {
	ds, err := store.LoadDataset(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading dataset from sqlite: %w", err)
	}
	if ds == nil {
		return nil, fmt.Errorf("dataset %q not found", key)
	}
	return syncDataset(ctx, newNeo4jSessionFactory(driver), ds, logger)
}

func syncDataset(ctx context.Context, newSession sessionFactory, ds *models.Dataset, logger *slog.Logger) (*SyncResult, error) {
	session := newSession(ctx)
	defer session.Close(ctx) //nolint:errcheck // best-effort cleanup

	logger.Info("clearing memgraph dataset", "key", ds.Key)
	if err := clearDataset(ctx, session, ds.Key); err != nil {
		return nil, err
	}

	for _, cypher := range []string{
		"CREATE INDEX ON :Cell(uid)",
		"CREATE INDEX ON :Cell(dataset)",
	} {
		if _, err := session.Run(ctx, cypher, nil); err != nil {
			logger.Warn("creating index (may already exist)", "error", err)
		}
	}

	labels := ds.SplitLabels()
	var cells, boundaries []map[string]any
	for i := range ds.Complexes {
		c := &ds.Complexes[i]
		split := string(labels[i])
		for dim := range c.Cells {
			for _, cell := range c.Cells[dim] {
				cells = append(cells, cellToParams(ds.Key, i, split, cell))
				for _, face := range cell.Boundary {
					boundaries = append(boundaries, map[string]any{
						"from": cellUID(ds.Key, i, dim, cell.ID),
						"to":   cellUID(ds.Key, i, dim-1, face),
					})
				}
			}
		}
	}

	logger.Info("syncing cells to memgraph", "key", ds.Key, "count", len(cells))
	err := runBatches(ctx, session, cells, "cells", `
		UNWIND $cells AS c
		CREATE (:Cell {
			uid: c.uid, dataset: c.dataset, complex: c.complex,
			split: c.split, dim: c.dim, cell_id: c.cellID,
			vertices: c.vertices, features: c.features
		})
	`)
	if err != nil {
		return nil, err
	}

	logger.Info("syncing boundaries to memgraph", "key", ds.Key, "count", len(boundaries))
	err = runBatches(ctx, session, boundaries, "boundaries", `
		UNWIND $boundaries AS b
		MATCH (from:Cell {uid: b.from})
		MATCH (to:Cell {uid: b.to})
		CREATE (from)-[:BOUNDARY]->(to)
	`)
	if err != nil {
		return nil, err
	}

	logger.Info("memgraph sync complete", "key", ds.Key, "cells", len(cells), "boundaries", len(boundaries))
	return &SyncResult{Cells: len(cells), Boundaries: len(boundaries)}, nil
}

func runBatches(ctx context.Context, session sessionRunner, items []map[string]any, param, cypher string) error {
	for i := 0; i < len(items); i += syncBatchSize {
		end := min(i+syncBatchSize, len(items))
		if _, err := session.Run(ctx, cypher, map[string]any{param: items[i:end]}); err != nil {
			return fmt.Errorf("syncing %s batch %d-%d: %w", param, i, end, err)
		}
	}
	return nil
}

func clearDataset(ctx context.Context, session sessionRunner, key string) error {
	_, err := session.Run(ctx, `MATCH (c:Cell {dataset: $key}) DETACH DELETE c`, map[string]any{"key": key})
	if err != nil {
		return fmt.Errorf("clearing memgraph: %w", err)
	}
	return nil
}

// cellUID identifies a cell across all datasets: key/complex/dim/id.
func cellUID(key string, complexIdx, dim, id int) string {
	return fmt.Sprintf("%s/%d/%d/%d", key, complexIdx, dim, id)
}

func cellToParams(key string, complexIdx int, split string, cell models.Cell) map[string]any {
	return map[string]any{
		"uid":      cellUID(key, complexIdx, cell.Dim, cell.ID),
		"dataset":  key,
		"complex":  int64(complexIdx),
		"split":    split,
		"dim":      int64(cell.Dim),
		"cellID":   int64(cell.ID),
		"vertices": toInt64s(cell.Vertices),
		"features": toInt64s(cell.Features),
	}
}

func toInt64s(xs []int) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = int64(x)
	}
	return out
}

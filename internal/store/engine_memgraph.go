package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// MemgraphEngine implements CellEngine with Cypher over synced :Cell nodes.
// Queries that fail fall back to the LocalEngine.
type MemgraphEngine struct {
	driver     neo4j.DriverWithContext
	newSession sessionFactory
	fallback   *LocalEngine
	logger     *slog.Logger
}

// NewMemgraphEngine connects to Memgraph and returns an engine that falls
// back to fallback on query failures.
func NewMemgraphEngine(uri, username, password string, fallback *LocalEngine, logger *slog.Logger) (*MemgraphEngine, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	driver, err := Connect(ctx, uri, username, password)
	if err != nil {
		return nil, fmt.Errorf("connecting to memgraph: %w", err)
	}

	logger.Info("memgraph engine initialized", "uri", uri)
	return &MemgraphEngine{
		driver:     driver,
		newSession: newNeo4jSessionFactory(driver),
		fallback:   fallback,
		logger:     logger,
	}, nil
}

// Driver returns the underlying neo4j driver for use by SyncedStore.
func (e *MemgraphEngine) Driver() neo4j.DriverWithContext {
	return e.driver
}

// Close closes the Memgraph driver connection.
func (e *MemgraphEngine) Close() error {
	return e.driver.Close(context.Background())
}

const (
	cofacesCypher = `
		MATCH (co:Cell)-[:BOUNDARY]->(c:Cell {uid: $uid})
		RETURN DISTINCT co.cell_id AS id ORDER BY id
	`
	upperCypher = `
		MATCH (c:Cell {uid: $uid})<-[:BOUNDARY]-(:Cell)-[:BOUNDARY]->(n:Cell)
		WHERE n.uid <> $uid
		RETURN DISTINCT n.cell_id AS id ORDER BY id
	`
	lowerCypher = `
		MATCH (c:Cell {uid: $uid})-[:BOUNDARY]->(:Cell)<-[:BOUNDARY]-(n:Cell)
		WHERE n.uid <> $uid
		RETURN DISTINCT n.cell_id AS id ORDER BY id
	`
)

// Cofaces returns the coboundary of the referenced cell.
func (e *MemgraphEngine) Cofaces(ctx context.Context, ref CellRef) ([]int, error) {
	ids, err := e.queryIDs(ctx, cofacesCypher, ref)
	if err != nil {
		e.logger.Warn("memgraph query failed, falling back to local", "query", "cofaces", "error", err)
		return e.fallback.Cofaces(ctx, ref)
	}
	return ids, nil
}

// UpperNeighbors returns cells sharing a coface with the referenced cell.
func (e *MemgraphEngine) UpperNeighbors(ctx context.Context, ref CellRef) ([]int, error) {
	ids, err := e.queryIDs(ctx, upperCypher, ref)
	if err != nil {
		e.logger.Warn("memgraph query failed, falling back to local", "query", "upper", "error", err)
		return e.fallback.UpperNeighbors(ctx, ref)
	}
	return ids, nil
}

// LowerNeighbors returns cells sharing a face with the referenced cell.
func (e *MemgraphEngine) LowerNeighbors(ctx context.Context, ref CellRef) ([]int, error) {
	ids, err := e.queryIDs(ctx, lowerCypher, ref)
	if err != nil {
		e.logger.Warn("memgraph query failed, falling back to local", "query", "lower", "error", err)
		return e.fallback.LowerNeighbors(ctx, ref)
	}
	return ids, nil
}

func (e *MemgraphEngine) queryIDs(ctx context.Context, cypher string, ref CellRef) ([]int, error) {
	session := e.newSession(ctx)
	defer session.Close(ctx) //nolint:errcheck // best-effort cleanup

	result, err := session.Run(ctx, cypher, map[string]any{
		"uid": cellUID(ref.Dataset, ref.Complex, ref.Dim, ref.ID),
	})
	if err != nil {
		return nil, err
	}

	ids := []int{}
	for result.Next(ctx) {
		id, ok := recordInt(result.Record(), "id")
		if !ok {
			return nil, fmt.Errorf("memgraph returned a cell without an integer id")
		}
		ids = append(ids, id)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func recordInt(record *neo4j.Record, key string) (int, bool) {
	if record == nil {
		return 0, false
	}
	v, ok := record.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

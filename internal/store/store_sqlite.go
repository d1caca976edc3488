package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/YuGuangWang/cwn/pkg/models"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
    key               TEXT PRIMARY KEY,
    name              TEXT NOT NULL,
    max_ring_size     INTEGER NOT NULL,
    use_edge_features INTEGER NOT NULL DEFAULT 0,
    include_down_adj  INTEGER NOT NULL DEFAULT 0,
    num_complexes     INTEGER NOT NULL DEFAULT 0,
    created_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS complexes (
    dataset_key  TEXT NOT NULL REFERENCES datasets(key) ON DELETE CASCADE,
    idx          INTEGER NOT NULL,
    split        TEXT NOT NULL,
    num_vertices INTEGER NOT NULL,
    num_edges    INTEGER NOT NULL,
    num_rings    INTEGER NOT NULL,
    payload      TEXT NOT NULL,
    PRIMARY KEY (dataset_key, idx)
);

CREATE INDEX IF NOT EXISTS idx_datasets_name ON datasets(name);
CREATE INDEX IF NOT EXISTS idx_complexes_split ON complexes(dataset_key, split);

CREATE TABLE IF NOT EXISTS runs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    dataset_key TEXT NOT NULL,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME,
    graphs      INTEGER DEFAULT 0,
    complexes   INTEGER DEFAULT 0,
    status      TEXT DEFAULT 'running'
);
`

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Init creates the database schema if it doesn't exist.
func (s *SQLiteStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveDataset replaces the dataset stored under ds.Key inside a single
// transaction, so readers never observe a partially written dataset.
func (s *SQLiteStore) SaveDataset(ctx context.Context, ds *models.Dataset) error {
	splitOf := make(map[int]models.Split, len(ds.Complexes))
	for _, split := range models.Splits {
		for _, idx := range ds.Splits.Of(split) {
			if idx < 0 || idx >= len(ds.Complexes) {
				return fmt.Errorf("split %s references complex %d of %d", split, idx, len(ds.Complexes))
			}
			splitOf[idx] = split
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM complexes WHERE dataset_key = ?`, ds.Key); err != nil {
		return fmt.Errorf("clearing complexes: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO datasets (key, name, max_ring_size, use_edge_features, include_down_adj, num_complexes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			max_ring_size = excluded.max_ring_size,
			use_edge_features = excluded.use_edge_features,
			include_down_adj = excluded.include_down_adj,
			num_complexes = excluded.num_complexes,
			created_at = excluded.created_at
	`, ds.Key, ds.Name, ds.MaxRingSize, ds.UseEdgeFeatures, ds.IncludeDownAdj, len(ds.Complexes), time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing dataset: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO complexes (dataset_key, idx, split, num_vertices, num_edges, num_rings, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing complex insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // best-effort cleanup

	for i := range ds.Complexes {
		c := &ds.Complexes[i]
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshaling complex %d: %w", i, err)
		}
		_, err = stmt.ExecContext(ctx, ds.Key, i, string(splitOf[i]),
			c.NumCells(models.DimVertex), c.NumCells(models.DimEdge), c.NumCells(models.DimRing), string(payload))
		if err != nil {
			return fmt.Errorf("writing complex %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// LoadDataset returns the full dataset stored under key, or nil if absent.
func (s *SQLiteStore) LoadDataset(ctx context.Context, key string) (*models.Dataset, error) {
	info, err := s.GetDataset(ctx, key)
	if err != nil || info == nil {
		return nil, err
	}

	ds := &models.Dataset{
		Key:             info.Key,
		Name:            info.Name,
		MaxRingSize:     info.MaxRingSize,
		UseEdgeFeatures: info.UseEdgeFeatures,
		IncludeDownAdj:  info.IncludeDownAdj,
		Complexes:       make([]models.Complex, 0, info.NumComplexes),
		Splits:          models.SplitIndex{Train: []int{}, Val: []int{}},
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, split, payload FROM complexes WHERE dataset_key = ? ORDER BY idx
	`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // best-effort cleanup

	for rows.Next() {
		var idx int
		var split, payload string
		if err := rows.Scan(&idx, &split, &payload); err != nil {
			return nil, err
		}
		if idx != len(ds.Complexes) {
			return nil, fmt.Errorf("dataset %s: complex %d missing", key, len(ds.Complexes))
		}
		var c models.Complex
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return nil, fmt.Errorf("decoding complex %d: %w", idx, err)
		}
		ds.Complexes = append(ds.Complexes, c)

		switch models.Split(split) {
		case models.SplitTrain:
			ds.Splits.Train = append(ds.Splits.Train, idx)
		case models.SplitVal:
			ds.Splits.Val = append(ds.Splits.Val, idx)
		case models.SplitTest:
			ds.Splits.Test = append(ds.Splits.Test, idx)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ds.Complexes) != info.NumComplexes {
		return nil, fmt.Errorf("dataset %s: expected %d complexes, found %d", key, info.NumComplexes, len(ds.Complexes))
	}
	return ds, nil
}

const datasetInfoQuery = `
	SELECT d.key, d.name, d.max_ring_size, d.use_edge_features, d.include_down_adj, d.num_complexes, d.created_at,
	       COALESCE(SUM(c.num_vertices), 0), COALESCE(SUM(c.num_edges), 0), COALESCE(SUM(c.num_rings), 0),
	       COALESCE(SUM(c.split = 'train'), 0), COALESCE(SUM(c.split = 'val'), 0), COALESCE(SUM(c.split = 'test'), 0)
	FROM datasets d
	LEFT JOIN complexes c ON c.dataset_key = d.key
`

func scanDatasetInfo(row interface{ Scan(dest ...any) error }) (*DatasetInfo, error) {
	var info DatasetInfo
	var createdAt string
	var train, val, test int

	err := row.Scan(&info.Key, &info.Name, &info.MaxRingSize, &info.UseEdgeFeatures, &info.IncludeDownAdj, &info.NumComplexes, &createdAt,
		&info.CellCounts[0], &info.CellCounts[1], &info.CellCounts[2], &train, &val, &test)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	info.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	info.SplitSizes = map[string]int{
		string(models.SplitTrain): train,
		string(models.SplitVal):   val,
		string(models.SplitTest):  test,
	}
	return &info, nil
}

// GetDataset returns summary information for one dataset, or nil if absent.
func (s *SQLiteStore) GetDataset(ctx context.Context, key string) (*DatasetInfo, error) {
	row := s.db.QueryRowContext(ctx, datasetInfoQuery+` WHERE d.key = ? GROUP BY d.key`, key)
	return scanDatasetInfo(row)
}

// ListDatasets returns summary information for every dataset, by name then key.
func (s *SQLiteStore) ListDatasets(ctx context.Context) ([]DatasetInfo, error) {
	rows, err := s.db.QueryContext(ctx, datasetInfoQuery+` GROUP BY d.key ORDER BY d.name, d.key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // best-effort cleanup

	var infos []DatasetInfo
	for rows.Next() {
		info, err := scanDatasetInfo(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}
	return infos, rows.Err()
}

// GetComplex returns the complex at position idx of a dataset, or nil if absent.
func (s *SQLiteStore) GetComplex(ctx context.Context, key string, idx int) (*models.Complex, models.Split, error) {
	var split, payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT split, payload FROM complexes WHERE dataset_key = ? AND idx = ?
	`, key, idx).Scan(&split, &payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, "", nil
		}
		return nil, "", err
	}

	var c models.Complex
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, "", fmt.Errorf("decoding complex %d: %w", idx, err)
	}
	return &c, models.Split(split), nil
}

// DeleteDataset removes a dataset and, by cascade, its complexes.
func (s *SQLiteStore) DeleteDataset(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE key = ?`, key)
	return err
}

// DatasetCount returns the number of stored datasets.
func (s *SQLiteStore) DatasetCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM datasets`).Scan(&count)
	return count, err
}

// ComplexCount returns the number of stored complexes across all datasets.
func (s *SQLiteStore) ComplexCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM complexes`).Scan(&count)
	return count, err
}

// RecordRun inserts a new run record and returns its ID.
func (s *SQLiteStore) RecordRun(ctx context.Context, run Run) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (dataset_key, started_at, status) VALUES (?, ?, ?)
	`, run.DatasetKey, run.StartedAt.Format(time.RFC3339), run.Status)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateRun updates a run record with its final status and counts.
func (s *SQLiteStore) UpdateRun(ctx context.Context, id int64, status string, graphs, complexes int) error {
	now := time.Now().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, graphs = ?, complexes = ?, finished_at = ? WHERE id = ?
	`, status, graphs, complexes, now, id)
	return err
}

// ListRuns returns the most recent run records, up to limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dataset_key, started_at, finished_at, graphs, complexes, status
		FROM runs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // best-effort cleanup

	var runs []Run
	for rows.Next() {
		var r Run
		var finishedAt sql.NullString
		var startedAt string
		if err := rows.Scan(&r.ID, &r.DatasetKey, &startedAt, &finishedAt, &r.Graphs, &r.Complexes, &r.Status); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if finishedAt.Valid {
			t, _ := time.Parse(time.RFC3339, finishedAt.String)
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

package store

import (
	"context"
	"time"

	"github.com/YuGuangWang/cwn/pkg/models"
)

// Store persists converted datasets, keyed by dataset name and conversion
// settings, together with a log of processing runs.
type Store interface {
	// Init initializes the store (creates tables, indexes, etc.).
	Init(ctx context.Context) error

	// Close closes the store connection.
	Close() error

	// SaveDataset atomically replaces the dataset stored under ds.Key.
	SaveDataset(ctx context.Context, ds *models.Dataset) error

	// LoadDataset returns the dataset stored under key, or nil if absent.
	LoadDataset(ctx context.Context, key string) (*models.Dataset, error)

	// GetDataset returns summary information for one dataset, or nil if absent.
	GetDataset(ctx context.Context, key string) (*DatasetInfo, error)

	// ListDatasets returns summary information for every stored dataset.
	ListDatasets(ctx context.Context) ([]DatasetInfo, error)

	// GetComplex returns one complex of a dataset and its split, or nil if absent.
	GetComplex(ctx context.Context, key string, idx int) (*models.Complex, models.Split, error)

	// DeleteDataset removes a dataset and its complexes.
	DeleteDataset(ctx context.Context, key string) error

	// RecordRun records the start of a processing run.
	RecordRun(ctx context.Context, run Run) (int64, error)

	// UpdateRun records the outcome of a processing run.
	UpdateRun(ctx context.Context, id int64, status string, graphs, complexes int) error

	// ListRuns returns recent run records.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// DatasetInfo summarizes a stored dataset without its complexes.
type DatasetInfo struct {
	Key             string         `json:"key"`
	Name            string         `json:"name"`
	MaxRingSize     int            `json:"max_ring_size"`
	UseEdgeFeatures bool           `json:"use_edge_features"`
	IncludeDownAdj  bool           `json:"include_down_adj"`
	NumComplexes    int            `json:"num_complexes"`
	SplitSizes      map[string]int `json:"split_sizes"`
	CellCounts      [3]int         `json:"cell_counts"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCached    = "cached"
)

// Run represents a processing run record.
type Run struct {
	ID         int64      `json:"id"`
	DatasetKey string     `json:"dataset_key"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Graphs     int        `json:"graphs"`
	Complexes  int        `json:"complexes"`
	Status     string     `json:"status"`
}

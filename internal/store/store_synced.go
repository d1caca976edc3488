package store

import (
	"context"
	"log/slog"

	"github.com/YuGuangWang/cwn/pkg/models"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// SyncedStore wraps a SQLiteStore and mirrors dataset writes to Memgraph.
// Memgraph failures are logged but never block the SQLite write.
type SyncedStore struct {
	*SQLiteStore
	driver     neo4j.DriverWithContext
	newSession sessionFactory
	logger     *slog.Logger
}

// NewSyncedStore creates a SyncedStore. If driver is nil, no syncing occurs.
func NewSyncedStore(store *SQLiteStore, driver neo4j.DriverWithContext, logger *slog.Logger) *SyncedStore {
	s := &SyncedStore{SQLiteStore: store, driver: driver, logger: logger}
	if driver != nil {
		s.newSession = newNeo4jSessionFactory(driver)
	}
	return s
}

// SaveDataset stores the dataset in SQLite and replaces its Memgraph copy.
func (s *SyncedStore) SaveDataset(ctx context.Context, ds *models.Dataset) error {
	if err := s.SQLiteStore.SaveDataset(ctx, ds); err != nil {
		return err
	}
	if s.newSession != nil {
		if _, err := syncDataset(ctx, s.newSession, ds, s.logger); err != nil {
			s.logger.Warn("failed to sync dataset to memgraph", "key", ds.Key, "error", err)
		}
	}
	return nil
}

// DeleteDataset removes a dataset from SQLite and Memgraph.
func (s *SyncedStore) DeleteDataset(ctx context.Context, key string) error {
	if err := s.SQLiteStore.DeleteDataset(ctx, key); err != nil {
		return err
	}
	if s.newSession != nil {
		session := s.newSession(ctx)
		defer session.Close(ctx) //nolint:errcheck // best-effort cleanup
		if err := clearDataset(ctx, session, key); err != nil {
			s.logger.Warn("failed to delete dataset from memgraph", "key", key, "error", err)
		}
	}
	return nil
}

// Close closes both the SQLite and Memgraph connections.
func (s *SyncedStore) Close() error {
	sqlErr := s.SQLiteStore.Close()
	if s.driver != nil {
		if mgErr := s.driver.Close(context.Background()); mgErr != nil && sqlErr == nil {
			return mgErr
		}
	}
	return sqlErr
}

// Underlying returns the wrapped SQLiteStore.
func (s *SyncedStore) Underlying() *SQLiteStore {
	return s.SQLiteStore
}

// HasMemgraph reports whether Memgraph mirroring is active.
func (s *SyncedStore) HasMemgraph() bool {
	return s.newSession != nil
}

// MemgraphDriver returns the Memgraph driver, or nil.
func (s *SyncedStore) MemgraphDriver() neo4j.DriverWithContext {
	return s.driver
}

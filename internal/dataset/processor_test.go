package dataset

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/YuGuangWang/cwn/internal/store"
	"github.com/YuGuangWang/cwn/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySource serves fixed splits and counts loads.
type memorySource struct {
	splits map[models.Split][]models.Graph
	loads  int
}

func (m *memorySource) Load(_ context.Context, split models.Split) ([]models.Graph, error) {
	m.loads++
	graphs, ok := m.splits[split]
	if !ok {
		return nil, ErrSplitNotFound
	}
	return graphs, nil
}

func newTestProcessor(t *testing.T, src GraphSource) (*Processor, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cwn.db"))
	require.NoError(t, err)
	require.NoError(t, st.Init(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	logger := slog.New(slog.DiscardHandler)
	p := NewProcessor(st, ConvertOptions{Workers: 2}, logger)
	p.newSource = func(Config) GraphSource { return src }
	return p, st
}

func toySource() *memorySource {
	return &memorySource{splits: map[models.Split][]models.Graph{
		models.SplitTrain: {cycle(3), cycle(4)},
		models.SplitVal:   {cycle(5)},
		models.SplitTest:  {cycle(6), cycle(7)},
	}}
}

func TestProcess_BuildsAndCaches(t *testing.T) {
	src := toySource()
	p, st := newTestProcessor(t, src)
	ctx := context.Background()
	cfg := Config{Name: "TOY", MaxRingSize: 6}

	res := p.Process(ctx, Request{Config: cfg})
	require.NoError(t, res.Error)
	assert.False(t, res.Cached)
	assert.Equal(t, "TOY_6rings", res.Key)
	assert.Equal(t, 5, res.Graphs)

	ds := res.Dataset
	require.Len(t, ds.Complexes, 5)
	assert.Equal(t, []int{0, 1}, ds.Splits.Train)
	assert.Equal(t, []int{2}, ds.Splits.Val)
	assert.Equal(t, []int{3, 4}, ds.Splits.Test)
	// the 7-cycle exceeds the bound
	assert.Equal(t, 0, ds.Complexes[4].NumCells(models.DimRing))
	assert.Equal(t, 1, ds.Complexes[3].NumCells(models.DimRing))

	loads := src.loads
	res = p.Process(ctx, Request{Config: cfg})
	require.NoError(t, res.Error)
	assert.True(t, res.Cached)
	assert.Equal(t, loads, src.loads, "cache hit must not read the source")
	assert.Len(t, res.Dataset.Complexes, 5)

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, store.RunCached, runs[0].Status)
	assert.Equal(t, store.RunCompleted, runs[1].Status)
	assert.Equal(t, 5, runs[1].Complexes)
}

func TestProcess_Force(t *testing.T) {
	src := toySource()
	p, _ := newTestProcessor(t, src)
	ctx := context.Background()
	cfg := Config{Name: "TOY", MaxRingSize: 6}

	require.NoError(t, p.Process(ctx, Request{Config: cfg}).Error)
	loads := src.loads

	res := p.Process(ctx, Request{Config: cfg, Force: true})
	require.NoError(t, res.Error)
	assert.False(t, res.Cached)
	assert.Greater(t, src.loads, loads)
}

func TestProcess_NoTestSplit(t *testing.T) {
	src := toySource()
	delete(src.splits, models.SplitTest)
	p, _ := newTestProcessor(t, src)

	res := p.Process(context.Background(), Request{Config: Config{Name: "TOY", MaxRingSize: 6}})
	require.NoError(t, res.Error)
	assert.Len(t, res.Dataset.Complexes, 3)
	assert.Empty(t, res.Dataset.Splits.Test)
}

func TestProcess_FailureRecorded(t *testing.T) {
	src := toySource()
	src.splits[models.SplitVal] = []models.Graph{selfLoop()}
	p, st := newTestProcessor(t, src)
	ctx := context.Background()

	res := p.Process(ctx, Request{Config: Config{Name: "TOY", MaxRingSize: 6}})
	require.Error(t, res.Error)
	assert.ErrorIs(t, res.Error, models.ErrInvalidGraph)
	assert.Contains(t, res.Error.Error(), "val split")

	runs, _ := st.ListRuns(ctx, 1)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunFailed, runs[0].Status)

	ds, _ := st.LoadDataset(ctx, "TOY_6rings")
	assert.Nil(t, ds, "failed build must not be cached")
}

func TestProcess_InvalidConfig(t *testing.T) {
	p, st := newTestProcessor(t, toySource())
	res := p.Process(context.Background(), Request{Config: Config{Name: "TOY", MaxRingSize: 1}})
	assert.ErrorIs(t, res.Error, models.ErrInvalidConfig)

	runs, _ := st.ListRuns(context.Background(), 10)
	assert.Empty(t, runs, "invalid config should not record a run")
}

func TestProcess_MissingSplit(t *testing.T) {
	p, _ := newTestProcessor(t, &memorySource{splits: map[models.Split][]models.Graph{}})
	res := p.Process(context.Background(), Request{Config: Config{Name: "TOY", MaxRingSize: 6}})
	assert.True(t, errors.Is(res.Error, ErrSplitNotFound))
}

func TestProcessAll(t *testing.T) {
	p, _ := newTestProcessor(t, toySource())
	results := p.ProcessAll(context.Background(), []Config{
		{Name: "TOY", MaxRingSize: 4},
		{Name: "TOY", MaxRingSize: 6},
	})
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Error)
	}
	assert.Equal(t, "TOY_4rings", results[0].Key)
	assert.Equal(t, 0, results[0].Dataset.Complexes[2].NumCells(models.DimRing), "5-cycle exceeds bound 4")
	assert.Equal(t, "TOY_6rings", results[1].Key)
	assert.Equal(t, 1, results[1].Dataset.Complexes[2].NumCells(models.DimRing))
}

func TestProcessAsync(t *testing.T) {
	p, st := newTestProcessor(t, toySource())
	ctx := context.Background()

	runID, err := p.ProcessAsync(ctx, Request{Config: Config{Name: "TOY", MaxRingSize: 6}})
	require.NoError(t, err)
	assert.Positive(t, runID)

	assert.Eventually(t, func() bool {
		runs, _ := st.ListRuns(ctx, 1)
		return len(runs) == 1 && runs[0].Status != store.RunRunning
	}, 5*time.Second, 20*time.Millisecond)

	runs, _ := st.ListRuns(ctx, 1)
	assert.Equal(t, store.RunCompleted, runs[0].Status)
	assert.Eventually(t, func() bool { return !p.IsRunning() }, time.Second, 10*time.Millisecond)
	assert.False(t, p.Cancel(runID))
}

func TestProcessAsync_InvalidConfig(t *testing.T) {
	p, _ := newTestProcessor(t, toySource())
	_, err := p.ProcessAsync(context.Background(), Request{Config: Config{MaxRingSize: 6}})
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestBuild_FileSource(t *testing.T) {
	root := t.TempDir()
	writeSplit(t, root, "TOY", models.SplitTrain, ".yaml", triangleYAML)
	writeSplit(t, root, "TOY", models.SplitVal, ".yaml", triangleYAML)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cwn.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	p := NewProcessor(st, ConvertOptions{}, slog.New(slog.DiscardHandler))

	ds, graphs, skipped, err := p.Build(context.Background(), Config{Root: root, Name: "TOY", MaxRingSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, graphs)
	assert.Zero(t, skipped)
	require.Len(t, ds.Complexes, 2)
	assert.Equal(t, []int{6}, ds.Complexes[0].Cells[models.DimVertex][0].Features)
	require.NotNil(t, ds.Complexes[1].Target)
}

func TestProcess_DownAdjacencyIsNotServedStale(t *testing.T) {
	p, st := newTestProcessor(t, toySource())
	ctx := context.Background()
	cfg := Config{Name: "TOY", MaxRingSize: 4}

	res := p.Process(ctx, Request{Config: cfg})
	require.NoError(t, res.Error)
	assert.Empty(t, res.Dataset.Complexes[1].LowerAdj[models.DimEdge])

	cfg.IncludeDownAdj = true
	res = p.Process(ctx, Request{Config: cfg})
	require.NoError(t, res.Error)
	assert.False(t, res.Cached, "a dataset built without down adjacency must be rebuilt")
	assert.True(t, res.Dataset.IncludeDownAdj)
	// every edge of the 4-cycle shares a vertex with two others
	require.Len(t, res.Dataset.Complexes[1].LowerAdj[models.DimEdge], 4)
	assert.Len(t, res.Dataset.Complexes[1].LowerAdj[models.DimEdge][0], 2)

	res = p.Process(ctx, Request{Config: cfg})
	require.NoError(t, res.Error)
	assert.True(t, res.Cached)
	assert.Len(t, res.Dataset.Complexes[1].LowerAdj[models.DimEdge], 4)

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, store.RunCompleted, runs[1].Status)
}

// blockingSource waits for its context before failing.
type blockingSource struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingSource) Load(ctx context.Context, _ models.Split) ([]models.Graph, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestProcessAsync_CancelMarksRunFailed(t *testing.T) {
	src := &blockingSource{started: make(chan struct{})}
	p, st := newTestProcessor(t, src)
	ctx := context.Background()

	runID, err := p.ProcessAsync(ctx, Request{Config: Config{Name: "TOY", MaxRingSize: 6}})
	require.NoError(t, err)

	select {
	case <-src.started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never reached the source")
	}
	require.True(t, p.Cancel(runID))

	require.Eventually(t, func() bool {
		runs, _ := st.ListRuns(ctx, 1)
		return len(runs) == 1 && runs[0].Status == store.RunFailed
	}, 5*time.Second, 20*time.Millisecond, "cancelled run should be marked failed")
	assert.Eventually(t, func() bool { return !p.IsRunning() }, time.Second, 10*time.Millisecond)

	runs, _ := st.ListRuns(ctx, 1)
	assert.NotNil(t, runs[0].FinishedAt)
}

// gatedSource holds every load until release is closed.
type gatedSource struct {
	*memorySource
	release chan struct{}
}

func (g *gatedSource) Load(ctx context.Context, split models.Split) ([]models.Graph, error) {
	<-g.release
	return g.memorySource.Load(ctx, split)
}

func TestProcess_ConcurrentCallersRecordGraphs(t *testing.T) {
	src := &gatedSource{memorySource: toySource(), release: make(chan struct{})}
	p, st := newTestProcessor(t, src)
	ctx := context.Background()
	cfg := Config{Name: "TOY", MaxRingSize: 6}

	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.Process(ctx, Request{Config: cfg})
		}()
	}

	// let both callers join the in-flight build
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	for _, r := range results {
		require.NoError(t, r.Error)
		assert.Equal(t, 5, r.Graphs)
	}
	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.NotEqual(t, store.RunRunning, run.Status)
		assert.Equal(t, 5, run.Graphs, "run %d", run.ID)
		assert.Equal(t, 5, run.Complexes, "run %d", run.ID)
	}
}

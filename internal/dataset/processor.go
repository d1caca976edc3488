package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/YuGuangWang/cwn/internal/store"
	"github.com/YuGuangWang/cwn/pkg/models"
)

// Request describes one processing job.
type Request struct {
	Config Config
	// Force rebuilds the dataset even when it is cached.
	Force bool
}

// Result is returned after a job completes.
type Result struct {
	RunID   int64
	Key     string
	Dataset *models.Dataset
	Cached  bool
	Graphs  int
	Skipped int
	Error   error
}

// Processor converts datasets and caches them, recording a run per job.
type Processor struct {
	store     store.Store
	cache     *store.Cache
	newSource func(Config) GraphSource
	opts      ConvertOptions
	logger    *slog.Logger

	mu      sync.Mutex
	running map[int64]context.CancelFunc
}

// NewProcessor creates a Processor that reads raw splits from disk.
func NewProcessor(st store.Store, opts ConvertOptions, logger *slog.Logger) *Processor {
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &Processor{
		store: st,
		cache: store.NewCache(st, logger),
		newSource: func(cfg Config) GraphSource {
			return NewFileSource(cfg.Root, cfg.Name)
		},
		opts:    opts,
		logger:  logger,
		running: make(map[int64]context.CancelFunc),
	}
}

// Process loads the dataset from the cache, building it on a miss.
func (p *Processor) Process(ctx context.Context, req Request) Result {
	if err := req.Config.Validate(); err != nil {
		return Result{Key: req.Config.Key(), Error: err}
	}
	key := req.Config.Key()

	runID, err := p.store.RecordRun(ctx, store.Run{
		DatasetKey: key,
		StartedAt:  time.Now(),
		Status:     store.RunRunning,
	})
	if err != nil {
		return Result{Key: key, Error: fmt.Errorf("recording run: %w", err)}
	}
	return p.execute(ctx, runID, req)
}

// ProcessAsync starts a job in the background and returns its run ID.
func (p *Processor) ProcessAsync(ctx context.Context, req Request) (int64, error) {
	if err := req.Config.Validate(); err != nil {
		return 0, err
	}

	runID, err := p.store.RecordRun(ctx, store.Run{
		DatasetKey: req.Config.Key(),
		StartedAt:  time.Now(),
		Status:     store.RunRunning,
	})
	if err != nil {
		return 0, fmt.Errorf("recording run: %w", err)
	}

	asyncCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.running[runID] = cancel
	p.mu.Unlock()

	go func() {
		defer cancel()
		defer func() {
			p.mu.Lock()
			delete(p.running, runID)
			p.mu.Unlock()
		}()

		res := p.execute(asyncCtx, runID, req)
		if res.Error != nil {
			p.logger.Error("async processing failed", "runID", runID, "key", res.Key, "error", res.Error)
			return
		}
		p.logger.Info("async processing completed", "runID", runID, "key", res.Key, "complexes", len(res.Dataset.Complexes))
	}()

	return runID, nil
}

// ProcessAll processes each config in turn, skipping cached datasets.
func (p *Processor) ProcessAll(ctx context.Context, cfgs []Config) []Result {
	results := make([]Result, 0, len(cfgs))
	for _, cfg := range cfgs {
		results = append(results, p.Process(ctx, Request{Config: cfg}))
	}
	return results
}

// IsRunning returns true if any background job is in progress.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running) > 0
}

// Cancel stops a background job. It reports whether the job was running.
func (p *Processor) Cancel(runID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel, ok := p.running[runID]
	if ok {
		cancel()
	}
	return ok
}

func (p *Processor) execute(ctx context.Context, runID int64, req Request) Result {
	key := req.Config.Key()
	res := Result{RunID: runID, Key: key}

	lookup := store.Lookup{Key: key, IncludeDownAdj: req.Config.IncludeDownAdj}
	build := func(ctx context.Context) (*models.Dataset, store.BuildStats, error) {
		ds, graphs, skipped, err := p.Build(ctx, req.Config)
		return ds, store.BuildStats{Graphs: graphs, Skipped: skipped}, err
	}

	var entry store.Entry
	var err error
	if req.Force {
		entry, err = p.cache.Rebuild(ctx, lookup, build)
	} else {
		entry, err = p.cache.LoadOrBuild(ctx, lookup, build)
	}

	// the run row outlives a cancelled job
	finCtx := context.WithoutCancel(ctx)
	if err != nil {
		p.finish(finCtx, runID, store.RunFailed, 0, 0)
		res.Error = err
		return res
	}

	ds := entry.Dataset
	res.Dataset, res.Cached = ds, entry.Cached
	res.Graphs, res.Skipped = entry.Stats.Graphs, entry.Stats.Skipped
	status := store.RunCompleted
	if res.Cached {
		status = store.RunCached
		res.Graphs = len(ds.Complexes)
	}
	p.finish(finCtx, runID, status, res.Graphs, len(ds.Complexes))
	return res
}

func (p *Processor) finish(ctx context.Context, runID int64, status string, graphs, complexes int) {
	if err := p.store.UpdateRun(ctx, runID, status, graphs, complexes); err != nil {
		p.logger.Error("updating run", "runID", runID, "status", status, "error", err)
	}
}

// Build converts the train, validation and test splits in that order and
// concatenates their complexes. It returns the dataset along with the number
// of graphs read and skipped.
func (p *Processor) Build(ctx context.Context, cfg Config) (*models.Dataset, int, int, error) {
	splits, err := LoadSplits(ctx, p.newSource(cfg))
	if err != nil {
		return nil, 0, 0, err
	}

	ds := &models.Dataset{
		Key:             cfg.Key(),
		Name:            cfg.Name,
		MaxRingSize:     cfg.MaxRingSize,
		UseEdgeFeatures: cfg.UseEdgeFeatures,
		IncludeDownAdj:  cfg.IncludeDownAdj,
	}

	var skipped int
	for _, split := range models.Splits {
		if split == models.SplitTest && !splits.HasTest() {
			continue
		}
		graphs := splits.Of(split)
		p.logger.Info("converting split", "key", ds.Key, "split", split, "graphs", len(graphs))

		complexes, dropped, err := ConvertSplit(ctx, graphs, cfg, p.opts)
		if err != nil {
			return nil, splits.Len(), skipped, fmt.Errorf("%s split: %w", split, err)
		}
		skipped += len(dropped)

		start := len(ds.Complexes)
		ds.Complexes = append(ds.Complexes, complexes...)
		idx := make([]int, len(complexes))
		for i := range idx {
			idx[i] = start + i
		}
		switch split {
		case models.SplitTrain:
			ds.Splits.Train = idx
		case models.SplitVal:
			ds.Splits.Val = idx
		case models.SplitTest:
			ds.Splits.Test = idx
		}
	}
	return ds, splits.Len(), skipped, nil
}

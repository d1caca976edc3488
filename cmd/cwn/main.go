package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/YuGuangWang/cwn/internal/alert"
	"github.com/YuGuangWang/cwn/internal/cellcomplex"
	"github.com/YuGuangWang/cwn/internal/config"
	"github.com/YuGuangWang/cwn/internal/dataset"
	"github.com/YuGuangWang/cwn/internal/rings"
	"github.com/YuGuangWang/cwn/internal/server"
	"github.com/YuGuangWang/cwn/internal/stats"
	"github.com/YuGuangWang/cwn/internal/store"
	"github.com/YuGuangWang/cwn/pkg/models"
)

var (
	version   = "dev"
	cfgFile   string
	dbPath    string
	logFormat string
	logLevel  string
	logger    *slog.Logger
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cwn",
		Short: "cwn: rings and cell complexes for molecular graphs",
		Long:  "Ring discovery, cell-complex assembly, and a cached dataset pipeline for graph learning.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLogLevel(logLevel)
			if err != nil {
				return err
			}
			opts := &slog.HandlerOptions{Level: level}
			switch logFormat {
			case "json":
				logger = slog.New(slog.NewJSONHandler(os.Stderr, opts))
			case "text":
				logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
			default:
				return fmt.Errorf("invalid --log-format %q (use: text, json)", logFormat)
			}
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./cwn.yaml)")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format (text, json)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		ringsCmd(),
		statsCmd(),
		processCmd(),
		datasetCmd(),
		complexCmd(),
		syncCmd(),
		serveCmd(),
		dbCmd(),
		versionCmd(),
		completionCmd(),
	)
	return root
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	return cfg
}

func openStore() (*store.SQLiteStore, *config.Config) {
	cfg := loadConfig()

	if dir := filepath.Dir(cfg.Storage.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			logger.Error("creating database directory", "error", err)
			os.Exit(1)
		}
	}

	st, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}

	if err := st.Init(context.Background()); err != nil {
		logger.Error("initializing database", "error", err)
		os.Exit(1)
	}

	return st, cfg
}

// openStoreAndEngine returns the SQLite store and a CellEngine.
// If Memgraph is configured and reachable, it returns a MemgraphEngine;
// otherwise it falls back to LocalEngine (decoded complexes).
func openStoreAndEngine() (*store.SQLiteStore, store.CellEngine, *config.Config) {
	st, cfg := openStore()
	localEngine := store.NewLocalEngine(st)
	var engine store.CellEngine = localEngine

	if cfg.Storage.Memgraph.Enabled {
		mgEngine, err := store.NewMemgraphEngine(
			cfg.Storage.Memgraph.URI,
			cfg.Storage.Memgraph.Username,
			cfg.Storage.Memgraph.Password,
			localEngine,
			logger,
		)
		if err != nil {
			logger.Warn("memgraph unavailable, using local cell engine", "error", err)
		} else {
			engine = mgEngine
			logger.Info("memgraph connected", "uri", cfg.Storage.Memgraph.URI)
		}
	}

	return st, engine, cfg
}

// openProcessingStore wraps st in a SyncedStore when Memgraph is enabled so
// that processed datasets are mirrored. The returned closer releases both.
func openProcessingStore(ctx context.Context, st *store.SQLiteStore, cfg *config.Config) (store.Store, func() error) {
	if !cfg.Storage.Memgraph.Enabled {
		return st, st.Close
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	driver, err := store.Connect(connectCtx, cfg.Storage.Memgraph.URI, cfg.Storage.Memgraph.Username, cfg.Storage.Memgraph.Password)
	if err != nil {
		logger.Warn("memgraph unavailable, datasets will not be mirrored", "error", err)
		return st, st.Close
	}
	synced := store.NewSyncedStore(st, driver, logger)
	return synced, synced.Close
}

// datasetConfig resolves a dataset.Config from the configured defaults and
// explicit overrides. Zero overrides keep the defaults.
func datasetConfig(cfg *config.Config, name string, maxRingSize int, edgeFeatures bool) dataset.Config {
	dc := dataset.Config{
		Root:            cfg.Dataset.Root,
		Name:            cfg.Dataset.Name,
		MaxRingSize:     cfg.Dataset.MaxRingSize,
		UseEdgeFeatures: cfg.Dataset.UseEdgeFeatures || edgeFeatures,
		IncludeDownAdj:  cfg.Dataset.IncludeDownAdj,
	}
	if name != "" {
		dc.Name = name
	}
	if maxRingSize > 0 {
		dc.MaxRingSize = maxRingSize
	}
	return dc
}

// configuredDatasets returns the datasets listed under "datasets", or the
// default dataset when the list is empty.
func configuredDatasets(cfg *config.Config) []dataset.Config {
	if len(cfg.Datasets) == 0 {
		return []dataset.Config{datasetConfig(cfg, "", 0, false)}
	}
	out := make([]dataset.Config, 0, len(cfg.Datasets))
	for _, d := range cfg.Datasets {
		out = append(out, datasetConfig(cfg, d.Name, d.MaxRingSize, d.UseEdgeFeatures))
	}
	return out
}

func convertOptions(cfg *config.Config) dataset.ConvertOptions {
	return dataset.ConvertOptions{
		Workers:     cfg.Processing.Workers,
		MaxRings:    cfg.Processing.MaxRingsPerGraph,
		SkipInvalid: cfg.Processing.SkipInvalid,
		Logger:      logger,
	}
}

// --- rings ---

func ringsCmd() *cobra.Command {
	var maxRingSize int

	cmd := &cobra.Command{
		Use:   "rings <graph-file>",
		Short: "List the rings of every graph in a raw graph file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if maxRingSize == 0 {
				maxRingSize = cfg.Dataset.MaxRingSize
			}

			graphs, err := dataset.ReadGraphFile(args[0])
			if err != nil {
				return err
			}
			finder, err := rings.New(maxRingSize, rings.WithMaxRings(cfg.Processing.MaxRingsPerGraph))
			if err != nil {
				return err
			}
			return printRings(os.Stdout, graphs, finder)
		},
	}

	cmd.Flags().IntVar(&maxRingSize, "max-ring-size", 0, "largest ring length to report (default from config)")
	return cmd
}

func printRings(w io.Writer, graphs []models.Graph, finder *rings.Finder) error {
	for i, g := range graphs {
		rs, err := finder.Find(g)
		if err != nil {
			return fmt.Errorf("graph %d: %w", i, err)
		}
		_, _ = fmt.Fprintf(w, "graph %d: %d vertices, %d edges, %d rings\n", i, g.NumNodes, len(g.Edges), len(rs))
		for _, r := range rs {
			_, _ = fmt.Fprintf(w, "  [%d] %s\n", len(r), r.Key())
		}
	}
	return nil
}

// --- stats ---

func statsCmd() *cobra.Command {
	var name, format string
	var maxRingSize int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print ring statistics per split of a raw dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			dc := datasetConfig(cfg, name, maxRingSize, false)
			if err := dc.Validate(); err != nil {
				return err
			}
			if format != "text" && format != "yaml" {
				return fmt.Errorf("unsupported format %q (use: text, yaml)", format)
			}

			finder, err := rings.New(dc.MaxRingSize, rings.WithMaxRings(cfg.Processing.MaxRingsPerGraph))
			if err != nil {
				return err
			}
			src := dataset.NewFileSource(dc.Root, dc.Name)
			return runStats(cmd.Context(), os.Stdout, src, dc.Name, finder, format)
		},
	}

	cmd.Flags().StringVar(&name, "dataset", "", "dataset name (default from config)")
	cmd.Flags().IntVar(&maxRingSize, "max-ring-size", 0, "largest ring length to count (default from config)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, yaml")
	return cmd
}

func runStats(ctx context.Context, w io.Writer, src dataset.GraphSource, name string, finder *rings.Finder, format string) error {
	splits, err := dataset.LoadSplits(ctx, src)
	if err != nil {
		return err
	}

	type part struct {
		title   string
		buckets stats.Buckets
	}
	var parts []part
	for _, split := range models.Splits {
		if split == models.SplitTest && !splits.HasTest() {
			continue
		}
		b, err := stats.SplitCounts(ctx, splits.Of(split), finder)
		if err != nil {
			return fmt.Errorf("%s split: %w", split, err)
		}
		parts = append(parts, part{title: splitTitle(split), buckets: b})
	}
	all := make([]stats.Buckets, len(parts))
	for i, p := range parts {
		all[i] = p.buckets
	}
	parts = append(parts, part{title: "Whole Dataset", buckets: stats.Combine(all...)})

	if format == "yaml" {
		sections := make([]stats.Section, len(parts))
		for i, p := range parts {
			sections[i] = stats.NewSection(p.title, p.buckets)
		}
		return stats.WriteYAML(w, sections)
	}

	_, _ = fmt.Fprintf(w, "----==== %s ====----\n", name)
	for _, p := range parts {
		_, _ = fmt.Fprintf(w, "=============== %s ================\n", p.title)
		if err := stats.Report(w, p.buckets); err != nil {
			return err
		}
	}
	return nil
}

func splitTitle(s models.Split) string {
	switch s {
	case models.SplitTrain:
		return "Train"
	case models.SplitVal:
		return "Validation"
	case models.SplitTest:
		return "Test"
	default:
		return string(s)
	}
}

// --- process ---

func processCmd() *cobra.Command {
	var name string
	var maxRingSize int
	var edgeFeatures, force, all bool

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Convert a raw dataset into cell complexes and cache it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, cfg := openStore()
			ctx := cmd.Context()
			procStore, closeStore := openProcessingStore(ctx, st, cfg)
			defer closeStore() //nolint:errcheck // best-effort cleanup

			p := dataset.NewProcessor(procStore, convertOptions(cfg), logger)

			if all {
				var failed int
				for _, r := range p.ProcessAll(ctx, configuredDatasets(cfg)) {
					printProcessResult(os.Stdout, r)
					if r.Error != nil {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d dataset(s) failed", failed)
				}
				return nil
			}

			dc := datasetConfig(cfg, name, maxRingSize, edgeFeatures)
			res := p.Process(ctx, dataset.Request{Config: dc, Force: force})
			printProcessResult(os.Stdout, res)
			return res.Error
		},
	}

	cmd.Flags().StringVar(&name, "dataset", "", "dataset name (default from config)")
	cmd.Flags().IntVar(&maxRingSize, "max-ring-size", 0, "largest ring length to attach (default from config)")
	cmd.Flags().BoolVar(&edgeFeatures, "edge-features", false, "carry edge features onto 1-cells")
	cmd.Flags().BoolVar(&force, "force", false, "rebuild even when the dataset is cached")
	cmd.Flags().BoolVar(&all, "all", false, "process every dataset listed in the config")
	return cmd
}

func printProcessResult(w io.Writer, r dataset.Result) {
	if r.Error != nil {
		_, _ = fmt.Fprintf(w, "Processing %s failed: %v\n", r.Key, r.Error)
		return
	}
	if r.Cached {
		_, _ = fmt.Fprintf(w, "Loaded %s from cache: %d complexes (run #%d)\n", r.Key, len(r.Dataset.Complexes), r.RunID)
		return
	}
	_, _ = fmt.Fprintf(w, "Processed %s: %d graphs -> %d complexes (run #%d)\n", r.Key, r.Graphs, len(r.Dataset.Complexes), r.RunID)
	if r.Skipped > 0 {
		_, _ = fmt.Fprintf(w, "  skipped %d invalid graphs\n", r.Skipped)
	}
	s := r.Dataset.Splits
	_, _ = fmt.Fprintf(w, "  train: %d, val: %d, test: %d\n", len(s.Train), len(s.Val), len(s.Test))
}

// --- dataset ---

func datasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Inspect and manage cached datasets",
	}
	cmd.AddCommand(datasetListCmd(), datasetRmCmd())
	return cmd
}

func datasetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached datasets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, _ := openStore()
			defer st.Close() //nolint:errcheck // best-effort cleanup

			infos, err := st.ListDatasets(cmd.Context())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				_, _ = fmt.Fprintln(os.Stdout, "No cached datasets.")
				return nil
			}
			printDatasets(os.Stdout, infos)
			return nil
		},
	}
}

func printDatasets(w io.Writer, infos []store.DatasetInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KEY\tNAME\tMAX RING\tCOMPLEXES\tTRAIN/VAL/TEST\tVERTICES\tEDGES\tRINGS\tCREATED")
	for _, d := range infos {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d/%d/%d\t%d\t%d\t%d\t%s\n",
			d.Key, d.Name, d.MaxRingSize, d.NumComplexes,
			d.SplitSizes[string(models.SplitTrain)], d.SplitSizes[string(models.SplitVal)], d.SplitSizes[string(models.SplitTest)],
			d.CellCounts[models.DimVertex], d.CellCounts[models.DimEdge], d.CellCounts[models.DimRing],
			d.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}

func datasetRmCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rm <key>",
		Short: "Remove a cached dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg := openStore()
			ctx := cmd.Context()
			procStore, closeStore := openProcessingStore(ctx, st, cfg)
			defer closeStore() //nolint:errcheck // best-effort cleanup

			info, err := st.GetDataset(ctx, args[0])
			if err != nil {
				return err
			}
			if info == nil {
				return fmt.Errorf("dataset %q not found", args[0])
			}

			if !force && !confirm(os.Stdin, os.Stdout, fmt.Sprintf("Delete %s (%d complexes)? [y/N]: ", info.Key, info.NumComplexes)) {
				_, _ = fmt.Fprintln(os.Stdout, "Aborted.")
				return nil
			}

			if err := procStore.DeleteDataset(ctx, info.Key); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "Deleted %s.\n", info.Key)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "skip confirmation prompt")
	return cmd
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	_, _ = fmt.Fprint(out, prompt)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

// --- complex ---

func complexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complex",
		Short: "Inspect a cached cell complex",
	}
	cmd.AddCommand(complexShowCmd(), complexExportCmd(), complexNeighborsCmd())
	return cmd
}

func parseComplexArgs(args []string) (string, int, error) {
	idx, err := strconv.Atoi(args[1])
	if err != nil || idx < 0 {
		return "", 0, fmt.Errorf("invalid complex index %q", args[1])
	}
	return args[0], idx, nil
}

func loadComplex(ctx context.Context, st store.Store, key string, idx int) (*models.Complex, models.Split, error) {
	c, split, err := st.GetComplex(ctx, key, idx)
	if err != nil {
		return nil, "", err
	}
	if c == nil {
		return nil, "", fmt.Errorf("complex %d of %q not found", idx, key)
	}
	return c, split, nil
}

func complexShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <key> <index>",
		Short: "Print a cell complex summary",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, idx, err := parseComplexArgs(args)
			if err != nil {
				return err
			}
			st, _ := openStore()
			defer st.Close() //nolint:errcheck // best-effort cleanup

			c, split, err := loadComplex(cmd.Context(), st, key, idx)
			if err != nil {
				return err
			}
			return printComplex(os.Stdout, key, idx, split, c)
		},
	}
}

func printComplex(w io.Writer, key string, idx int, split models.Split, c *models.Complex) error {
	_, _ = fmt.Fprintf(w, "Complex %d of %s (split: %s)\n", idx, key, split)
	_, _ = fmt.Fprintf(w, "  Dimension: %d\n", c.Dimension)
	_, _ = fmt.Fprintf(w, "  Vertices:  %d\n", c.NumCells(models.DimVertex))
	_, _ = fmt.Fprintf(w, "  Edges:     %d\n", c.NumCells(models.DimEdge))
	_, _ = fmt.Fprintf(w, "  Rings:     %d\n", c.NumCells(models.DimRing))
	if c.Target != nil {
		_, _ = fmt.Fprintf(w, "  Target:    %g\n", *c.Target)
	}
	if c.NumCells(models.DimRing) == 0 {
		return nil
	}

	_, _ = fmt.Fprintf(w, "\nRings:\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSIZE\tCYCLE\tBOUNDARY EDGES")
	for _, cell := range c.Cells[models.DimRing] {
		cycle, err := cellcomplex.RingCycle(c, cell.ID)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", cell.ID, len(cycle), cycle.Key(), models.Ring(cell.Boundary).Key())
	}
	return tw.Flush()
}

func complexExportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export <key> <index>",
		Short: "Export a cell complex in various formats",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, idx, err := parseComplexArgs(args)
			if err != nil {
				return err
			}
			st, _ := openStore()
			defer st.Close() //nolint:errcheck // best-effort cleanup

			c, _, err := loadComplex(cmd.Context(), st, key, idx)
			if err != nil {
				return err
			}
			output, err := store.Export(c, format)
			if err != nil {
				return err
			}
			fmt.Print(output)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", store.FormatJSON, "export format: json, dot, mermaid")
	return cmd
}

func complexNeighborsCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "neighbors <key> <index> <dim> <id>",
		Short: "List cofaces or neighbors of one cell",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, idx, err := parseComplexArgs(args)
			if err != nil {
				return err
			}
			dim, err := strconv.Atoi(args[2])
			if err != nil || dim < models.DimVertex || dim > models.DimRing {
				return fmt.Errorf("invalid dimension %q (use 0, 1 or 2)", args[2])
			}
			id, err := strconv.Atoi(args[3])
			if err != nil || id < 0 {
				return fmt.Errorf("invalid cell id %q", args[3])
			}

			st, engine, _ := openStoreAndEngine()
			defer st.Close()     //nolint:errcheck // best-effort cleanup
			defer engine.Close() //nolint:errcheck // best-effort cleanup

			ids, err := queryNeighbors(cmd.Context(), engine, store.CellRef{Dataset: key, Complex: idx, Dim: dim, ID: id}, kind)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("cell %d/%d of complex %d in %q not found", dim, id, idx, key)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s of cell %d/%d: %s\n", kind, dim, id, models.Ring(ids).Key())
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "upper", "relation: upper, lower, cofaces")
	return cmd
}

func queryNeighbors(ctx context.Context, engine store.CellEngine, ref store.CellRef, kind string) ([]int, error) {
	switch kind {
	case "upper":
		return engine.UpperNeighbors(ctx, ref)
	case "lower":
		return engine.LowerNeighbors(ctx, ref)
	case "cofaces":
		return engine.Cofaces(ctx, ref)
	default:
		return nil, fmt.Errorf("unsupported kind %q (use: upper, lower, cofaces)", kind)
	}
}

// --- sync ---

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <key>",
		Short: "Mirror a cached dataset from SQLite to Memgraph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg := openStore()
			defer st.Close() //nolint:errcheck // best-effort cleanup

			if !cfg.Storage.Memgraph.Enabled {
				return fmt.Errorf("memgraph is not enabled in configuration (set storage.memgraph.enabled: true)")
			}

			ctx := cmd.Context()
			connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			driver, err := store.Connect(connectCtx, cfg.Storage.Memgraph.URI, cfg.Storage.Memgraph.Username, cfg.Storage.Memgraph.Password)
			cancel()
			if err != nil {
				return fmt.Errorf("connecting to memgraph: %w", err)
			}
			defer driver.Close(context.Background()) //nolint:errcheck // best-effort cleanup

			res, err := store.SyncToMemgraph(ctx, st, args[0], driver, logger)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "Synced %s: %d cells, %d boundary relations\n", args[0], res.Cells, res.Boundaries)
			return nil
		},
	}
}

// --- serve ---

func serveCmd() *cobra.Command {
	var listen string
	var readOnly bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, engine, cfg := openStoreAndEngine()

			if listen == "" {
				listen = cfg.Server.Listen
			}

			// reuse the engine's connection for mirroring when it has one
			var procStore store.Store = st
			if mg, ok := engine.(*store.MemgraphEngine); ok {
				procStore = store.NewSyncedStore(st, mg.Driver(), logger)
			}
			processor := dataset.NewProcessor(procStore, convertOptions(cfg), logger)

			srv := server.New(st, engine, processor, logger, server.Options{
				Listen:     listen,
				ReadOnly:   readOnly || cfg.Server.ReadOnly,
				APIToken:   cfg.Server.APIToken,
				CORSOrigin: cfg.Server.CORSOrigin,
				Dataset:    datasetConfig(cfg, "", 0, false),
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			configs := configuredDatasets(cfg)

			if cfg.Processing.OnStartup {
				go func() {
					logger.Info("running startup processing", "datasets", len(configs))
					for _, r := range processor.ProcessAll(ctx, configs) {
						if r.Error != nil {
							logger.Error("startup processing failed", "key", r.Key, "error", r.Error)
						} else {
							logger.Info("startup processing completed", "key", r.Key,
								"cached", r.Cached, "complexes", len(r.Dataset.Complexes))
						}
					}
				}()
			}

			if cfg.Processing.Schedule != "" {
				sched, err := dataset.NewScheduler(processor, configs, cfg.Processing.Schedule, logger)
				if err != nil {
					logger.Error("invalid processing schedule", "error", err)
				} else {
					if a := newAlerter(cfg); a != nil {
						sched.SetAlerter(a)
					}
					sched.Start(ctx)
					defer sched.Stop()
				}
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
				_ = engine.Close()
				_ = st.Close()
			}()

			if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config or :8080)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "disable processing triggers via API")
	return cmd
}

// newAlerter builds the configured alert backends, or nil when none is enabled.
func newAlerter(cfg *config.Config) alert.Alerter {
	var alerters []alert.Alerter
	if cfg.Alerts.Stdout.Enabled {
		alerters = append(alerters, alert.NewStdoutAlerter())
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		alerters = append(alerters, alert.NewWebhookAlerter(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Headers))
	}
	if len(alerters) == 0 {
		return nil
	}
	return alert.NewMulti(alerters...)
}

// --- db ---

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management",
	}
	cmd.AddCommand(dbStatsCmd(), dbBackupCmd())
	return cmd
}

func dbStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, cfg := openStore()
			defer st.Close() //nolint:errcheck // best-effort cleanup

			sizeStr := "unknown"
			if info, err := os.Stat(cfg.Storage.Path); err == nil {
				sizeStr = formatBytes(info.Size())
			}
			_, _ = fmt.Fprintf(os.Stdout, "Database: %s (%s)\n\n", cfg.Storage.Path, sizeStr)
			return printDBStats(cmd.Context(), os.Stdout, st)
		},
	}
}

func printDBStats(ctx context.Context, w io.Writer, st *store.SQLiteStore) error {
	datasets, err := st.DatasetCount(ctx)
	if err != nil {
		return err
	}
	complexes, err := st.ComplexCount(ctx)
	if err != nil {
		return err
	}
	runs, err := st.ListRuns(ctx, 100)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Datasets:  %d\n", datasets)
	_, _ = fmt.Fprintf(w, "Complexes: %d\n", complexes)

	statusCounts := make(map[string]int)
	for _, r := range runs {
		statusCounts[r.Status]++
	}
	_, _ = fmt.Fprintf(w, "\nRuns: %d recent\n", len(runs))
	for _, status := range []string{store.RunCompleted, store.RunCached, store.RunRunning, store.RunFailed} {
		if n := statusCounts[status]; n > 0 {
			_, _ = fmt.Fprintf(w, "  %-20s %d\n", status, n)
		}
	}
	return nil
}

func dbBackupCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "backup <output-path>",
		Short: "Copy database file to a backup location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcPath := loadConfig().Storage.Path
			dstPath := args[0]

			if _, err := os.Stat(dstPath); err == nil && !force {
				if !confirm(os.Stdin, os.Stdout, fmt.Sprintf("File %s already exists. Overwrite? [y/N]: ", dstPath)) {
					_, _ = fmt.Fprintln(os.Stdout, "Aborted.")
					return nil
				}
			}

			n, err := copyFile(srcPath, dstPath)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "Backed up %s to %s (%s)\n", srcPath, dstPath, formatBytes(n))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing backup without asking")
	return cmd
}

func copyFile(srcPath, dstPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o750); err != nil {
		return 0, fmt.Errorf("creating backup directory: %w", err)
	}

	src, err := os.Open(srcPath) // #nosec G304 -- path from config/flag
	if err != nil {
		return 0, fmt.Errorf("opening source database: %w", err)
	}
	defer src.Close() //nolint:errcheck // best-effort cleanup

	dst, err := os.Create(dstPath) // #nosec G304 -- path from user CLI arg
	if err != nil {
		return 0, fmt.Errorf("creating backup file: %w", err)
	}
	defer dst.Close() //nolint:errcheck // best-effort cleanup

	n, err := io.Copy(dst, src)
	if err != nil {
		return 0, fmt.Errorf("copying database: %w", err)
	}
	return n, nil
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// --- version ---

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("cwn %s\n", version)
		},
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid --log-level %q (use: debug, info, warn, error)", s)
	}
}

func completionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for cwn.

To load completions:

Bash:
  $ source <(cwn completion bash)
  # To load completions for each session, execute once:
  $ cwn completion bash > /etc/bash_completion.d/cwn

Zsh:
  $ cwn completion zsh > "${fpath[1]}/_cwn"

Fish:
  $ cwn completion fish > ~/.config/fish/completions/cwn.fish

PowerShell:
  PS> cwn completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}
